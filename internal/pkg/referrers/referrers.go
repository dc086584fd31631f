// Package referrers turns raw referrer URLs into traffic sources and
// acquisition channels.
package referrers

import (
	"net/url"
	"strings"
)

// Channel is one of the four acquisition channels.
type Channel string

const (
	ChannelDirect   Channel = "direct"
	ChannelOrganic  Channel = "organic"
	ChannelSocial   Channel = "social"
	ChannelReferral Channel = "referral"
)

// DirectSource is the source label used for visits without a referrer.
const DirectSource = "Direct"

type knownSource struct {
	name    string
	channel Channel
}

// Referrer hostnames mapped to display names. Search and social entries also
// drive channel classification.
var knownSources = map[string]knownSource{
	// Search engines
	"google.com":       {"Google", ChannelOrganic},
	"bing.com":         {"Bing", ChannelOrganic},
	"duckduckgo.com":   {"DuckDuckGo", ChannelOrganic},
	"yahoo.com":        {"Yahoo", ChannelOrganic},
	"baidu.com":        {"Baidu", ChannelOrganic},
	"yandex.ru":        {"Yandex", ChannelOrganic},
	"yandex.com":       {"Yandex", ChannelOrganic},
	"ecosia.org":       {"Ecosia", ChannelOrganic},
	"kagi.com":         {"Kagi", ChannelOrganic},
	"search.brave.com": {"Brave Search", ChannelOrganic},
	"startpage.com":    {"Startpage", ChannelOrganic},

	// Social media
	"x.com":           {"X/Twitter", ChannelSocial},
	"twitter.com":     {"X/Twitter", ChannelSocial},
	"t.co":            {"X/Twitter", ChannelSocial},
	"facebook.com":    {"Facebook", ChannelSocial},
	"fb.com":          {"Facebook", ChannelSocial},
	"fb.me":           {"Facebook", ChannelSocial},
	"instagram.com":   {"Instagram", ChannelSocial},
	"linkedin.com":    {"LinkedIn", ChannelSocial},
	"lnkd.in":         {"LinkedIn", ChannelSocial},
	"pinterest.com":   {"Pinterest", ChannelSocial},
	"pin.it":          {"Pinterest", ChannelSocial},
	"reddit.com":      {"Reddit", ChannelSocial},
	"redd.it":         {"Reddit", ChannelSocial},
	"tiktok.com":      {"TikTok", ChannelSocial},
	"threads.net":     {"Threads", ChannelSocial},
	"bsky.app":        {"Bluesky", ChannelSocial},
	"mastodon.social": {"Mastodon", ChannelSocial},
	"youtube.com":     {"YouTube", ChannelSocial},
	"youtu.be":        {"YouTube", ChannelSocial},
	"snapchat.com":    {"Snapchat", ChannelSocial},
	"discord.com":     {"Discord", ChannelSocial},
	"t.me":            {"Telegram", ChannelSocial},
	"whatsapp.com":    {"WhatsApp", ChannelSocial},

	// Communities and publishers, classified as plain referrals
	"news.ycombinator.com": {"Hacker News", ChannelReferral},
	"lobste.rs":            {"Lobsters", ChannelReferral},
	"producthunt.com":      {"Product Hunt", ChannelReferral},
	"dev.to":               {"DEV Community", ChannelReferral},
	"medium.com":           {"Medium", ChannelReferral},
	"substack.com":         {"Substack", ChannelReferral},
	"github.com":           {"GitHub", ChannelReferral},
	"stackoverflow.com":    {"Stack Overflow", ChannelReferral},
	"mail.google.com":      {"Gmail", ChannelReferral},
	"outlook.live.com":     {"Outlook", ChannelReferral},
	"bit.ly":               {"Bitly", ChannelReferral},
}

// Search engines run country-code domains (google.de, bing.co.uk...). Any
// host whose registrable label is one of these is organic.
var searchEngineLabels = map[string]bool{
	"google":     true,
	"bing":       true,
	"yahoo":      true,
	"duckduckgo": true,
	"baidu":      true,
	"yandex":     true,
	"ecosia":     true,
}

// Hostname extracts the lowercased host of a referrer, without a leading
// "www.". Bare hosts without a scheme are accepted. Unparseable input yields "".
func Hostname(referrer string) string {
	referrer = strings.TrimSpace(referrer)
	if referrer == "" {
		return ""
	}
	if !strings.Contains(referrer, "://") {
		referrer = "https://" + referrer
	}
	parsed, err := url.Parse(referrer)
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// IsSelfReferral reports whether the referrer host is the site's own domain.
func IsSelfReferral(referrerHost, siteDomain string) bool {
	if referrerHost == "" || siteDomain == "" {
		return false
	}
	return strings.EqualFold(strings.TrimPrefix(referrerHost, "www."), strings.TrimPrefix(siteDomain, "www."))
}

// Classify maps a raw referrer to its channel. The second result is false
// when the referrer is the site itself and the row must be left out.
func Classify(referrer, siteDomain string) (Channel, bool) {
	if strings.TrimSpace(referrer) == "" {
		return ChannelDirect, true
	}
	host := Hostname(referrer)
	if host == "" {
		return ChannelReferral, true
	}
	if IsSelfReferral(host, siteDomain) {
		return "", false
	}
	return ChannelForHost(host), true
}

// ChannelForHost classifies an already extracted, lowercased host.
func ChannelForHost(host string) Channel {
	if source, ok := lookup(host); ok {
		return source.channel
	}
	for _, label := range strings.Split(host, ".") {
		if searchEngineLabels[label] {
			return ChannelOrganic
		}
	}
	return ChannelReferral
}

// Source returns the grouping label for Top Channels: "Direct" for empty
// referrers, the referrer host otherwise. ok is false for self-referrals.
func Source(referrer, siteDomain string) (source string, ok bool) {
	if strings.TrimSpace(referrer) == "" {
		return DirectSource, true
	}
	host := Hostname(referrer)
	if host == "" {
		return strings.TrimSpace(referrer), true
	}
	if IsSelfReferral(host, siteDomain) {
		return "", false
	}
	return host, true
}

// FriendlyName returns a human-friendly name for a referrer hostname.
// Unknown hostnames come back without "www." and with the first letter capitalized.
func FriendlyName(hostname string) string {
	hostname = strings.TrimPrefix(strings.ToLower(hostname), "www.")
	if hostname == strings.ToLower(DirectSource) {
		return DirectSource
	}
	if source, ok := lookup(hostname); ok {
		return source.name
	}
	return capitalizeFirst(hostname)
}

// lookup matches a host exactly or as a subdomain of a known source; the
// longest matching domain wins.
func lookup(host string) (knownSource, bool) {
	host = strings.TrimPrefix(host, "www.")
	if source, ok := knownSources[host]; ok {
		return source, true
	}
	var (
		best      knownSource
		bestMatch string
	)
	for domain, source := range knownSources {
		if strings.HasSuffix(host, "."+domain) && len(domain) > len(bestMatch) {
			best, bestMatch = source, domain
		}
	}
	return best, bestMatch != ""
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
