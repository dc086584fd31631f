package user_agent

import (
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

// Device form factors reported in UserAgent.Device.
const (
	DeviceDesktop    = "desktop"
	DeviceSmartphone = "smartphone"
	DeviceTablet     = "tablet"
	DeviceTV         = "tv"
	DeviceBot        = "bot"
	DeviceUnknown    = "unknown"
)

// DeviceTypeMobile is the stored device type of phones.
const DeviceTypeMobile = "mobile"

// Unknown is reported for browser and OS when nothing matched.
const Unknown = "Unknown"

type UserAgent struct {
	UserAgent      string
	OS             string
	OSVersion      string
	Browser        string
	BrowserVersion string
	Device         string
	Mobile         bool
	Tablet         bool
	Desktop        bool
	Bot            bool
}

// Embed the database files
//
//go:embed database/bots.yml
//go:embed database/oss.yml
//go:embed database/client/browsers.yml
//go:embed database/device/types.yml
var databaseFiles embed.FS

// ClientEntry matches a browser or an operating system. Version may
// reference capture groups as $1, $2...
type ClientEntry struct {
	Regex   string `yaml:"regex"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// DeviceEntry maps a pattern to a form factor.
type DeviceEntry struct {
	Regex  string `yaml:"regex"`
	Device string `yaml:"device"`
}

// BotEntry identifies a crawler or automated client.
type BotEntry struct {
	Regex    string `yaml:"regex"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
}

// Compiled regex cache
type RegexCache struct {
	compiled map[string]*pcre.Regexp
	mutex    sync.RWMutex
}

func newRegexCache() *RegexCache {
	return &RegexCache{
		compiled: make(map[string]*pcre.Regexp),
	}
}

func (rc *RegexCache) get(pattern string) (*pcre.Regexp, error) {
	rc.mutex.RLock()
	if regex, exists := rc.compiled[pattern]; exists {
		rc.mutex.RUnlock()
		return regex, nil
	}
	rc.mutex.RUnlock()

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if regex, exists := rc.compiled[pattern]; exists {
		return regex, nil
	}

	regex, err := pcre.Compile(pattern)
	if err != nil {
		return nil, err
	}
	rc.compiled[pattern] = regex
	return regex, nil
}

// Global parser instance
var (
	parser *DeviceDetectorParser
	once   sync.Once
)

type DeviceDetectorParser struct {
	browsers   []ClientEntry
	oss        []ClientEntry
	devices    []DeviceEntry
	bots       []BotEntry
	regexCache *RegexCache
}

func loadDatabase(path string, out any) {
	data, err := databaseFiles.ReadFile(path)
	if err != nil {
		slog.Default().Error("Missing user agent database file", slog.String("file", path), slog.Any("error", err))
		return
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		slog.Default().Error("Failed to parse user agent database file", slog.String("file", path), slog.Any("error", err))
	}
}

func getParser() *DeviceDetectorParser {
	once.Do(func() {
		parser = &DeviceDetectorParser{regexCache: newRegexCache()}
		loadDatabase("database/client/browsers.yml", &parser.browsers)
		loadDatabase("database/oss.yml", &parser.oss)
		loadDatabase("database/bots.yml", &parser.bots)
		loadDatabase("database/device/types.yml", &parser.devices)
	})
	return parser
}

func (p *DeviceDetectorParser) parseBot(userAgent string) *BotEntry {
	for i := range p.bots {
		if regex, err := p.regexCache.get(p.bots[i].Regex); err == nil {
			if regex.MatchString(userAgent) {
				return &p.bots[i]
			}
		}
	}
	return nil
}

// matchClient returns the name and expanded version of the first entry
// matching userAgent.
func (p *DeviceDetectorParser) matchClient(entries []ClientEntry, userAgent string) (string, string) {
	for _, entry := range entries {
		regex, err := p.regexCache.get(entry.Regex)
		if err != nil {
			continue
		}
		matches := regex.FindStringSubmatch(userAgent)
		if len(matches) == 0 {
			continue
		}
		version := ""
		if entry.Version != "" && len(matches) > 1 {
			version = entry.Version
			for i, match := range matches[1:] {
				version = strings.ReplaceAll(version, fmt.Sprintf("$%d", i+1), match)
			}
			version = strings.ReplaceAll(version, "_", ".")
		}
		return entry.Name, version
	}
	return Unknown, ""
}

func (p *DeviceDetectorParser) parseDevice(userAgent string) string {
	for _, entry := range p.devices {
		if regex, err := p.regexCache.get(entry.Regex); err == nil {
			if regex.MatchString(userAgent) {
				return entry.Device
			}
		}
	}

	// Fallback device detection based on user agent patterns
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad"):
		return DeviceTablet
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone") || strings.Contains(ua, "android"):
		return DeviceSmartphone
	case strings.Contains(ua, "mozilla"):
		return DeviceDesktop
	default:
		return DeviceUnknown
	}
}

// ParseUserAgent never fails: unparseable input yields Unknown browser/OS.
func ParseUserAgent(userAgent string) UserAgent {
	if strings.TrimSpace(userAgent) == "" {
		return UserAgent{OS: Unknown, Browser: Unknown, Device: DeviceUnknown}
	}

	parser := getParser()

	if bot := parser.parseBot(userAgent); bot != nil {
		return UserAgent{
			UserAgent: userAgent,
			OS:        Unknown,
			Browser:   bot.Name,
			Device:    DeviceBot,
			Bot:       true,
		}
	}

	browser, browserVersion := parser.matchClient(parser.browsers, userAgent)
	os, osVersion := parser.matchClient(parser.oss, userAgent)
	device := parser.parseDevice(userAgent)

	return UserAgent{
		UserAgent:      userAgent,
		OS:             os,
		OSVersion:      osVersion,
		Browser:        browser,
		BrowserVersion: browserVersion,
		Device:         device,
		Mobile:         device == DeviceSmartphone,
		Tablet:         device == DeviceTablet,
		Desktop:        device == DeviceDesktop,
	}
}

// BrowserSummary renders "Chrome 120.0" style labels, trimming the version to
// major.minor.
func (u UserAgent) BrowserSummary() string {
	return summary(u.Browser, u.BrowserVersion)
}

// OSSummary renders "Mac 10.15" style labels.
func (u UserAgent) OSSummary() string {
	return summary(u.OS, u.OSVersion)
}

// DeviceType collapses the form factor onto the labels the dashboards group by.
func (u UserAgent) DeviceType() string {
	switch {
	case u.Bot:
		return DeviceBot
	case u.Mobile:
		return DeviceTypeMobile
	case u.Tablet:
		return DeviceTablet
	case u.Desktop:
		return DeviceDesktop
	default:
		return DeviceUnknown
	}
}

func summary(name, version string) string {
	if name == "" {
		return Unknown
	}
	if version == "" || name == Unknown {
		return name
	}
	parts := strings.SplitN(version, ".", 3)
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return name + " " + strings.Join(parts, ".")
}
