package v1

import (
	"crypto/sha256"
	"encoding/hex"
	"net/netip"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// proxyHeaders are consulted in order when X-Forwarded-For has no usable hop.
var proxyHeaders = []string{
	"X-Real-IP",
	"CF-Connecting-IP",
	"True-Client-IP",
	"X-Client-IP",
}

// getClientIP resolves the caller's address for geo lookup and IP exclusion.
// The first hop of X-Forwarded-For is the client as seen by the outermost
// proxy, so it wins over every other source.
func getClientIP(c *fiber.Ctx) string {
	if addr, ok := firstAddr(strings.Split(c.Get(fiber.HeaderXForwardedFor), ",")); ok {
		return addr.String()
	}

	for _, header := range proxyHeaders {
		if addr, ok := parseAddr(c.Get(header)); ok {
			return addr.String()
		}
	}

	if addr, ok := firstAddr(forwardedFor(c.Get("Forwarded"))); ok {
		return addr.String()
	}

	if remote := c.Context().RemoteAddr(); remote != nil {
		if addr, ok := parseAddr(remote.String()); ok {
			return addr.String()
		}
	}

	return c.IP()
}

func firstAddr(values []string) (netip.Addr, bool) {
	for _, value := range values {
		if addr, ok := parseAddr(value); ok {
			return addr, true
		}
	}
	return netip.Addr{}, false
}

// parseAddr accepts bare addresses, host:port pairs, bracketed IPv6 and
// quoted values. Zones are dropped and IPv4-mapped IPv6 is unmapped.
func parseAddr(raw string) (netip.Addr, bool) {
	value := strings.Trim(strings.TrimSpace(raw), `"`)
	if value == "" {
		return netip.Addr{}, false
	}

	if addrPort, err := netip.ParseAddrPort(value); err == nil {
		return addrPort.Addr().WithZone("").Unmap(), true
	}

	value = strings.TrimSuffix(strings.TrimPrefix(value, "["), "]")
	if addr, err := netip.ParseAddr(value); err == nil {
		return addr.WithZone("").Unmap(), true
	}
	return netip.Addr{}, false
}

// forwardedFor extracts the for= parameters of an RFC 7239 Forwarded header.
func forwardedFor(header string) []string {
	var values []string
	for _, element := range strings.Split(header, ",") {
		for _, pair := range strings.Split(element, ";") {
			key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if ok && strings.EqualFold(key, "for") {
				values = append(values, value)
			}
		}
	}
	return values
}

// generateETag returns a strong, quoted ETag for content.
func generateETag(content []byte) string {
	hash := sha256.Sum256(content)
	return `"` + hex.EncodeToString(hash[:]) + `"`
}
