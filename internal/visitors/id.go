package visitors

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// SessionWindow is the span a server-side session id stays stable for.
const SessionWindow = 30 * time.Minute

// BuildUniqueVisitorId derives a visitor id for beacons that carry none.
// The id rotates daily at midnight UTC so visitors cannot be followed across
// days. The IP address is only hashed, never stored.
func BuildUniqueVisitorId(siteKey, ipAddress, userAgent, salt string, now time.Time) string {
	today := now.UTC().Format("2006-01-02")
	dailySalt := fmt.Sprintf("%s-%s", today, salt)
	data := fmt.Sprintf("%s.%s.%s.%s", dailySalt, siteKey, ipAddress, userAgent)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// BuildSessionId derives a session id from a visitor id and the current
// SessionWindow slot.
func BuildSessionId(visitorID string, now time.Time) string {
	slot := now.UTC().Truncate(SessionWindow).Unix()
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s.%d", visitorID, slot)))
	return hex.EncodeToString(hash[:16])
}
