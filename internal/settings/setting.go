package settings

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/cache"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// KeyExcludedIPs holds a comma-separated list of IPs or CIDR ranges whose
// beacons are dropped.
const KeyExcludedIPs = "excluded_ips"

// Setting represents a configuration item in the database
type Setting struct {
	ID        uint      `gorm:"primaryKey"`
	Key       string    `gorm:"uniqueIndex;not null"`
	Value     string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:milli"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:milli"`
}

var excludedIPsCache *cache.Cache[string, []string]

// SetupDefaultSettings inserts missing default settings and primes the cache.
func SetupDefaultSettings(dbConn *gorm.DB, logger *slog.Logger) error {
	defaults := []Setting{
		{Key: KeyExcludedIPs, Value: ""},
	}
	err := sqlite.PerformWrite(logger, dbConn, func(tx *gorm.DB) error {
		for _, setting := range defaults {
			err := tx.Exec(`
                INSERT INTO settings (key, value, created_at, updated_at)
                VALUES (?, ?, ?, ?)
                ON CONFLICT(key) DO NOTHING
            `, setting.Key, setting.Value, time.Now().UTC(), time.Now().UTC()).Error
			if err != nil {
				logger.Error("Failed to upsert setting", slog.String("key", setting.Key), slog.Any("error", err))
				return fmt.Errorf("failed to upsert setting %s: %w", setting.Key, err)
			}
		}
		return nil
	})

	loadCache(dbConn, logger)

	return err
}

// IsIPExcluded reports whether ip matches an entry of the excluded_ips setting.
func IsIPExcluded(ip string) (bool, error) {
	if excludedIPsCache == nil {
		return false, nil
	}

	excludedIPs, err := excludedIPsCache.Get(KeyExcludedIPs)
	if err != nil {
		return false, fmt.Errorf("failed to check excluded IPs: %w", err)
	}

	parsed := net.ParseIP(ip)
	for _, entry := range excludedIPs {
		if entry == ip {
			return true, nil
		}
		if _, network, err := net.ParseCIDR(entry); err == nil && parsed != nil && network.Contains(parsed) {
			return true, nil
		}
	}
	return false, nil
}

// GetSetting retrieves a setting value from the database
func GetSetting(dbConn *gorm.DB, key string) (string, error) {
	var setting Setting
	if err := dbConn.Where("key = ?", key).First(&setting).Error; err != nil {
		return "", err
	}
	return setting.Value, nil
}

// UpdateSetting creates or replaces a setting and refreshes the cache.
func UpdateSetting(dbConn *gorm.DB, logger *slog.Logger, key string, value string) error {
	err := sqlite.PerformWrite(logger, dbConn, func(tx *gorm.DB) error {
		return tx.Exec(`
            INSERT INTO settings (key, value, created_at, updated_at)
            VALUES (?, ?, ?, ?)
            ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
        `, key, value, time.Now().UTC(), time.Now().UTC()).Error
	})
	if err != nil {
		return fmt.Errorf("failed to update setting %s: %w", key, err)
	}

	if excludedIPsCache != nil {
		excludedIPsCache.Clear()
	}
	loadCache(dbConn, logger)

	return nil
}

// ExcludedIPs returns the parsed excluded_ips entries.
func ExcludedIPs(dbConn *gorm.DB) ([]string, error) {
	value, err := GetSetting(dbConn, KeyExcludedIPs)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return []string{}, nil
		}
		return nil, err
	}
	return splitList(value), nil
}

// AddExcludedIP appends an IP or CIDR range to excluded_ips.
func AddExcludedIP(dbConn *gorm.DB, logger *slog.Logger, entry string) error {
	entry = strings.TrimSpace(entry)
	if net.ParseIP(entry) == nil {
		if _, _, err := net.ParseCIDR(entry); err != nil {
			return fmt.Errorf("not an IP address or CIDR range: %q", entry)
		}
	}

	current, err := ExcludedIPs(dbConn)
	if err != nil {
		return err
	}
	for _, existing := range current {
		if existing == entry {
			return nil
		}
	}

	return UpdateSetting(dbConn, logger, KeyExcludedIPs, strings.Join(append(current, entry), ","))
}

func splitList(value string) []string {
	entries := []string{}
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			entries = append(entries, part)
		}
	}
	return entries
}

func loadCache(dbConn *gorm.DB, logger *slog.Logger) {
	fetchFunc := func(key string) ([]string, error) {
		var value string
		err := dbConn.WithContext(context.Background()).Raw("SELECT value FROM settings WHERE key = ? LIMIT 1", key).Scan(&value).Error
		if err != nil {
			return nil, err
		}
		return splitList(value), nil
	}
	excludedIPsCache = cache.NewCache[string, []string](logger, 5*time.Minute, fetchFunc)
}
