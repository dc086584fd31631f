package websites

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"tally/internal/apperr"
)

const (
	maxKeyAttempts   = 5
	keyPrefixLetters = 6
	keySuffixLength  = 8
	fallbackPrefix   = "SITE"

	// verificationSampleSize is how many recent distinct URLs VerifyScript inspects.
	verificationSampleSize = 20
)

var hostnamePattern = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]*[a-z0-9])?\.)*[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

var (
	ErrInvalidDomain = apperr.Validation("Invalid domain")
	ErrDuplicateSite = apperr.Conflict("This domain is already registered. Please check your dashboard or try a different one.")
	ErrKeyCollision  = apperr.Conflict("Could not generate a unique site key. Please try again.")
)

// SiteNotFoundError is returned by lookups that match no site.
type SiteNotFoundError struct {
	Key string
}

func (e *SiteNotFoundError) Error() string {
	return fmt.Sprintf("site not found: %s", e.Key)
}

// NewSiteNotFoundError creates a new SiteNotFoundError
func NewSiteNotFoundError(key string) *SiteNotFoundError {
	return &SiteNotFoundError{Key: key}
}

// Site is a tracked domain owned by a user.
type Site struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         uint      `gorm:"not null;uniqueIndex:idx_sites_user_domain" json:"userId"`
	Domain         string    `gorm:"not null;uniqueIndex:idx_sites_user_domain" json:"domain"`
	PublicKey      string    `gorm:"not null;uniqueIndex" json:"publicKey"`
	ScriptVerified bool      `gorm:"not null;default:false" json:"scriptVerified"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// VerificationStatus is the outcome of VerifyScript.
type VerificationStatus string

const (
	StatusVerified    VerificationStatus = "verified"
	StatusNotDetected VerificationStatus = "not_detected"
	StatusWrongDomain VerificationStatus = "wrong_domain"
)

// NormalizeDomain reduces user input such as "https://www.Example.com/path"
// to a bare lowercase hostname.
func NormalizeDomain(input string) (string, error) {
	domain := strings.ToLower(strings.TrimSpace(input))
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	domain = strings.TrimPrefix(domain, "www.")

	if i := strings.IndexAny(domain, "/?#"); i >= 0 {
		domain = domain[:i]
	}
	if i := strings.LastIndex(domain, ":"); i >= 0 {
		domain = domain[:i]
	}
	domain = strings.TrimSuffix(domain, ".")

	if domain == "" || len(domain) > 253 || !hostnamePattern.MatchString(domain) {
		return "", ErrInvalidDomain
	}
	if !strings.Contains(domain, ".") && domain != "localhost" {
		return "", ErrInvalidDomain
	}
	return domain, nil
}

// KeyPrefix derives the readable part of a site key from the domain's first label.
func KeyPrefix(domain string) string {
	label := domain
	if i := strings.Index(label, "."); i >= 0 {
		label = label[:i]
	}

	var b strings.Builder
	for _, r := range label {
		if b.Len() >= keyPrefixLetters {
			break
		}
		if r < unicode.MaxASCII && unicode.IsLetter(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	if b.Len() == 0 {
		return fallbackPrefix
	}
	return b.String()
}

// GenerateKey builds a candidate public key for domain.
func GenerateKey(domain string) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:keySuffixLength]
	return KeyPrefix(domain) + "-" + suffix
}

// generateKey is the key source used by RegisterSite.
var generateKey = GenerateKey

// RegisterSite binds a new public key to domain for userID.
func RegisterSite(db *gorm.DB, logger *slog.Logger, userID uint, domain string) (*Site, error) {
	normalized, err := NormalizeDomain(domain)
	if err != nil {
		return nil, err
	}

	var existing int64
	if err := db.Model(&Site{}).Where("user_id = ? AND domain = ?", userID, normalized).Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to check existing site: %w", err)
	}
	if existing > 0 {
		return nil, ErrDuplicateSite
	}

	for attempt := 1; attempt <= maxKeyAttempts; attempt++ {
		site := &Site{
			UserID:    userID,
			Domain:    normalized,
			PublicKey: generateKey(normalized),
		}

		err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
			return tx.Create(site).Error
		})
		if err == nil {
			logger.Info("Site registered",
				slog.Int("siteId", int(site.ID)),
				slog.String("domain", site.Domain))
			return site, nil
		}

		if !apperr.IsUniqueViolation(err) {
			return nil, fmt.Errorf("failed to create site: %w", err)
		}
		if strings.Contains(err.Error(), "sites.domain") || strings.Contains(err.Error(), "sites.user_id") {
			return nil, ErrDuplicateSite
		}

		logger.Warn("Site key collision, retrying",
			slog.String("domain", normalized),
			slog.Int("attempt", attempt))
	}

	return nil, ErrKeyCollision
}

// VerifyScript checks whether beacons from the registered domain have
// arrived, marking the site verified on the first match.
func VerifyScript(db *gorm.DB, logger *slog.Logger, siteID uint) (VerificationStatus, error) {
	site, err := FindByID(db, siteID)
	if err != nil {
		return "", err
	}
	if site.ScriptVerified {
		return StatusVerified, nil
	}

	var urls []string
	err = db.Table("visits").
		Select("url").
		Where("site_id = ?", site.ID).
		Group("url").
		Order("MAX(created_at) DESC").
		Limit(verificationSampleSize).
		Pluck("url", &urls).Error
	if err != nil {
		return "", fmt.Errorf("failed to sample visits: %w", err)
	}
	if len(urls) == 0 {
		return StatusNotDetected, nil
	}

	for _, raw := range urls {
		if hostOf(raw) != site.Domain {
			continue
		}
		err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
			return tx.Model(&Site{}).Where("id = ?", site.ID).Update("script_verified", true).Error
		})
		if err != nil {
			return "", fmt.Errorf("failed to mark site verified: %w", err)
		}
		logger.Info("Site script verified", slog.Int("siteId", int(site.ID)))
		return StatusVerified, nil
	}

	return StatusWrongDomain, nil
}

// hostOf returns the lowercased host of a visit URL with any leading www.
// removed, matching how registered domains are normalized.
func hostOf(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

// FindByID retrieves a site by its ID.
func FindByID(db *gorm.DB, id uint) (*Site, error) {
	var site Site
	if err := db.Where("id = ?", id).First(&site).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewSiteNotFoundError(fmt.Sprintf("id %d", id))
		}
		return nil, fmt.Errorf("unexpected error querying site: %w", err)
	}
	return &site, nil
}

// FindByPublicKey resolves the site a beacon belongs to.
func FindByPublicKey(db *gorm.DB, key string) (*Site, error) {
	var site Site
	if err := db.Where("public_key = ?", key).First(&site).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewSiteNotFoundError(key)
		}
		return nil, fmt.Errorf("unexpected error querying site: %w", err)
	}
	return &site, nil
}

// FindOwnedSite returns the site only when userID owns it.
func FindOwnedSite(db *gorm.DB, userID, siteID uint) (*Site, error) {
	var site Site
	if err := db.Where("id = ? AND user_id = ?", siteID, userID).First(&site).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewSiteNotFoundError(fmt.Sprintf("id %d", siteID))
		}
		return nil, fmt.Errorf("unexpected error querying site: %w", err)
	}
	return &site, nil
}

// ListForUser returns the user's sites, oldest first.
func ListForUser(db *gorm.DB, userID uint) ([]Site, error) {
	var sites []Site
	if err := db.Where("user_id = ?", userID).Order("id ASC").Find(&sites).Error; err != nil {
		return nil, fmt.Errorf("failed to get sites: %w", err)
	}
	return sites, nil
}

// ListAll returns every registered site.
func ListAll(db *gorm.DB) ([]Site, error) {
	var sites []Site
	if err := db.Order("id ASC").Find(&sites).Error; err != nil {
		return nil, fmt.Errorf("failed to get sites: %w", err)
	}
	return sites, nil
}
