package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"tally/internal/apperr"
	"tally/internal/config"
	"tally/internal/pkg/geoip"
	"tally/internal/pkg/user_agent"
	"tally/internal/settings"
	"tally/internal/visitors"
	"tally/internal/websites"
)

var (
	ErrMissingFields  = apperr.Validation("Missing required fields")
	ErrInvalidSiteKey = apperr.Validation("Invalid site public key")
)

// CollectVisitInput is a pageview beacon plus the request facts the
// handler adds.
type CollectVisitInput struct {
	SitePublicKey string
	VisitorID     string
	SessionID     string
	URL           string
	Referrer      string
	UserAgent     string
	DeviceType    string
	IPAddress     string
	Timestamp     time.Time
}

// RecordEventInput is a custom event beacon.
type RecordEventInput struct {
	SitePublicKey string
	SessionID     string
	Name          string
	EventData     any
	IPAddress     string
	Timestamp     time.Time
}

// resolveSite maps a public key onto its site, turning an unknown key into
// ErrInvalidSiteKey.
func resolveSite(db *gorm.DB, key string) (*websites.Site, error) {
	site, err := websites.FindByPublicKey(db, key)
	if err != nil {
		var notFound *websites.SiteNotFoundError
		if errors.As(err, &notFound) {
			return nil, ErrInvalidSiteKey
		}
		return nil, err
	}
	return site, nil
}

func isExcluded(logger *slog.Logger, ip string) bool {
	if ip == "" {
		return false
	}
	excluded, err := settings.IsIPExcluded(ip)
	if err != nil {
		logger.Error("Error checking IP exclusion", slog.Any("error", err))
		return false
	}
	return excluded
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func timestampOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

// CollectVisit validates and enriches a pageview and appends it to the visit
// log. It returns a nil visit and nil error when the beacon was acknowledged
// but dropped because its IP is excluded.
func CollectVisit(dbManager cartridge.DBManager, logger *slog.Logger, input *CollectVisitInput) (*Visit, error) {
	input.SitePublicKey = strings.TrimSpace(input.SitePublicKey)
	input.URL = strings.TrimSpace(input.URL)
	if input.SitePublicKey == "" || input.URL == "" {
		return nil, ErrMissingFields
	}

	db := dbManager.GetConnection()
	site, err := resolveSite(db, input.SitePublicKey)
	if err != nil {
		return nil, err
	}

	if isExcluded(logger, input.IPAddress) {
		logger.Debug("Skipping visit for excluded IP", slog.Int("siteId", int(site.ID)))
		return nil, nil
	}

	createdAt := timestampOrNow(input.Timestamp)
	ua := user_agent.ParseUserAgent(input.UserAgent)

	deviceType := strings.TrimSpace(input.DeviceType)
	if deviceType == "" {
		deviceType = ua.DeviceType()
	}

	visitorID := strings.TrimSpace(input.VisitorID)
	if visitorID == "" {
		visitorID = visitors.BuildUniqueVisitorId(site.PublicKey, input.IPAddress, input.UserAgent, config.GetConfig().PrivateKey, createdAt)
	}
	sessionID := strings.TrimSpace(input.SessionID)
	if sessionID == "" {
		sessionID = visitors.BuildSessionId(visitorID, createdAt)
	}

	location := geoip.Lookup(input.IPAddress)

	visit := &Visit{
		SiteID:     site.ID,
		VisitorID:  visitorID,
		SessionID:  sessionID,
		URL:        input.URL,
		Referrer:   strings.TrimSpace(input.Referrer),
		UserAgent:  input.UserAgent,
		DeviceType: deviceType,
		Country:    nullable(location.Country),
		Region:     nullable(location.Region),
		City:       nullable(location.City),
		OS:         ua.OSSummary(),
		Browser:    ua.BrowserSummary(),
		CreatedAt:  createdAt,
	}

	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(visit).Error
	})
	if err != nil {
		logger.Error("Failed to store visit",
			slog.Int("siteId", int(site.ID)),
			slog.Any("error", err))
		return nil, fmt.Errorf("failed to store visit: %w", err)
	}

	return visit, nil
}

// RecordEvent appends a custom event. EventData, when present, is stored as
// JSON text.
func RecordEvent(dbManager cartridge.DBManager, logger *slog.Logger, input *RecordEventInput) (*Event, error) {
	input.SitePublicKey = strings.TrimSpace(input.SitePublicKey)
	input.Name = strings.TrimSpace(input.Name)
	if input.SitePublicKey == "" || input.Name == "" {
		return nil, ErrMissingFields
	}

	db := dbManager.GetConnection()
	site, err := resolveSite(db, input.SitePublicKey)
	if err != nil {
		return nil, err
	}

	if isExcluded(logger, input.IPAddress) {
		logger.Debug("Skipping event for excluded IP", slog.Int("siteId", int(site.ID)))
		return nil, nil
	}

	var eventData *string
	if input.EventData != nil {
		encoded, err := json.Marshal(input.EventData)
		if err != nil {
			return nil, apperr.Validation("Invalid event data")
		}
		eventData = nullable(string(encoded))
	}

	event := &Event{
		SiteID:    site.ID,
		SessionID: strings.TrimSpace(input.SessionID),
		Name:      input.Name,
		EventData: eventData,
		CreatedAt: timestampOrNow(input.Timestamp),
	}

	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(event).Error
	})
	if err != nil {
		logger.Error("Failed to store event",
			slog.Int("siteId", int(site.ID)),
			slog.Any("error", err))
		return nil, fmt.Errorf("failed to store event: %w", err)
	}

	return event, nil
}
