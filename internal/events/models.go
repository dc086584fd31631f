package events

import "time"

// Visit is one pageview beacon. Rows are append-only.
type Visit struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	SiteID     uint   `gorm:"index:idx_visits_site_created;not null"`
	VisitorID  string `gorm:"index;size:64;not null"`
	SessionID  string `gorm:"index;size:64;not null"`
	URL        string `gorm:"not null"`
	Referrer   string
	UserAgent  string
	DeviceType string
	Country    *string `gorm:"size:2"`
	Region     *string
	City       *string
	OS         string
	Browser    string
	CreatedAt  time.Time `gorm:"index:idx_visits_site_created;not null"`
}

// Event is a named custom action. Rows are append-only.
type Event struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	SiteID    uint      `gorm:"index:idx_events_site_created;not null"`
	SessionID string    `gorm:"index;size:64"`
	Name      string    `gorm:"index;not null"`
	EventData *string   `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index:idx_events_site_created;not null"`
}
