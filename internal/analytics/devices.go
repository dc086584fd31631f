package analytics

import (
	"fmt"

	"gorm.io/gorm"

	"tally/internal/pkg/user_agent"
)

// DeviceShare is the percentage of sessions per device class.
type DeviceShare struct {
	Desktop float64 `json:"desktop"`
	Mobile  float64 `json:"mobile"`
	Tablet  float64 `json:"tablet"`
}

// GetSessionsByDevice splits distinct sessions by device type. Labels other
// than desktop, mobile and tablet only count toward the total.
func GetSessionsByDevice(db *gorm.DB, params SiteScopedQueryParams) (DeviceShare, error) {
	var rawResults []struct {
		Device   string
		Sessions int64
	}

	query := `
    SELECT
        LOWER(TRIM(COALESCE(device_type, ''))) as device,
        COUNT(DISTINCT session_id) as sessions
    FROM visits
    WHERE site_id = ?
    AND created_at BETWEEN ? AND ?
    GROUP BY device
    `

	err := db.Raw(query,
		params.SiteID,
		params.TimeFrame.From.UTC(),
		params.TimeFrame.To.UTC(),
	).Scan(&rawResults).Error
	if err != nil {
		return DeviceShare{}, fmt.Errorf("error fetching sessions by device: %w", err)
	}

	var total int64
	err = db.Raw(`
    SELECT COUNT(DISTINCT session_id)
    FROM visits
    WHERE site_id = ?
    AND created_at BETWEEN ? AND ?
    `,
		params.SiteID,
		params.TimeFrame.From.UTC(),
		params.TimeFrame.To.UTC(),
	).Scan(&total).Error
	if err != nil {
		return DeviceShare{}, fmt.Errorf("error fetching session total: %w", err)
	}

	var desktop, mobile, tablet int64
	for _, r := range rawResults {
		switch r.Device {
		case user_agent.DeviceDesktop:
			desktop += r.Sessions
		case user_agent.DeviceTypeMobile, user_agent.DeviceSmartphone:
			mobile += r.Sessions
		case user_agent.DeviceTablet:
			tablet += r.Sessions
		}
	}

	return DeviceShare{
		Desktop: percentage(desktop, total),
		Mobile:  percentage(mobile, total),
		Tablet:  percentage(tablet, total),
	}, nil
}
