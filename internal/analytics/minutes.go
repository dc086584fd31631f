package analytics

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

const minuteLayout = "2006-01-02 15:04"

// visitorMinute is one visitor's activity within one UTC minute. Grouping by
// minute in SQL keeps result sets small while still allowing exact bucketing
// in any timezone offset.
type visitorMinute struct {
	Minute    string
	VisitorID string
	Referrer  string
	Pageviews int64
}

func (m visitorMinute) At() time.Time {
	t, err := time.ParseInLocation(minuteLayout, m.Minute, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

func fetchVisitorMinutes(db *gorm.DB, siteID uint, from, to time.Time) ([]visitorMinute, error) {
	var rows []visitorMinute

	query := `
    SELECT
        strftime('%Y-%m-%d %H:%M', created_at) as minute,
        visitor_id,
        COUNT(*) as pageviews
    FROM visits
    WHERE site_id = ?
    AND created_at BETWEEN ? AND ?
    GROUP BY minute, visitor_id
    `

	err := db.Raw(query, siteID, from.UTC(), to.UTC()).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching visitor activity: %w", err)
	}
	return rows, nil
}

func fetchReferrerMinutes(db *gorm.DB, siteID uint, from, to time.Time) ([]visitorMinute, error) {
	var rows []visitorMinute

	query := `
    SELECT
        strftime('%Y-%m-%d %H:%M', created_at) as minute,
        visitor_id,
        COALESCE(referrer, '') as referrer,
        COUNT(*) as pageviews
    FROM visits
    WHERE site_id = ?
    AND created_at BETWEEN ? AND ?
    GROUP BY minute, visitor_id, referrer
    `

	err := db.Raw(query, siteID, from.UTC(), to.UTC()).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching referrer activity: %w", err)
	}
	return rows, nil
}

// distinctPerBucket counts distinct visitors per bucket key.
func distinctPerBucket(rows []visitorMinute, key func(time.Time) string) map[string]int64 {
	seen := make(map[string]map[string]struct{})
	for _, row := range rows {
		k := key(row.At())
		if seen[k] == nil {
			seen[k] = make(map[string]struct{})
		}
		seen[k][row.VisitorID] = struct{}{}
	}

	counts := make(map[string]int64, len(seen))
	for k, visitors := range seen {
		counts[k] = int64(len(visitors))
	}
	return counts
}
