package analytics

import (
	"fmt"
	"net/url"

	"gorm.io/gorm"
)

// PageStat is one row of the top pages table.
type PageStat struct {
	URL       string `json:"url"`
	Path      string `json:"path"`
	Pageviews int64  `json:"pageviews"`
	Visitors  int64  `json:"visitors"`
}

// GetTopPages ranks URLs by distinct visitors, then pageviews, then URL.
func GetTopPages(db *gorm.DB, params SiteScopedQueryParams) ([]PageStat, error) {
	var rawResults []struct {
		URL       string
		Pageviews int64
		Visitors  int64
	}

	query := `
    SELECT
        url,
        COUNT(*) as pageviews,
        COUNT(DISTINCT visitor_id) as visitors
    FROM visits
    WHERE site_id = ?
    AND created_at BETWEEN ? AND ?
    GROUP BY url
    ORDER BY visitors DESC, pageviews DESC, url ASC
    LIMIT ?
    `

	err := db.Raw(query,
		params.SiteID,
		params.TimeFrame.From.UTC(),
		params.TimeFrame.To.UTC(),
		params.limit(),
	).Scan(&rawResults).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching top pages: %w", err)
	}

	results := make([]PageStat, len(rawResults))
	for i, r := range rawResults {
		results[i] = PageStat{
			URL:       r.URL,
			Path:      PathLabel(r.URL),
			Pageviews: r.Pageviews,
			Visitors:  r.Visitors,
		}
	}
	return results, nil
}

// PathLabel is the path of a page URL, "/" for a bare origin, or the raw
// value when it does not parse.
func PathLabel(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if parsed.Path == "" {
		if parsed.Host == "" {
			return rawURL
		}
		return "/"
	}
	return parsed.Path
}
