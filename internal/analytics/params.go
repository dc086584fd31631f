package analytics

import (
	"math"

	"tally/internal/timeframe"
)

// DefaultLimit caps ranked tables (top pages, top channels).
const DefaultLimit = 20

// SiteScopedQueryParams carries what every per-site aggregate needs.
type SiteScopedQueryParams struct {
	TimeFrame  *timeframe.TimeFrame
	SiteID     uint
	Domain     string // registered domain, used to drop self-referrals
	DateFormat timeframe.DateFormat
	Limit      int
}

// NewSiteScopedQueryParams creates params for a site with the default limit
// and date format.
func NewSiteScopedQueryParams(timeFrame *timeframe.TimeFrame, siteID uint, domain string) SiteScopedQueryParams {
	return SiteScopedQueryParams{
		TimeFrame:  timeFrame,
		SiteID:     siteID,
		Domain:     domain,
		DateFormat: timeframe.DefaultDateFormat,
		Limit:      DefaultLimit,
	}
}

func (p SiteScopedQueryParams) limit() int {
	if p.Limit <= 0 {
		return DefaultLimit
	}
	return p.Limit
}

// ratio divides, returning 0 for an empty denominator.
func ratio(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}

func roundTo2(value float64) float64 {
	return math.Round(value*100) / 100
}

// percentage of part in total, rounded to 2 decimals.
func percentage(part, total int64) float64 {
	return roundTo2(ratio(float64(part)*100, float64(total)))
}
