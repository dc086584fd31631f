package analytics

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"tally/internal/pkg/async"
)

// KPISummary is the headline numbers of a site over a time frame.
type KPISummary struct {
	UniqueVisitors       int64   `json:"uniqueVisitors"`
	TotalVisits          int64   `json:"totalVisits"`
	TotalPageviews       int64   `json:"totalPageviews"`
	ViewsPerVisit        float64 `json:"viewsPerVisit"`
	BounceRate           float64 `json:"bounceRate"`
	AverageVisitDuration float64 `json:"averageVisitDuration"`
}

type kpiTotals struct {
	Visitors  int64
	Sessions  int64
	Pageviews int64
}

const (
	taskTotals   = "totals"
	taskBounces  = "bounces"
	taskDuration = "duration"
)

// GetKPISummary runs the KPI sub-queries concurrently. Any failed sub-query
// fails the whole summary.
func GetKPISummary(ctx context.Context, db *gorm.DB, params SiteScopedQueryParams) (KPISummary, error) {
	tasks := []async.Task{
		{
			Name: taskTotals,
			Execute: func(ctx context.Context) (interface{}, error) {
				return kpiTotalsInTimeFrame(db.WithContext(ctx), params)
			},
		},
		{
			Name: taskBounces,
			Execute: func(ctx context.Context) (interface{}, error) {
				return bouncedSessionsInTimeFrame(db.WithContext(ctx), params)
			},
		},
		{
			Name: taskDuration,
			Execute: func(ctx context.Context) (interface{}, error) {
				return averageSessionDurationInTimeFrame(db.WithContext(ctx), params)
			},
		},
	}

	pool := async.NewPool(len(tasks))
	results := pool.Execute(ctx, tasks)
	if err := results.FirstError(taskTotals, taskBounces, taskDuration); err != nil {
		return KPISummary{}, err
	}

	totals := results[taskTotals].Data.(kpiTotals)
	bounces := results[taskBounces].Data.(int64)
	duration := results[taskDuration].Data.(float64)

	return KPISummary{
		UniqueVisitors:       totals.Visitors,
		TotalVisits:          totals.Sessions,
		TotalPageviews:       totals.Pageviews,
		ViewsPerVisit:        ratio(float64(totals.Pageviews), float64(totals.Sessions)),
		BounceRate:           ratio(float64(bounces), float64(totals.Sessions)),
		AverageVisitDuration: duration,
	}, nil
}

func kpiTotalsInTimeFrame(db *gorm.DB, params SiteScopedQueryParams) (kpiTotals, error) {
	var totals kpiTotals

	query := `
    SELECT
        COUNT(DISTINCT visitor_id) as visitors,
        COUNT(DISTINCT session_id) as sessions,
        COUNT(*) as pageviews
    FROM visits
    WHERE site_id = ?
    AND created_at BETWEEN ? AND ?
    `

	err := db.Raw(query,
		params.SiteID,
		params.TimeFrame.From.UTC(),
		params.TimeFrame.To.UTC(),
	).Scan(&totals).Error
	if err != nil {
		return kpiTotals{}, fmt.Errorf("error fetching visit totals: %w", err)
	}
	return totals, nil
}

func bouncedSessionsInTimeFrame(db *gorm.DB, params SiteScopedQueryParams) (int64, error) {
	var bounced int64

	query := `
    SELECT COUNT(*)
    FROM (
        SELECT session_id
        FROM visits
        WHERE site_id = ?
        AND created_at BETWEEN ? AND ?
        GROUP BY session_id
        HAVING COUNT(*) = 1
    ) single_page_sessions
    `

	err := db.Raw(query,
		params.SiteID,
		params.TimeFrame.From.UTC(),
		params.TimeFrame.To.UTC(),
	).Scan(&bounced).Error
	if err != nil {
		return 0, fmt.Errorf("error fetching bounced sessions: %w", err)
	}
	return bounced, nil
}

// averageSessionDurationInTimeFrame is the mean of (last - first) hit per
// session, in seconds.
func averageSessionDurationInTimeFrame(db *gorm.DB, params SiteScopedQueryParams) (float64, error) {
	var average float64

	query := `
    SELECT COALESCE(AVG((julianday(last_hit) - julianday(first_hit)) * 86400.0), 0)
    FROM (
        SELECT MIN(created_at) as first_hit, MAX(created_at) as last_hit
        FROM visits
        WHERE site_id = ?
        AND created_at BETWEEN ? AND ?
        GROUP BY session_id
    ) sessions
    `

	err := db.Raw(query,
		params.SiteID,
		params.TimeFrame.From.UTC(),
		params.TimeFrame.To.UTC(),
	).Scan(&average).Error
	if err != nil {
		return 0, fmt.Errorf("error fetching average visit duration: %w", err)
	}
	return roundTo2(average), nil
}
