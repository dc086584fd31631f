package analytics

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"tally/internal/pkg/async"
	"tally/internal/timeframe"
)

const liveWindow = 5 * time.Minute

// LiveStats is the realtime panel of a site.
type LiveStats struct {
	LiveUsers       int64   `json:"liveUsers"`
	AvgDailyUsers   int64   `json:"avgDailyUsers"`
	AvgWeeklyUsers  float64 `json:"avgWeeklyUsers"`
	AvgMonthlyUsers float64 `json:"avgMonthlyUsers"`
}

const (
	taskLive    = "live"
	taskToday   = "today"
	taskHistory = "history"
)

// GetLiveStats reports current activity relative to now. Days are calendar
// days in loc.
func GetLiveStats(ctx context.Context, db *gorm.DB, siteID uint, loc *time.Location, now time.Time) (LiveStats, error) {
	if loc == nil {
		loc = time.UTC
	}
	now = now.UTC()

	tasks := []async.Task{
		{
			Name: taskLive,
			Execute: func(ctx context.Context) (interface{}, error) {
				return distinctVisitorsBetween(db.WithContext(ctx), siteID, now.Add(-liveWindow), now)
			},
		},
		{
			Name: taskToday,
			Execute: func(ctx context.Context) (interface{}, error) {
				return distinctVisitorsBetween(db.WithContext(ctx), siteID, timeframe.StartOfDay(now, loc), now)
			},
		},
		{
			Name: taskHistory,
			Execute: func(ctx context.Context) (interface{}, error) {
				return fetchVisitorMinutes(db.WithContext(ctx), siteID, now.AddDate(0, 0, -30), now)
			},
		},
	}

	pool := async.NewPool(len(tasks))
	results := pool.Execute(ctx, tasks)
	if err := results.FirstError(taskLive, taskToday, taskHistory); err != nil {
		return LiveStats{}, err
	}

	history := results[taskHistory].Data.([]visitorMinute)
	weekStart := now.AddDate(0, 0, -7)
	var lastWeek []visitorMinute
	for _, row := range history {
		if !row.At().Before(weekStart.Truncate(time.Minute)) {
			lastWeek = append(lastWeek, row)
		}
	}

	return LiveStats{
		LiveUsers:       results[taskLive].Data.(int64),
		AvgDailyUsers:   results[taskToday].Data.(int64),
		AvgWeeklyUsers:  averagePerActiveDay(lastWeek, loc),
		AvgMonthlyUsers: averagePerActiveDay(history, loc),
	}, nil
}

func distinctVisitorsBetween(db *gorm.DB, siteID uint, from, to time.Time) (int64, error) {
	var count int64

	query := `
    SELECT COUNT(DISTINCT visitor_id)
    FROM visits
    WHERE site_id = ?
    AND created_at BETWEEN ? AND ?
    `

	err := db.Raw(query, siteID, from.UTC(), to.UTC()).Scan(&count).Error
	if err != nil {
		return 0, fmt.Errorf("error fetching distinct visitors: %w", err)
	}
	return count, nil
}

// averagePerActiveDay sums per-day distinct visitors and divides by the
// number of days that had any.
func averagePerActiveDay(rows []visitorMinute, loc *time.Location) float64 {
	perDay := distinctPerBucket(rows, func(t time.Time) string {
		return t.In(loc).Format("2006-01-02")
	})
	if len(perDay) == 0 {
		return 0
	}

	var sum int64
	for _, count := range perDay {
		sum += count
	}
	return roundTo2(float64(sum) / float64(len(perDay)))
}
