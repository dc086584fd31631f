package analytics_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tally/internal/analytics"
	"tally/internal/events"
	"tally/internal/testsupport"
	"tally/internal/timeframe"
)

// seedTraffic records five pageviews over three UTC days:
//
//	v1/s1 2024-07-01 10:00 /          direct
//	v1/s1 2024-07-01 10:05 /pricing   self-referral
//	v2/s2 2024-07-01 12:00 /pricing   google
//	v3/s3 2024-07-02 09:00 /          twitter
//	v1/s4 2024-07-03 23:30 /blog      hacker news
func seedTraffic(t *testing.T, db *gorm.DB) analytics.SiteScopedQueryParams {
	t.Helper()
	owner := testsupport.CreateTestUserForAuth(t, db, "traffic@example.com", "password123")
	site := testsupport.CreateTestSite(t, db, owner.ID, "example.com")

	at := func(day, hour, minute int) time.Time {
		return time.Date(2024, 7, day, hour, minute, 0, 0, time.UTC)
	}
	testsupport.CreateTestVisit(t, db, site.ID, "v1", "s1", "https://example.com/", "", at(1, 10, 0))
	testsupport.CreateTestVisit(t, db, site.ID, "v1", "s1", "https://example.com/pricing", "https://example.com/", at(1, 10, 5))
	testsupport.CreateTestVisit(t, db, site.ID, "v2", "s2", "https://example.com/pricing", "https://www.google.com/search?q=tally", at(1, 12, 0))
	testsupport.CreateTestVisit(t, db, site.ID, "v3", "s3", "https://example.com/", "https://twitter.com/someone", at(2, 9, 0))
	testsupport.CreateTestVisit(t, db, site.ID, "v1", "s4", "https://example.com/blog", "https://news.ycombinator.com/", at(3, 23, 30))

	return paramsFor(t, site.ID, site.Domain,
		time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 3, 23, 59, 59, 0, time.UTC),
		timeframe.GroupingDay, time.UTC)
}

func paramsFor(t *testing.T, siteID uint, domain string, from, to time.Time, grouping timeframe.Grouping, loc *time.Location) analytics.SiteScopedQueryParams {
	t.Helper()
	tf, err := timeframe.NewTimeFrame(from, to, grouping, loc)
	require.NoError(t, err)
	return analytics.NewSiteScopedQueryParams(tf, siteID, domain)
}

func TestGetKPISummary(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	params := seedTraffic(t, db)

	t.Run("computes totals and ratios", func(t *testing.T) {
		summary, err := analytics.GetKPISummary(context.Background(), db, params)
		require.NoError(t, err)

		assert.Equal(t, int64(3), summary.UniqueVisitors)
		assert.Equal(t, int64(4), summary.TotalVisits)
		assert.Equal(t, int64(5), summary.TotalPageviews)
		assert.InDelta(t, 1.25, summary.ViewsPerVisit, 0.001)
		assert.InDelta(t, 0.75, summary.BounceRate, 0.001)
		assert.InDelta(t, 75.0, summary.AverageVisitDuration, 0.01)
	})

	t.Run("bounds are inclusive", func(t *testing.T) {
		exact := paramsFor(t, params.SiteID, params.Domain,
			time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC),
			time.Date(2024, 7, 1, 10, 5, 0, 0, time.UTC),
			timeframe.GroupingDay, time.UTC)

		summary, err := analytics.GetKPISummary(context.Background(), db, exact)
		require.NoError(t, err)
		assert.Equal(t, int64(2), summary.TotalPageviews)
	})

	t.Run("an empty window is all zeros", func(t *testing.T) {
		empty := paramsFor(t, params.SiteID, params.Domain,
			time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC),
			timeframe.GroupingDay, time.UTC)

		summary, err := analytics.GetKPISummary(context.Background(), db, empty)
		require.NoError(t, err)
		assert.Equal(t, analytics.KPISummary{}, summary)
	})

	t.Run("other sites are not counted", func(t *testing.T) {
		other := paramsFor(t, params.SiteID+1000, "", params.TimeFrame.From, params.TimeFrame.To, timeframe.GroupingDay, time.UTC)

		summary, err := analytics.GetKPISummary(context.Background(), db, other)
		require.NoError(t, err)
		assert.Zero(t, summary.TotalPageviews)
	})
}

func TestGetTrafficTrends(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	params := seedTraffic(t, db)

	t.Run("daily buckets in UTC", func(t *testing.T) {
		points, err := analytics.GetTrafficTrends(db, params)
		require.NoError(t, err)

		assert.Equal(t, []analytics.TrafficPoint{
			{Date: "01-07-2024", Visitors: 2, Pageviews: 3},
			{Date: "02-07-2024", Visitors: 1, Pageviews: 1},
			{Date: "03-07-2024", Visitors: 1, Pageviews: 1},
		}, points)
	})

	t.Run("daily buckets follow the user's timezone and gap-fill", func(t *testing.T) {
		tokyo, err := time.LoadLocation("Asia/Tokyo")
		require.NoError(t, err)
		local := paramsFor(t, params.SiteID, params.Domain, params.TimeFrame.From, params.TimeFrame.To, timeframe.GroupingDay, tokyo)
		local.DateFormat = timeframe.DateFormatYMDDash

		points, err := analytics.GetTrafficTrends(db, local)
		require.NoError(t, err)

		assert.Equal(t, []analytics.TrafficPoint{
			{Date: "2024-07-01", Visitors: 2, Pageviews: 3},
			{Date: "2024-07-02", Visitors: 1, Pageviews: 1},
			{Date: "2024-07-03", Visitors: 0, Pageviews: 0},
			{Date: "2024-07-04", Visitors: 1, Pageviews: 1},
		}, points)
	})

	t.Run("monthly labels depend on the date format", func(t *testing.T) {
		monthly := paramsFor(t, params.SiteID, params.Domain,
			time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 7, 31, 0, 0, 0, 0, time.UTC),
			timeframe.GroupingMonth, time.UTC)

		points, err := analytics.GetTrafficTrends(db, monthly)
		require.NoError(t, err)
		assert.Equal(t, []analytics.TrafficPoint{
			{Date: "06/2024", Visitors: 0, Pageviews: 0},
			{Date: "07/2024", Visitors: 3, Pageviews: 5},
		}, points)

		monthly.DateFormat = timeframe.DateFormatYMDSlash
		points, err = analytics.GetTrafficTrends(db, monthly)
		require.NoError(t, err)
		assert.Equal(t, "2024/06", points[0].Date)
	})

	t.Run("yearly buckets", func(t *testing.T) {
		yearly := paramsFor(t, params.SiteID, params.Domain,
			time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
			timeframe.GroupingYear, time.UTC)

		points, err := analytics.GetTrafficTrends(db, yearly)
		require.NoError(t, err)
		assert.Equal(t, []analytics.TrafficPoint{
			{Date: "2023", Visitors: 0, Pageviews: 0},
			{Date: "2024", Visitors: 3, Pageviews: 5},
		}, points)
	})
}

func TestGetAcquisitionTrends(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	params := seedTraffic(t, db)

	points, err := analytics.GetAcquisitionTrends(db, params)
	require.NoError(t, err)

	assert.Equal(t, []analytics.AcquisitionPoint{
		{Date: "01-07-2024", Direct: 1, Organic: 1},
		{Date: "02-07-2024", Social: 1},
		{Date: "03-07-2024", Referral: 1},
	}, points)
}

func TestGetTopPages(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	params := seedTraffic(t, db)

	t.Run("ranks by visitors, pageviews and url", func(t *testing.T) {
		pages, err := analytics.GetTopPages(db, params)
		require.NoError(t, err)

		assert.Equal(t, []analytics.PageStat{
			{URL: "https://example.com/", Path: "/", Pageviews: 2, Visitors: 2},
			{URL: "https://example.com/pricing", Path: "/pricing", Pageviews: 2, Visitors: 2},
			{URL: "https://example.com/blog", Path: "/blog", Pageviews: 1, Visitors: 1},
		}, pages)
	})

	t.Run("honors the limit", func(t *testing.T) {
		limited := params
		limited.Limit = 1
		pages, err := analytics.GetTopPages(db, limited)
		require.NoError(t, err)
		assert.Len(t, pages, 1)
	})
}

func TestPathLabel(t *testing.T) {
	assert.Equal(t, "/docs/intro", analytics.PathLabel("https://example.com/docs/intro?ref=nav"))
	assert.Equal(t, "/", analytics.PathLabel("https://example.com"))
	assert.Equal(t, "/relative", analytics.PathLabel("/relative"))
	assert.Equal(t, "%zz", analytics.PathLabel("%zz"))
}

func TestGetTopChannels(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	params := seedTraffic(t, db)

	channels, err := analytics.GetTopChannels(db, params)
	require.NoError(t, err)

	assert.Equal(t, []analytics.ChannelStat{
		{Source: "Direct", Visitors: 1, Visits: 1},
		{Source: "google.com", Visitors: 1, Visits: 1},
		{Source: "news.ycombinator.com", Visitors: 1, Visits: 1},
		{Source: "twitter.com", Visitors: 1, Visits: 1},
	}, channels)
}

func TestGetSessionsByDevice(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	owner := testsupport.CreateTestUserForAuth(t, db, "devices@example.com", "password123")
	site := testsupport.CreateTestSite(t, db, owner.ID, "devices.com")

	day := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	params := paramsFor(t, site.ID, site.Domain, timeframe.StartOfDay(day, time.UTC), timeframe.EndOfDay(day, time.UTC), timeframe.GroupingDay, time.UTC)

	t.Run("zero sessions gives zeros", func(t *testing.T) {
		share, err := analytics.GetSessionsByDevice(db, params)
		require.NoError(t, err)
		assert.Equal(t, analytics.DeviceShare{}, share)
	})

	t.Run("splits sessions and keeps unknown labels in the total", func(t *testing.T) {
		devices := map[string]string{
			"s1": "desktop",
			"s2": "Desktop",
			"s3": "desktop",
			"s4": "mobile",
			"s5": "tablet",
			"s6": "smart-fridge",
		}
		for session, device := range devices {
			for i := 0; i < 2; i++ {
				require.NoError(t, db.Create(&events.Visit{
					SiteID:     site.ID,
					VisitorID:  "visitor-" + session,
					SessionID:  session,
					URL:        "https://devices.com/",
					DeviceType: device,
					CreatedAt:  day.Add(time.Duration(i) * time.Minute),
				}).Error)
			}
		}

		share, err := analytics.GetSessionsByDevice(db, params)
		require.NoError(t, err)
		assert.Equal(t, analytics.DeviceShare{Desktop: 50, Mobile: 16.67, Tablet: 16.67}, share)
	})
}

func TestGetVisitorsByCountry(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	owner := testsupport.CreateTestUserForAuth(t, db, "geo@example.com", "password123")
	site := testsupport.CreateTestSite(t, db, owner.ID, "geo.com")

	day := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	country := func(code string) *string { return &code }
	visits := []events.Visit{
		{VisitorID: "v1", SessionID: "s1", Country: country("US")},
		{VisitorID: "v2", SessionID: "s2", Country: country("us")},
		{VisitorID: "v3", SessionID: "s3", Country: country("DE")},
		{VisitorID: "v4", SessionID: "s4"},
	}
	for _, visit := range visits {
		visit.SiteID = site.ID
		visit.URL = "https://geo.com/"
		visit.CreatedAt = day
		require.NoError(t, db.Create(&visit).Error)
	}

	params := paramsFor(t, site.ID, site.Domain, timeframe.StartOfDay(day, time.UTC), timeframe.EndOfDay(day, time.UTC), timeframe.GroupingDay, time.UTC)
	shares, err := analytics.GetVisitorsByCountry(db, params)
	require.NoError(t, err)

	assert.Equal(t, []analytics.CountryShare{
		{Country: "US", Name: "United States", Visitors: 2, Percentage: 50},
		{Country: "DE", Name: "Germany", Visitors: 1, Percentage: 25},
	}, shares)
}

func TestCountryName(t *testing.T) {
	assert.Equal(t, "France", analytics.CountryName("FR"))
	assert.Equal(t, "XX", analytics.CountryName("xx"))
}

func TestGetLiveStats(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	owner := testsupport.CreateTestUserForAuth(t, db, "live@example.com", "password123")
	site := testsupport.CreateTestSite(t, db, owner.ID, "live.com")

	now := time.Date(2024, 7, 10, 12, 0, 0, 0, time.UTC)
	hit := func(visitor string, at time.Time) {
		testsupport.CreateTestVisit(t, db, site.ID, visitor, visitor+"-session", "https://live.com/", "", at)
	}
	hit("v1", now.Add(-2*time.Minute))
	hit("v2", now.Add(-10*time.Minute))
	hit("v3", now.Add(-3*time.Hour))
	hit("v1", time.Date(2024, 7, 8, 10, 0, 0, 0, time.UTC))
	hit("v4", time.Date(2024, 7, 8, 11, 0, 0, 0, time.UTC))
	hit("v5", time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC))
	hit("v6", time.Date(2024, 6, 5, 9, 0, 0, 0, time.UTC))

	t.Run("in UTC", func(t *testing.T) {
		stats, err := analytics.GetLiveStats(context.Background(), db, site.ID, time.UTC, now)
		require.NoError(t, err)

		assert.Equal(t, int64(1), stats.LiveUsers)
		assert.Equal(t, int64(3), stats.AvgDailyUsers)
		assert.InDelta(t, 2.5, stats.AvgWeeklyUsers, 0.001)
		assert.InDelta(t, 2.0, stats.AvgMonthlyUsers, 0.001)
	})

	t.Run("today starts at local midnight", func(t *testing.T) {
		// 12:00 UTC is 13:00 in Lagos and 05:00 in Los Angeles; the
		// three-hour-old hit is 09:00 UTC, which is 02:00 in Los Angeles.
		la, err := time.LoadLocation("America/Los_Angeles")
		require.NoError(t, err)

		stats, err := analytics.GetLiveStats(context.Background(), db, site.ID, la, now)
		require.NoError(t, err)
		assert.Equal(t, int64(3), stats.AvgDailyUsers)

		kiritimati, err := time.LoadLocation("Pacific/Kiritimati")
		require.NoError(t, err)

		// UTC+14: local today began at 10:00 UTC, after the 09:00 hit.
		stats, err = analytics.GetLiveStats(context.Background(), db, site.ID, kiritimati, now)
		require.NoError(t, err)
		assert.Equal(t, int64(2), stats.AvgDailyUsers)
	})
}
