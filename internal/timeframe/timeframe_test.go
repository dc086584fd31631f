package timeframe_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/timeframe"
)

// MockTimeProvider implements the TimeProvider interface for testing
type MockTimeProvider struct {
	FixedTime time.Time
}

func (m *MockTimeProvider) Now(loc *time.Location) time.Time {
	return m.FixedTime.In(loc)
}

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestParseGrouping(t *testing.T) {
	for input, expected := range map[string]timeframe.Grouping{
		"":      timeframe.GroupingDay,
		"day":   timeframe.GroupingDay,
		"Month": timeframe.GroupingMonth,
		"YEAR":  timeframe.GroupingYear,
	} {
		grouping, err := timeframe.ParseGrouping(input)
		require.NoError(t, err, input)
		assert.Equal(t, expected, grouping)
	}

	_, err := timeframe.ParseGrouping("week")
	assert.Error(t, err)
}

func TestDateFormats(t *testing.T) {
	for _, f := range timeframe.SupportedDateFormats() {
		parsed, ok := timeframe.ParseDateFormat(string(f))
		assert.True(t, ok, f)
		assert.Equal(t, f, parsed)
	}

	_, ok := timeframe.ParseDateFormat("YYYY.MM.DD")
	assert.False(t, ok)

	assert.Equal(t, timeframe.DefaultDateFormat, timeframe.DateFormat("").OrDefault())
	assert.Equal(t, "2006/01", timeframe.DateFormatYMDDash.MonthLayout())
	assert.Equal(t, "01/2006", timeframe.DateFormatMDYSlash.MonthLayout())
	assert.Equal(t, "01/2006", timeframe.DateFormat("").MonthLayout())
}

func TestBucketsGapFill(t *testing.T) {
	t.Run("daily buckets include both ends", func(t *testing.T) {
		from := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
		to := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
		tf, err := timeframe.NewTimeFrame(from, to, timeframe.GroupingDay, time.UTC)
		require.NoError(t, err)

		buckets := tf.Buckets()
		require.Len(t, buckets, 4)
		assert.Equal(t, "2024-03-01", buckets[0].Key)
		assert.Equal(t, "2024-03-04", buckets[3].Key)
		assert.Equal(t, "01-03-2024", tf.Label(buckets[0].Start, timeframe.DateFormatDMYDash))
		assert.Equal(t, "2024/03/04", tf.Label(buckets[3].Start, timeframe.DateFormatYMDSlash))
	})

	t.Run("monthly buckets start at the month containing startAt", func(t *testing.T) {
		from := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
		to := time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)
		tf, err := timeframe.NewTimeFrame(from, to, timeframe.GroupingMonth, time.UTC)
		require.NoError(t, err)

		buckets := tf.Buckets()
		require.Len(t, buckets, 4)
		assert.Equal(t, "2024-01", buckets[0].Key)
		assert.Equal(t, "2024-04", buckets[3].Key)
		assert.Equal(t, "01/2024", tf.Label(buckets[0].Start, timeframe.DateFormatDMYDash))
		assert.Equal(t, "2024/01", tf.Label(buckets[0].Start, timeframe.DateFormatYMDDash))
	})

	t.Run("yearly buckets", func(t *testing.T) {
		from := time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		tf, err := timeframe.NewTimeFrame(from, to, timeframe.GroupingYear, time.UTC)
		require.NoError(t, err)

		buckets := tf.Buckets()
		require.Len(t, buckets, 3)
		assert.Equal(t, "2022", tf.Label(buckets[0].Start, timeframe.DefaultDateFormat))
		assert.Equal(t, "2024", buckets[2].Key)
	})

	t.Run("buckets follow the user's timezone", func(t *testing.T) {
		madrid := mustLoad(t, "Europe/Madrid")
		// Midnight March 2nd in Madrid is still March 1st in UTC.
		from := time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC)
		to := time.Date(2024, 3, 2, 22, 59, 59, 0, time.UTC)
		tf, err := timeframe.NewTimeFrame(from, to, timeframe.GroupingDay, madrid)
		require.NoError(t, err)

		buckets := tf.Buckets()
		require.Len(t, buckets, 1)
		assert.Equal(t, "2024-03-02", buckets[0].Key)
		assert.Equal(t, "2024-03-02", tf.BucketKey(time.Date(2024, 3, 1, 23, 30, 0, 0, time.UTC)))
	})

	t.Run("reversed range is rejected", func(t *testing.T) {
		_, err := timeframe.NewTimeFrame(time.Now(), time.Now().Add(-time.Hour), timeframe.GroupingDay, time.UTC)
		assert.ErrorIs(t, err, timeframe.ErrInvalidRange)
	})

	t.Run("series covers every unit up to the limit", func(t *testing.T) {
		from := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
		to := from.AddDate(0, 0, timeframe.MaxPoints-1)
		tf, err := timeframe.NewTimeFrame(from, to, timeframe.GroupingDay, time.UTC)
		require.NoError(t, err)

		buckets := tf.Buckets()
		require.Len(t, buckets, timeframe.MaxPoints)
		assert.Equal(t, to.Format("2006-01-02"), buckets[len(buckets)-1].Key)
	})

	t.Run("too many units is an error, not a truncated series", func(t *testing.T) {
		from := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC)

		_, err := timeframe.NewTimeFrame(from, to, timeframe.GroupingDay, time.UTC)
		assert.ErrorIs(t, err, timeframe.ErrRangeTooLong)

		tf, err := timeframe.NewTimeFrame(from, to, timeframe.GroupingMonth, time.UTC)
		require.NoError(t, err)
		buckets := tf.Buckets()
		require.Len(t, buckets, 36)
		assert.Equal(t, "2023-12", buckets[35].Key)
	})
}

func TestLoadLocation(t *testing.T) {
	loc, err := timeframe.LoadLocation("")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	loc, err = timeframe.LoadLocation("America/New_York")
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())

	_, err = timeframe.LoadLocation("Mars/Olympus")
	assert.Error(t, err)
}
