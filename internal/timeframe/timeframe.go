package timeframe

import (
	"fmt"
	"strings"
	"time"
)

// Grouping is the calendar unit a trend series is bucketed by.
type Grouping string

const (
	GroupingDay   Grouping = "day"
	GroupingMonth Grouping = "month"
	GroupingYear  Grouping = "year"
)

// ParseGrouping accepts day/month/year (case-insensitive). Empty means day.
func ParseGrouping(value string) (Grouping, error) {
	switch Grouping(strings.ToLower(strings.TrimSpace(value))) {
	case "", GroupingDay:
		return GroupingDay, nil
	case GroupingMonth:
		return GroupingMonth, nil
	case GroupingYear:
		return GroupingYear, nil
	default:
		return "", fmt.Errorf("unknown grouping: %s", value)
	}
}

// DateFormat is a user-facing date pattern.
type DateFormat string

const (
	DateFormatDMYDash  DateFormat = "DD-MM-YYYY"
	DateFormatMDYDash  DateFormat = "MM-DD-YYYY"
	DateFormatYMDDash  DateFormat = "YYYY-MM-DD"
	DateFormatDMYSlash DateFormat = "DD/MM/YYYY"
	DateFormatMDYSlash DateFormat = "MM/DD/YYYY"
	DateFormatYMDSlash DateFormat = "YYYY/MM/DD"

	DefaultDateFormat = DateFormatDMYDash
	DefaultTimezone   = "UTC"
)

var dateFormatLayouts = map[DateFormat]string{
	DateFormatDMYDash:  "02-01-2006",
	DateFormatMDYDash:  "01-02-2006",
	DateFormatYMDDash:  "2006-01-02",
	DateFormatDMYSlash: "02/01/2006",
	DateFormatMDYSlash: "01/02/2006",
	DateFormatYMDSlash: "2006/01/02",
}

// SupportedDateFormats lists every accepted DateFormat.
func SupportedDateFormats() []DateFormat {
	return []DateFormat{
		DateFormatDMYDash, DateFormatMDYDash, DateFormatYMDDash,
		DateFormatDMYSlash, DateFormatMDYSlash, DateFormatYMDSlash,
	}
}

// ParseDateFormat reports whether value is one of the supported formats.
func ParseDateFormat(value string) (DateFormat, bool) {
	f := DateFormat(strings.TrimSpace(value))
	_, ok := dateFormatLayouts[f]
	return f, ok
}

// OrDefault returns DefaultDateFormat for unset or unknown formats.
func (f DateFormat) OrDefault() DateFormat {
	if _, ok := dateFormatLayouts[f]; ok {
		return f
	}
	return DefaultDateFormat
}

// Layout is the Go time layout of a day label.
func (f DateFormat) Layout() string {
	return dateFormatLayouts[f.OrDefault()]
}

// MonthLayout keeps the year first when the day format does.
func (f DateFormat) MonthLayout() string {
	if strings.HasPrefix(string(f.OrDefault()), "YYYY") {
		return "2006/01"
	}
	return "01/2006"
}

// LoadLocation resolves an IANA zone, treating empty as UTC.
func LoadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" || strings.EqualFold(tz, DefaultTimezone) {
		return time.UTC, nil
	}
	return time.LoadLocation(tz)
}

// MaxPoints bounds a gap-filled series. Longer windows must use a coarser
// grouping.
const MaxPoints = 1000

// TimeFrame is an inclusive [From, To] window bucketed in the user's timezone.
type TimeFrame struct {
	From     time.Time
	To       time.Time
	Grouping Grouping
	Tz       *time.Location
}

// Bucket is one calendar unit of a series. Key is stable for lookups,
// Start is the local start of the unit.
type Bucket struct {
	Key   string
	Start time.Time
}

func NewTimeFrame(from, to time.Time, grouping Grouping, tz *time.Location) (*TimeFrame, error) {
	if from.After(to) {
		return nil, ErrInvalidRange
	}
	if tz == nil {
		tz = time.UTC
	}
	if grouping == "" {
		grouping = GroupingDay
	}
	tf := &TimeFrame{From: from.UTC(), To: to.UTC(), Grouping: grouping, Tz: tz}
	if tf.bucketCount(MaxPoints+1) > MaxPoints {
		return nil, ErrRangeTooLong
	}
	return tf, nil
}

// next advances a bucket start by one calendar unit.
func (tf *TimeFrame) next(current time.Time) time.Time {
	switch tf.Grouping {
	case GroupingYear:
		return current.AddDate(1, 0, 0)
	case GroupingMonth:
		return current.AddDate(0, 1, 0)
	default:
		return current.AddDate(0, 0, 1)
	}
}

// bucketCount counts the units spanned by the frame, stopping at limit.
func (tf *TimeFrame) bucketCount(limit int) int {
	current := TruncateToBucketInTimezone(tf.From, tf.Grouping, tf.Tz)
	end := tf.To.In(tf.Tz)

	count := 0
	for count < limit && !current.After(end) {
		count++
		current = tf.next(current)
	}
	return count
}

func (tf *TimeFrame) keyLayout() string {
	switch tf.Grouping {
	case GroupingYear:
		return "2006"
	case GroupingMonth:
		return "2006-01"
	default:
		return "2006-01-02"
	}
}

// BucketKey maps an instant onto the key of the bucket containing it.
func (tf *TimeFrame) BucketKey(t time.Time) string {
	return t.In(tf.Tz).Format(tf.keyLayout())
}

// Buckets enumerates every unit from the start of From's unit through To,
// ascending, in the frame's timezone.
func (tf *TimeFrame) Buckets() []Bucket {
	current := TruncateToBucketInTimezone(tf.From, tf.Grouping, tf.Tz)
	end := tf.To.In(tf.Tz)

	var buckets []Bucket
	for !current.After(end) {
		buckets = append(buckets, Bucket{Key: current.Format(tf.keyLayout()), Start: current})
		current = tf.next(current)
	}
	return buckets
}

// Label renders a bucket start for display.
func (tf *TimeFrame) Label(start time.Time, format DateFormat) string {
	switch tf.Grouping {
	case GroupingYear:
		return start.Format("2006")
	case GroupingMonth:
		return start.Format(format.MonthLayout())
	default:
		return start.Format(format.Layout())
	}
}

// TruncateToBucketInTimezone truncates a time to the start of its unit in loc.
func TruncateToBucketInTimezone(t time.Time, grouping Grouping, loc *time.Location) time.Time {
	localTime := t.In(loc)
	year, month, day := localTime.Date()

	switch grouping {
	case GroupingYear:
		return time.Date(year, 1, 1, 0, 0, 0, 0, loc)
	case GroupingMonth:
		return time.Date(year, month, 1, 0, 0, 0, 0, loc)
	default:
		return time.Date(year, month, day, 0, 0, 0, 0, loc)
	}
}

// StartOfDay returns local midnight of t's day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	return TruncateToBucketInTimezone(t, GroupingDay, loc)
}

// EndOfDay returns the last nanosecond of t's day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, 1).Add(-time.Nanosecond)
}
