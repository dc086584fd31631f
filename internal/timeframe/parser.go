package timeframe

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultRangeDays is the window used when startAt is omitted.
const DefaultRangeDays = 30

// ErrInvalidRange is returned when startAt falls after endAt.
var ErrInvalidRange = errors.New("startAt must not be after endAt")

// ErrRangeTooLong is returned when a window spans more than MaxPoints buckets
// of its grouping.
var ErrRangeTooLong = errors.New("range spans too many buckets")

type TimeProvider interface {
	Now(loc *time.Location) time.Time
}

// DefaultTimeProvider reads the system clock.
type DefaultTimeProvider struct{}

func (p *DefaultTimeProvider) Now(loc *time.Location) time.Time {
	return time.Now().In(loc)
}

type TimeFrameParserParams struct {
	StartAt  string
	EndAt    string
	Tz       *time.Location
	Grouping Grouping
}

type TimeFrameParser struct {
	timeProvider TimeProvider
}

func NewTimeFrameParser(timeProvider ...TimeProvider) *TimeFrameParser {
	var provider TimeProvider = &DefaultTimeProvider{}
	if len(timeProvider) > 0 && timeProvider[0] != nil {
		provider = timeProvider[0]
	}

	return &TimeFrameParser{
		timeProvider: provider,
	}
}

// ParseTimeFrame turns startAt/endAt inputs into an inclusive UTC window.
// Date-only values are read in the user's timezone: startAt at the start of
// that day, endAt at its end. Missing values default to the last 30 days.
func (p *TimeFrameParser) ParseTimeFrame(params TimeFrameParserParams) (*TimeFrame, error) {
	loc := params.Tz
	if loc == nil {
		loc = time.UTC
	}
	now := p.timeProvider.Now(loc)

	from, err := ParseBound(params.StartAt, loc, false)
	if err != nil {
		return nil, fmt.Errorf("invalid startAt: %w", err)
	}
	if from.IsZero() {
		from = StartOfDay(now, loc).AddDate(0, 0, -DefaultRangeDays)
	}

	to, err := ParseBound(params.EndAt, loc, true)
	if err != nil {
		return nil, fmt.Errorf("invalid endAt: %w", err)
	}
	if to.IsZero() {
		to = now
	}

	if from.After(to) {
		return nil, ErrInvalidRange
	}

	return NewTimeFrame(from, to, params.Grouping, loc)
}

// CheckBounds validates startAt/endAt without a timezone. Malformed values
// and a reversed pair of the same kind (two instants or two dates) are
// rejected, as is a pair of dates spanning more than MaxPoints buckets.
// Anything that depends on the user's timezone is left to ParseTimeFrame.
func CheckBounds(startAt, endAt string, grouping Grouping) error {
	from, fromIsDate, err := boundKind(startAt)
	if err != nil {
		return fmt.Errorf("invalid startAt: %w", err)
	}
	to, toIsDate, err := boundKind(endAt)
	if err != nil {
		return fmt.Errorf("invalid endAt: %w", err)
	}
	if from.IsZero() || to.IsZero() || fromIsDate != toIsDate {
		return nil
	}
	if from.After(to) {
		return ErrInvalidRange
	}
	if fromIsDate {
		if _, err := NewTimeFrame(from, EndOfDay(to, time.UTC), grouping, time.UTC); err != nil {
			return err
		}
	}
	return nil
}

func boundKind(value string) (time.Time, bool, error) {
	t, err := ParseBound(value, time.UTC, false)
	if err != nil || t.IsZero() {
		return t, false, err
	}
	_, rfcErr := time.Parse(time.RFC3339, strings.TrimSpace(value))
	return t, rfcErr != nil, nil
}

// ParseBound parses an RFC3339 instant or a YYYY-MM-DD date. An empty value
// yields the zero time.
func ParseBound(value string, loc *time.Location, isEnd bool) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}

	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}

	date, err := time.ParseInLocation("2006-01-02", value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC3339 or YYYY-MM-DD, got %q", value)
	}
	if isEnd {
		return EndOfDay(date, loc).UTC(), nil
	}
	return date.UTC(), nil
}
