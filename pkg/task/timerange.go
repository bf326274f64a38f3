package task

import (
	"fmt"
	"time"

	"github.com/stagelift/stagelift/pkg/catalog"
	"github.com/stagelift/stagelift/pkg/config"
)

// Bounds substituted for unset range ends.
const (
	MinStart = "1900-01-01T00:00:00"
	MaxEnd   = "2100-12-31T23:59:59"
)

const dateOnlyLen = len("2006-01-02")

// TimeRange is the effective extraction window of a task against one table.
// Start and End keep their original string form; empty means unbounded.
type TimeRange struct {
	Start string
	End   string
	Loc   *time.Location
}

// TimeRangeFor builds the window for a task's options against a table.
// An unset start falls back to the table's watermark when the table tracks
// one; unset ends stay open and read as MinStart / MaxEnd.
func TimeRangeFor(options TaskOptions, table *catalog.Table, marks WatermarkGetter) (TimeRange, error) {
	loc, err := time.LoadLocation(table.Timezone())
	if err != nil {
		return TimeRange{}, fmt.Errorf("loading timezone %q: %w", table.Timezone(), err)
	}
	start, end := options.Start, options.End
	if start == "" && table.Meta.TimestampField != "" && marks != nil {
		start, err = marks.Latest(table)
		if err != nil {
			return TimeRange{}, err
		}
	}
	return TimeRange{Start: start, End: end, Loc: loc}, nil
}

// StartString returns the start bound, substituting MinStart when unset.
func (r TimeRange) StartString() string {
	if r.Start != "" {
		return r.Start
	}
	return MinStart
}

// EndString returns the end bound, substituting MaxEnd when unset.
func (r TimeRange) EndString() string {
	if r.End != "" {
		return r.End
	}
	return MaxEnd
}

// StartTime parses the start bound. Date-only strings read as start of day.
func (r TimeRange) StartTime() (time.Time, error) {
	s := r.StartString()
	if len(s) == dateOnlyLen {
		s += "T00:00:00"
	}
	return r.parse(s)
}

// EndTime parses the end bound. Date-only strings read as end of day.
func (r TimeRange) EndTime() (time.Time, error) {
	s := r.EndString()
	if len(s) == dateOnlyLen {
		s += "T23:59:59"
	}
	return r.parse(s)
}

// StartDateString returns the start bound truncated to its date.
func (r TimeRange) StartDateString() (string, error) {
	t, err := r.StartTime()
	if err != nil {
		return "", err
	}
	return t.Format(time.DateOnly), nil
}

// EndDateString returns the end bound truncated to its date.
func (r TimeRange) EndDateString() (string, error) {
	t, err := r.EndTime()
	if err != nil {
		return "", err
	}
	return t.Format(time.DateOnly), nil
}

// BatchN returns the inclusive day span between start and end. Both bounds
// must be explicitly set.
func (r TimeRange) BatchN() (int, error) {
	if r.Start == "" || r.End == "" {
		return 0, fmt.Errorf("%w: both start and end are required for batched tasks", ErrInvalidRange)
	}
	start, end, err := r.dates()
	if err != nil {
		return 0, err
	}
	return int(end.Sub(start).Hours()/24) + 1, nil
}

// BatchDate returns start + n days, failing when it exceeds the end bound.
func (r TimeRange) BatchDate(n int) (time.Time, error) {
	if r.Start == "" || r.End == "" {
		return time.Time{}, fmt.Errorf("%w: both start and end are required for batched tasks", ErrInvalidRange)
	}
	start, end, err := r.dates()
	if err != nil {
		return time.Time{}, err
	}
	date := start.AddDate(0, 0, n)
	if date.After(end) {
		return time.Time{}, fmt.Errorf("%w: batch date %s exceeds end date %s", ErrInvalidRange,
			date.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	return date, nil
}

func (r TimeRange) dates() (start, end time.Time, err error) {
	startTime, err := r.StartTime()
	if err != nil {
		return start, end, err
	}
	endTime, err := r.EndTime()
	if err != nil {
		return start, end, err
	}
	return truncateToDay(startTime), truncateToDay(endTime), nil
}

func (r TimeRange) parse(s string) (time.Time, error) {
	loc := r.Loc
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(config.TimestampFormat, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: unable to parse %q, required format: %s",
			ErrInvalidDateFormat, s, config.TimestampFormat)
	}
	return t, nil
}

// truncateToDay normalizes to UTC midnight so day arithmetic is exact
// across DST transitions.
func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
