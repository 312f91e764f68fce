package schedule

import (
	"time"

	"weekcal/internal/model"
)

// BoundLayout is the wire format for week bounds: UTC with milliseconds.
const BoundLayout = "2006-01-02T15:04:05.000Z"

// mondayOffset returns how many days lie between the Monday of now's week
// and now itself. Sunday is the last day of the week.
func mondayOffset(d time.Weekday) int {
	if d == time.Sunday {
		return 6
	}
	return int(d) - 1
}

// CurrentWeek returns the Monday–Sunday window containing now, in now's
// location.
func CurrentWeek(now time.Time) model.WeekWindow {
	loc := now.Location()
	y, m, d := now.Date()
	start := time.Date(y, m, d-mondayOffset(now.Weekday()), 0, 0, 0, 0, loc)

	sy, sm, sd := start.Date()
	end := time.Date(sy, sm, sd+6, 23, 59, 59, int(999*time.Millisecond), loc)

	return model.WeekWindow{Start: start, End: end}
}

// FormatBound serializes a window bound for the bridge.
func FormatBound(t time.Time) string {
	return t.UTC().Format(BoundLayout)
}
