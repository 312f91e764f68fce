package schedule

import (
	"sort"
	"time"

	"weekcal/internal/model"
)

// Normalize parses a RawEvent into a DisplayEvent as of now. Local
// timestamps without an offset are read in loc.
func Normalize(raw model.RawEvent, now time.Time, loc *time.Location) model.DisplayEvent {
	at := model.At(now)
	ev := model.DisplayEvent{
		Title:    raw.Title,
		Type:     raw.Type,
		Location: raw.Location,
		Start:    model.ParseInstant(raw.StartDate, loc),
		End:      model.ParseInstant(raw.EndDate, loc),
	}
	ev.Current = ev.Start.Before(at) && ev.End.After(at)
	return ev
}

// Arrange orders events by start (stable, so equal starts keep fetch order;
// unparsable starts go last) and drops every event that has not strictly
// ended after now. The input slice is not modified.
func Arrange(events []model.DisplayEvent, now time.Time) []model.DisplayEvent {
	sorted := make([]model.DisplayEvent, len(events))
	copy(sorted, events)
	// Invalid starts rank after every valid one so they cannot break the
	// ordering of the others.
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Start, sorted[j].Start
		if a.Valid() != b.Valid() {
			return a.Valid()
		}
		return a.Before(b)
	})

	at := model.At(now)
	out := make([]model.DisplayEvent, 0, len(sorted))
	for _, ev := range sorted {
		if ev.End.After(at) {
			out = append(out, ev)
		}
	}
	return out
}
