package render

import (
	"time"

	"weekcal/internal/model"
)

const missingTime = "--:--"

// Card is the visual unit for one event: a color swatch, a details block and
// a date block.
type Card struct {
	Color string `json:"color"`

	Title    string `json:"title"`
	Time     string `json:"time"`
	Location string `json:"location"`

	Month   string `json:"month"`
	Weekday string `json:"weekday"`
	// Day is the day-of-week index (Sunday=0), not the day of the month.
	Day int `json:"day"`

	Current bool `json:"current"`
}

// Renderer turns DisplayEvents into Cards for one locale and clock.
type Renderer struct {
	colors ColorTable
	locale Locale
	loc    *time.Location
}

// NewRenderer builds a Renderer. A nil location means time.Local.
func NewRenderer(colors ColorTable, locale Locale, loc *time.Location) Renderer {
	if loc == nil {
		loc = time.Local
	}
	return Renderer{colors: colors, locale: locale, loc: loc}
}

func (r Renderer) Card(ev model.DisplayEvent) Card {
	c := Card{
		Color:    r.colors.Lookup(ev.Type),
		Title:    ev.Title,
		Location: ev.Location,
		Time:     r.clock(ev.Start) + r.locale.RangeSep + r.clock(ev.End),
		Current:  ev.Current,
	}
	if ev.Start.Valid() {
		start := ev.Start.Time().In(r.loc)
		c.Month = r.locale.Month(start.Month())
		c.Weekday = r.locale.Weekday(start.Weekday())
		c.Day = int(start.Weekday())
	}
	return c
}

func (r Renderer) clock(i model.Instant) string {
	if !i.Valid() {
		return missingTime
	}
	return i.Time().In(r.loc).Format(r.locale.TimeLayout)
}
