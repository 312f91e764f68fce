package schedule

import (
	"context"
	"fmt"
	"time"

	appLog "weekcal/internal/log"
	"weekcal/internal/model"
)

// Fetcher is the bridge's event query.
type Fetcher interface {
	FetchEvents(ctx context.Context, weekStart, weekEnd string) ([]model.RawEvent, error)
}

// Target receives rendered events. Clear is only called when there is
// something to render.
type Target interface {
	Clear()
	Render(ev model.DisplayEvent)
}

// Result summarizes one pipeline run.
type Result struct {
	Week     model.WeekWindow
	Fetched  int
	Events   []model.DisplayEvent
	Rendered bool
}

// Pipeline fetches, normalizes, orders, filters and renders this week's
// events.
type Pipeline struct {
	fetcher  Fetcher
	target   Target
	location *time.Location
	now      func() time.Time
}

type Option func(*Pipeline)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithLocation sets the display location; time.Local by default.
func WithLocation(loc *time.Location) Option {
	return func(p *Pipeline) {
		if loc != nil {
			p.location = loc
		}
	}
}

func NewPipeline(fetcher Fetcher, target Target, opts ...Option) *Pipeline {
	p := &Pipeline{
		fetcher:  fetcher,
		target:   target,
		location: time.Local,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one fetch/render cycle. A fetch error aborts the run before
// the target is touched. When no event survives filtering the target keeps
// whatever it showed before.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	now := p.now().In(p.location)
	week := CurrentWeek(now)
	res := Result{Week: week}

	from, to := FormatBound(week.Start), FormatBound(week.End)
	raw, err := p.fetcher.FetchEvents(ctx, from, to)
	if err != nil {
		return res, fmt.Errorf("fetch events %s..%s: %w", from, to, err)
	}
	res.Fetched = len(raw)

	events := make([]model.DisplayEvent, 0, len(raw))
	for _, r := range raw {
		events = append(events, Normalize(r, now, p.location))
	}
	res.Events = Arrange(events, now)

	appLog.Debug("schedule pipeline arranged events",
		"week_start", from,
		"week_end", to,
		"fetched", res.Fetched,
		"kept", len(res.Events),
	)

	if len(res.Events) == 0 {
		return res, nil
	}

	p.target.Clear()
	for _, ev := range res.Events {
		p.target.Render(ev)
	}
	res.Rendered = true
	return res, nil
}
