package schedule

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"weekcal/internal/model"
)

var ict = time.FixedZone("ICT", 7*60*60)

// 2025-10-13 is a Monday.
func day(d, hour, minute int) time.Time {
	return time.Date(2025, 10, d, hour, minute, 0, 0, ict)
}

func iso(t time.Time) string { return t.Format(time.RFC3339) }

type fakeFetcher struct {
	events []model.RawEvent
	err    error

	calls    int
	lastFrom string
	lastTo   string
}

func (f *fakeFetcher) FetchEvents(_ context.Context, from, to string) ([]model.RawEvent, error) {
	f.calls++
	f.lastFrom, f.lastTo = from, to
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.RawEvent, len(f.events))
	copy(out, f.events)
	return out, nil
}

type recordingTarget struct {
	clears   int
	rendered []model.DisplayEvent
}

func (r *recordingTarget) Clear() {
	r.clears++
	r.rendered = nil
}

func (r *recordingTarget) Render(ev model.DisplayEvent) {
	r.rendered = append(r.rendered, ev)
}

func titles(events []model.DisplayEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Title
	}
	return out
}

func TestCurrentWeek_EveryWeekday(t *testing.T) {
	wantStart := day(13, 0, 0)
	wantEnd := time.Date(2025, 10, 19, 23, 59, 59, 999_000_000, ict)

	for d := 13; d <= 19; d++ {
		for _, hour := range []int{0, 12, 23} {
			now := day(d, hour, 30)
			w := CurrentWeek(now)

			if !w.Start.Equal(wantStart) {
				t.Errorf("%s: Start = %v, want %v", now.Weekday(), w.Start, wantStart)
			}
			if w.Start.Weekday() != time.Monday {
				t.Errorf("%s: Start weekday = %s", now.Weekday(), w.Start.Weekday())
			}
			if !w.End.Equal(wantEnd) {
				t.Errorf("%s: End = %v, want %v", now.Weekday(), w.End, wantEnd)
			}
			if w.End.Weekday() != time.Sunday {
				t.Errorf("%s: End weekday = %s", now.Weekday(), w.End.Weekday())
			}
		}
	}
}

func TestCurrentWeek_AcrossMonthBoundaryAndDST(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// Sunday 2025-03-30 is the spring-forward day in Berlin.
	now := time.Date(2025, 3, 30, 12, 0, 0, 0, berlin)
	w := CurrentWeek(now)

	if got := w.Start; got.Year() != 2025 || got.Month() != time.March || got.Day() != 24 || got.Hour() != 0 {
		t.Errorf("Start = %v, want 2025-03-24 00:00", got)
	}
	if got := w.End; got.Day() != 30 || got.Hour() != 23 || got.Minute() != 59 || got.Nanosecond() != 999_000_000 {
		t.Errorf("End = %v, want 2025-03-30 23:59:59.999", got)
	}

	newYear := CurrentWeek(time.Date(2026, 1, 1, 8, 0, 0, 0, berlin))
	if newYear.Start.Year() != 2025 || newYear.Start.Month() != time.December || newYear.Start.Day() != 29 {
		t.Errorf("Start = %v, want 2025-12-29", newYear.Start)
	}
}

func TestFormatBound(t *testing.T) {
	got := FormatBound(day(13, 0, 0))
	if got != "2025-10-12T17:00:00.000Z" {
		t.Errorf("FormatBound = %q", got)
	}
	end := time.Date(2025, 10, 19, 23, 59, 59, 999_000_000, ict)
	if got := FormatBound(end); got != "2025-10-19T16:59:59.999Z" {
		t.Errorf("FormatBound(end) = %q", got)
	}
}

func TestNormalize_CurrentIsStrict(t *testing.T) {
	now := day(15, 10, 0)
	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  bool
	}{
		{"ongoing", day(15, 9, 0), day(15, 11, 0), true},
		{"starts now", now, day(15, 11, 0), false},
		{"ends now", day(15, 9, 0), now, false},
		{"future", day(16, 9, 0), day(16, 11, 0), false},
	}
	for _, tt := range tests {
		ev := Normalize(model.RawEvent{StartDate: iso(tt.start), EndDate: iso(tt.end)}, now, ict)
		if ev.Current != tt.want {
			t.Errorf("%s: Current = %v, want %v", tt.name, ev.Current, tt.want)
		}
	}

	broken := Normalize(model.RawEvent{StartDate: "?", EndDate: iso(day(15, 11, 0))}, now, ict)
	if broken.Current {
		t.Error("invalid start must never be current")
	}
}

func TestArrange_StableOrderAndFilter(t *testing.T) {
	now := day(15, 10, 0)
	mk := func(title string, start, end time.Time) model.DisplayEvent {
		return Normalize(model.RawEvent{Title: title, StartDate: iso(start), EndDate: iso(end)}, now, ict)
	}
	events := []model.DisplayEvent{
		mk("fri", day(17, 14, 0), day(17, 15, 0)),
		mk("tie-first", day(16, 8, 0), day(16, 9, 0)),
		mk("ended", day(15, 8, 0), day(15, 10, 0)),
		mk("tie-second", day(16, 8, 0), day(16, 10, 0)),
		mk("wed", day(15, 9, 0), day(15, 11, 0)),
		mk("long-ago", day(13, 9, 0), day(13, 10, 0)),
	}

	got := titles(Arrange(events, now))
	want := []string{"wed", "tie-first", "tie-second", "fri"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Arrange() = %v, want %v", got, want)
	}
	if events[0].Title != "fri" {
		t.Error("Arrange must not reorder its input")
	}
}

func TestArrange_InvalidEndIsDropped(t *testing.T) {
	now := day(15, 10, 0)
	events := []model.DisplayEvent{
		Normalize(model.RawEvent{Title: "bad-end", StartDate: iso(day(16, 8, 0)), EndDate: "soon"}, now, ict),
		Normalize(model.RawEvent{Title: "ok", StartDate: iso(day(16, 9, 0)), EndDate: iso(day(16, 10, 0))}, now, ict),
	}

	got := titles(Arrange(events, now))
	if !reflect.DeepEqual(got, []string{"ok"}) {
		t.Errorf("Arrange() = %v, want [ok]", got)
	}
}

func TestArrange_InvalidStartDoesNotBreakOrder(t *testing.T) {
	now := day(15, 10, 0)
	events := []model.DisplayEvent{
		Normalize(model.RawEvent{Title: "thu", StartDate: iso(day(16, 9, 0)), EndDate: iso(day(16, 10, 0))}, now, ict),
		Normalize(model.RawEvent{Title: "bad-start", StartDate: "garbage", EndDate: iso(day(17, 10, 0))}, now, ict),
		Normalize(model.RawEvent{Title: "wed", StartDate: iso(day(15, 12, 0)), EndDate: iso(day(15, 13, 0))}, now, ict),
	}

	got := titles(Arrange(events, now))
	want := []string{"wed", "thu", "bad-start"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Arrange() = %v, want %v", got, want)
	}
}

func TestPipeline_WednesdayScenario(t *testing.T) {
	now := day(15, 10, 0)
	fetcher := &fakeFetcher{events: []model.RawEvent{
		{Title: "mon", Type: "Lịch học", StartDate: iso(day(13, 9, 0)), EndDate: iso(day(13, 10, 0))},
		{Title: "wed", Type: "Lịch thi", StartDate: iso(day(15, 9, 0)), EndDate: iso(day(15, 11, 0))},
		{Title: "fri", Type: "Bài tập", StartDate: iso(day(17, 14, 0)), EndDate: iso(day(17, 15, 0))},
	}}
	target := &recordingTarget{}
	p := NewPipeline(fetcher, target, WithClock(func() time.Time { return now }), WithLocation(ict))

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() returned an error: %v", err)
	}

	if fetcher.lastFrom != "2025-10-12T17:00:00.000Z" || fetcher.lastTo != "2025-10-19T16:59:59.999Z" {
		t.Errorf("fetched range = %s..%s", fetcher.lastFrom, fetcher.lastTo)
	}
	if got := titles(target.rendered); !reflect.DeepEqual(got, []string{"wed", "fri"}) {
		t.Fatalf("rendered = %v, want [wed fri]", got)
	}
	if !target.rendered[0].Current || target.rendered[1].Current {
		t.Errorf("current flags = %v/%v, want true/false", target.rendered[0].Current, target.rendered[1].Current)
	}
	if !res.Rendered || res.Fetched != 3 {
		t.Errorf("result = %+v", res)
	}
}

func TestPipeline_Idempotent(t *testing.T) {
	now := day(15, 10, 0)
	fetcher := &fakeFetcher{events: []model.RawEvent{
		{Title: "b", StartDate: iso(day(16, 9, 0)), EndDate: iso(day(16, 10, 0))},
		{Title: "a", StartDate: iso(day(15, 12, 0)), EndDate: iso(day(15, 13, 0))},
	}}
	target := &recordingTarget{}
	p := NewPipeline(fetcher, target, WithClock(func() time.Time { return now }), WithLocation(ict))

	first, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("first Run() returned an error: %v", err)
	}
	firstRendered := append([]model.DisplayEvent(nil), target.rendered...)

	second, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() returned an error: %v", err)
	}

	if !reflect.DeepEqual(first.Events, second.Events) {
		t.Errorf("events differ between runs:\n%v\n%v", first.Events, second.Events)
	}
	if !reflect.DeepEqual(firstRendered, target.rendered) {
		t.Errorf("rendered output differs between runs")
	}
}

func TestPipeline_EmptyResultKeepsPreviousCards(t *testing.T) {
	now := day(15, 10, 0)
	fetcher := &fakeFetcher{events: []model.RawEvent{
		{Title: "keep", StartDate: iso(day(16, 9, 0)), EndDate: iso(day(16, 10, 0))},
	}}
	target := &recordingTarget{}
	p := NewPipeline(fetcher, target, WithClock(func() time.Time { return now }), WithLocation(ict))

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() returned an error: %v", err)
	}

	fetcher.events = []model.RawEvent{
		{Title: "over", StartDate: iso(day(13, 9, 0)), EndDate: iso(day(13, 10, 0))},
	}
	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() returned an error: %v", err)
	}

	if res.Rendered {
		t.Error("expected no render for an empty filtered result")
	}
	if target.clears != 1 {
		t.Errorf("Clear called %d times, want 1", target.clears)
	}
	if got := titles(target.rendered); !reflect.DeepEqual(got, []string{"keep"}) {
		t.Errorf("rendered = %v, want previous [keep]", got)
	}
}

func TestPipeline_FetchErrorLeavesTargetUntouched(t *testing.T) {
	bridgeErr := errors.New("bridge down")
	fetcher := &fakeFetcher{err: bridgeErr}
	target := &recordingTarget{}
	p := NewPipeline(fetcher, target, WithClock(func() time.Time { return day(15, 10, 0) }))

	_, err := p.Run(context.Background())
	if !errors.Is(err, bridgeErr) {
		t.Fatalf("Run() error = %v, want wrapped bridge error", err)
	}
	if target.clears != 0 || len(target.rendered) != 0 {
		t.Error("target must not be touched on fetch failure")
	}
}
