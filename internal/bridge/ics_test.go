package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"weekcal/internal/config"
	"weekcal/internal/model"
)

var ict = time.FixedZone("ICT", 7*60*60)

const testCalendar = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//weekcal//test//EN
BEGIN:VEVENT
UID:standup
DTSTAMP:20251001T000000Z
DTSTART:20251013T090000Z
DTEND:20251013T093000Z
RRULE:FREQ=DAILY;COUNT=10
EXDATE:20251015T090000Z
SUMMARY:Standup
LOCATION:Room 1
END:VEVENT
BEGIN:VEVENT
UID:standup
DTSTAMP:20251001T000000Z
RECURRENCE-ID:20251016T090000Z
DTSTART:20251016T100000Z
DTEND:20251016T103000Z
SUMMARY:Standup (moved)
LOCATION:Room 2
END:VEVENT
BEGIN:VEVENT
UID:seminar
DTSTAMP:20251001T000000Z
DTSTART:20251017T130000
DTEND:20251017T150000
SUMMARY:Seminar
END:VEVENT
BEGIN:VEVENT
DTSTAMP:20251001T000000Z
DTSTART:20251017T130000Z
SUMMARY:No UID
END:VEVENT
END:VCALENDAR
`

func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}

func TestParseAndExpand(t *testing.T) {
	parsed, err := parseCalendar([]byte(crlf(testCalendar)), ict)
	if err != nil {
		t.Fatalf("parseCalendar: %v", err)
	}
	if len(parsed) != 3 {
		t.Fatalf("parsed %d vevents, want 3 (UID-less one skipped)", len(parsed))
	}

	from := time.Date(2025, 10, 13, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)
	occ := expand(parsed, from, to)

	want := []struct {
		summary string
		start   time.Time
	}{
		{"Standup", time.Date(2025, 10, 13, 9, 0, 0, 0, time.UTC)},
		{"Standup", time.Date(2025, 10, 14, 9, 0, 0, 0, time.UTC)},
		{"Standup (moved)", time.Date(2025, 10, 16, 10, 0, 0, 0, time.UTC)},
		{"Seminar", time.Date(2025, 10, 17, 6, 0, 0, 0, time.UTC)},
		{"Standup", time.Date(2025, 10, 17, 9, 0, 0, 0, time.UTC)},
		{"Standup", time.Date(2025, 10, 18, 9, 0, 0, 0, time.UTC)},
		{"Standup", time.Date(2025, 10, 19, 9, 0, 0, 0, time.UTC)},
	}
	if len(occ) != len(want) {
		for _, o := range occ {
			t.Logf("got %s %s", o.start.UTC().Format(time.RFC3339), o.summary)
		}
		t.Fatalf("expanded %d occurrences, want %d", len(occ), len(want))
	}
	for i, w := range want {
		if occ[i].summary != w.summary || !occ[i].start.Equal(w.start) {
			t.Errorf("occ[%d] = %q at %s, want %q at %s", i, occ[i].summary, occ[i].start.UTC(), w.summary, w.start)
		}
	}
	if occ[2].location != "Room 2" {
		t.Errorf("override location = %q, want Room 2", occ[2].location)
	}
	if d := occ[0].end.Sub(occ[0].start); d != 30*time.Minute {
		t.Errorf("occurrence duration = %s, want 30m", d)
	}
}

func TestExpand_KeepsEventRunningAtRangeStart(t *testing.T) {
	ev := vevent{
		uid:     "night",
		summary: "Night shift",
		start:   time.Date(2025, 10, 12, 22, 0, 0, 0, time.UTC),
		end:     time.Date(2025, 10, 13, 2, 0, 0, 0, time.UTC),
		rrule:   "FREQ=DAILY;COUNT=2",
	}
	from := time.Date(2025, 10, 13, 0, 0, 0, 0, time.UTC)

	occ := expand([]vevent{ev}, from, from.AddDate(0, 0, 1))

	if len(occ) != 2 {
		t.Fatalf("expanded %d occurrences, want 2", len(occ))
	}
	if !occ[0].start.Equal(ev.start) {
		t.Errorf("first occurrence starts %s, want %s", occ[0].start, ev.start)
	}
}

func TestParseCalendar_Empty(t *testing.T) {
	if _, err := parseCalendar(nil, ict); err == nil {
		t.Fatal("expected error for empty body")
	}
}

func TestICSFeed_ConditionalFetch(t *testing.T) {
	var full, notModified atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		full.Add(1)
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(crlf(testCalendar)))
	}))
	defer srv.Close()

	feed := newICSFeed(srv.Client(), t.TempDir())
	src := config.SourceConfig{Kind: config.SourceICS, URL: srv.URL + "/cal.ics?token=secret", ID: "club"}
	from := time.Date(2025, 10, 13, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)

	first, err := feed.events(context.Background(), src, from, to, ict)
	if err != nil {
		t.Fatalf("first events: %v", err)
	}
	second, err := feed.events(context.Background(), src, from, to, ict)
	if err != nil {
		t.Fatalf("second events: %v", err)
	}

	if full.Load() != 1 || notModified.Load() != 1 {
		t.Errorf("full=%d notModified=%d, want 1 and 1", full.Load(), notModified.Load())
	}
	if len(first) != 7 || len(second) != 7 {
		t.Fatalf("got %d and %d events, want 7 each", len(first), len(second))
	}
	if first[0].Type != model.TypeOther {
		t.Errorf("Type = %q, want default label %q", first[0].Type, model.TypeOther)
	}
	if first[0].StartDate != "2025-10-13T09:00:00Z" {
		t.Errorf("StartDate = %q", first[0].StartDate)
	}
}

func TestICSFeed_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	feed := newICSFeed(srv.Client(), t.TempDir())
	_, err := feed.events(context.Background(), config.SourceConfig{URL: srv.URL}, time.Now(), time.Now().Add(time.Hour), ict)
	if err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestRedactURL(t *testing.T) {
	tests := map[string]string{
		"https://example.com/path/private.ics?token=abcd": "https://example.com/...(redacted)",
		"https://example.com":                             "https://example.com/...(redacted)",
		"not a url":                                       "ics://...(redacted)",
	}
	for in, want := range tests {
		if got := redactURL(in); got != want {
			t.Errorf("redactURL(%q) = %q, want %q", in, got, want)
		}
	}
}
