package bridge

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"weekcal/internal/config"
	appLog "weekcal/internal/log"
	"weekcal/internal/model"
)

// maxOccurrences caps the expansion of a single recurring VEVENT.
const maxOccurrences = 500

// icsFeed fetches calendar subscriptions with conditional GETs and turns
// their VEVENTs into raw events for a date range.
type icsFeed struct {
	client   *http.Client
	cacheDir string
}

type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// vevent is one parsed VEVENT before recurrence expansion.
type vevent struct {
	uid      string
	summary  string
	location string

	start  time.Time
	end    time.Time
	allDay bool

	rrule      string
	exdates    []time.Time
	recurrence *time.Time
}

func newICSFeed(client *http.Client, cacheDir string) *icsFeed {
	if cacheDir == "" {
		cacheDir = "./var/ics-cache"
	}
	return &icsFeed{client: client, cacheDir: cacheDir}
}

// events returns every occurrence of src overlapping [from, to).
func (f *icsFeed) events(ctx context.Context, src config.SourceConfig, from, to time.Time, loc *time.Location) ([]model.RawEvent, error) {
	body, err := f.fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	parsed, err := parseCalendar(body, loc)
	if err != nil {
		return nil, err
	}

	label := src.Type
	if label == "" {
		label = model.TypeOther
	}

	var out []model.RawEvent
	for _, occ := range expand(parsed, from, to) {
		out = append(out, model.RawEvent{
			Title:     occ.summary,
			Type:      label,
			Location:  occ.location,
			StartDate: occ.start.Format(time.RFC3339),
			EndDate:   occ.end.Format(time.RFC3339),
		})
	}
	appLog.Debug("ics source expanded", "id", src.ID, "vevents", len(parsed), "occurrences", len(out))
	return out, nil
}

// fetch honours ETag and Last-Modified. A 304 reuses the cached body; any
// other failure is returned to the caller.
func (f *icsFeed) fetch(ctx context.Context, src config.SourceConfig) ([]byte, error) {
	if src.URL == "" {
		return nil, errors.New("ics source has no url")
	}

	sum := sha256.Sum256([]byte(src.URL))
	dir := filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
	metaPath := filepath.Join(dir, "meta.json")
	bodyPath := filepath.Join(dir, "body.ics")

	var meta cacheMeta
	if data, err := os.ReadFile(metaPath); err == nil {
		_ = json.Unmarshal(data, &meta)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, err
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		meta = cacheMeta{
			URL:          src.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			UpdatedAt:    time.Now().UTC(),
		}
		if err := saveCache(dir, bodyPath, metaPath, meta, body); err != nil {
			appLog.Error("ics cache save failed", err, "id", src.ID, "url", redactURL(src.URL))
		}
		return body, nil

	case http.StatusNotModified:
		body, err := os.ReadFile(bodyPath)
		if err != nil || len(body) == 0 {
			return nil, errors.New("304 Not Modified but no cached body")
		}
		appLog.Debug("ics not modified; using cache", "id", src.ID, "url", redactURL(src.URL))
		return body, nil

	default:
		return nil, fmt.Errorf("GET %s: %s", redactURL(src.URL), resp.Status)
	}
}

func saveCache(dir, bodyPath, metaPath string, meta cacheMeta, body []byte) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	// Body first so meta never points at a missing body.
	if err := os.WriteFile(bodyPath, body, 0o600); err != nil {
		return err
	}
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(metaPath, data, 0o600)
}

// parseCalendar reads every VEVENT. Events without a UID or a start are
// skipped with a warning.
func parseCalendar(body []byte, loc *time.Location) ([]vevent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse ics: %w", err)
	}

	var out []vevent
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(ve, loc)
		if err != nil {
			appLog.Warn("skipping vevent", "err", err)
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (vevent, error) {
	var ev vevent

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return ev, errors.New("missing UID")
	}
	ev.uid = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		ev.location = p.Value
	}

	dtstart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtstart == nil {
		return ev, fmt.Errorf("%s: missing DTSTART", ev.uid)
	}
	ev.allDay = !strings.Contains(dtstart.Value, "T") || paramIs(dtstart, "VALUE", "DATE")

	start, err := propTime(dtstart, loc, ve.GetStartAt)
	if err != nil {
		return ev, fmt.Errorf("%s: DTSTART: %w", ev.uid, err)
	}
	ev.start = start

	if dtend := ve.GetProperty(ical.ComponentPropertyDtEnd); dtend != nil {
		end, err := propTime(dtend, loc, ve.GetEndAt)
		if err != nil {
			return ev, fmt.Errorf("%s: DTEND: %w", ev.uid, err)
		}
		ev.end = end
	} else if ev.allDay {
		ev.end = ev.start.AddDate(0, 0, 1)
	} else {
		ev.end = ev.start
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		ev.rrule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(strings.TrimSpace(part), zoneOf(p, ev.start.Location())); err == nil {
				ev.exdates = append(ev.exdates, t)
			}
		}
	}
	if p := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); p != nil {
		if t, err := parseICSTime(p.Value, zoneOf(p, ev.start.Location())); err == nil {
			ev.recurrence = &t
		}
	}
	return ev, nil
}

// propTime lets the library resolve TZID and UTC values; floating values are
// read in loc.
func propTime(p *ical.IANAProperty, loc *time.Location, viaLib func() (time.Time, error)) (time.Time, error) {
	if _, ok := p.ICalParameters["TZID"]; ok || strings.HasSuffix(p.Value, "Z") {
		return viaLib()
	}
	return parseICSTime(p.Value, loc)
}

func zoneOf(p *ical.IANAProperty, fallback *time.Location) *time.Location {
	if tz, ok := p.ICalParameters["TZID"]; ok && len(tz) > 0 {
		if l, err := time.LoadLocation(tz[0]); err == nil {
			return l
		}
	}
	return fallback
}

func paramIs(p *ical.IANAProperty, name, want string) bool {
	vs, ok := p.ICalParameters[name]
	return ok && len(vs) > 0 && strings.EqualFold(vs[0], want)
}

// parseICSTime handles the UTC, floating date-time and date forms.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}

// expand turns parsed VEVENTs into concrete occurrences overlapping
// [from, to), applying EXDATE and RECURRENCE-ID overrides. The result is
// ordered by start.
func expand(events []vevent, from, to time.Time) []vevent {
	overrides := make(map[string][]vevent)
	for _, ev := range events {
		if ev.recurrence != nil {
			overrides[ev.uid] = append(overrides[ev.uid], ev)
		}
	}

	var out []vevent
	for _, ev := range events {
		if ev.recurrence != nil {
			// Overrides of a series are placed by their base event.
			if len(seriesOf(events, ev.uid)) == 0 {
				out = appendIfOverlaps(out, ev, from, to)
			}
			continue
		}
		if ev.rrule == "" {
			out = appendIfOverlaps(out, ev, from, to)
			continue
		}
		out = append(out, expandSeries(ev, overrides[ev.uid], from, to)...)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].start.Before(out[j].start) })
	return out
}

func seriesOf(events []vevent, uid string) []vevent {
	var base []vevent
	for _, ev := range events {
		if ev.uid == uid && ev.recurrence == nil && ev.rrule != "" {
			base = append(base, ev)
		}
	}
	return base
}

func expandSeries(ev vevent, overrides []vevent, from, to time.Time) []vevent {
	r, err := rrule.StrToRRule(ev.rrule)
	if err != nil {
		appLog.Warn("bad RRULE; skipping series", "uid", ev.uid, "rrule", ev.rrule, "err", err)
		return nil
	}
	r.DTStart(ev.start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.exdates {
		set.ExDate(ex.In(ev.start.Location()))
	}

	dur := ev.end.Sub(ev.start)
	// Widen the lower bound so occurrences that started before from but are
	// still running are kept.
	starts := set.Between(from.Add(-dur).In(ev.start.Location()), to.In(ev.start.Location()), true)
	if len(starts) > maxOccurrences {
		appLog.Warn("recurrence truncated", "uid", ev.uid, "cap", maxOccurrences)
		starts = starts[:maxOccurrences]
	}

	var out []vevent
	for _, s := range starts {
		occ := ev
		occ.start = s
		occ.end = s.Add(dur)
		for _, o := range overrides {
			if o.recurrence.Equal(s) {
				occ = o
				break
			}
		}
		out = appendIfOverlaps(out, occ, from, to)
	}
	return out
}

func appendIfOverlaps(out []vevent, ev vevent, from, to time.Time) []vevent {
	if ev.start.Before(to) && ev.end.After(from) {
		return append(out, ev)
	}
	return out
}

// redactURL keeps only scheme and host; subscription URLs often embed a
// private token.
func redactURL(u string) string {
	i := strings.Index(u, "://")
	if i < 0 {
		return "ics://...(redacted)"
	}
	rest := u[i+3:]
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		rest = rest[:j]
	}
	return u[:i+3] + rest + "/...(redacted)"
}
