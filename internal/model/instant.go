package model

import (
	"strings"
	"time"
)

// Instant is an absolute point in time that may be invalid. Every
// comparison involving an invalid Instant reports false, so a malformed
// date never matches a filter and never orders before anything.
type Instant struct {
	t     time.Time
	valid bool
}

// zonedLayouts carry their own offset; localLayouts are interpreted in the
// display location. A bare date is UTC midnight.
var (
	zonedLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04Z07:00",
	}
	localLayouts = []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
	}
)

const dateOnlyLayout = "2006-01-02"

// At wraps a known-good time.
func At(t time.Time) Instant {
	return Instant{t: t, valid: true}
}

// ParseInstant parses s as an ISO-8601 timestamp. Unparsable input yields an
// invalid Instant instead of an error.
func ParseInstant(s string, loc *time.Location) Instant {
	s = strings.TrimSpace(s)
	if s == "" {
		return Instant{}
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return At(t)
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return At(t)
		}
	}
	if t, err := time.Parse(dateOnlyLayout, s); err == nil {
		return At(t)
	}
	return Instant{}
}

func (i Instant) Valid() bool { return i.valid }

// Time returns the underlying time; the zero time when invalid.
func (i Instant) Time() time.Time { return i.t }

func (i Instant) Before(o Instant) bool {
	return i.valid && o.valid && i.t.Before(o.t)
}

func (i Instant) After(o Instant) bool {
	return i.valid && o.valid && i.t.After(o.t)
}

func (i Instant) String() string {
	if !i.valid {
		return "Invalid Date"
	}
	return i.t.Format(time.RFC3339Nano)
}
