package model

import "time"

// RawEvent is a calendar event as delivered by the host bridge. The date
// fields are ISO-8601 strings and are not validated on arrival.
type RawEvent struct {
	Title     string `json:"title"`
	Type      string `json:"type"`
	Location  string `json:"location"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// DisplayEvent is a render-ready event derived from a RawEvent.
//
// Current is fixed at normalization time: it reports whether the moment of
// normalization fell strictly between Start and End.
type DisplayEvent struct {
	Title    string
	Type     string
	Location string

	Start Instant
	End   Instant

	Current bool
}

// WeekWindow spans Monday 00:00:00.000 through the following Sunday
// 23:59:59.999 in the display location.
type WeekWindow struct {
	Start time.Time
	End   time.Time
}

// Authorization is the outcome of the bridge's authorize call: either the
// session already exists, or the user must be sent to URL.
type Authorization struct {
	Authenticated bool
	URL           string
}

// AlreadyAuthenticated is the sentinel returned when a session exists.
var AlreadyAuthenticated = Authorization{Authenticated: true}

// RedirectTo builds an Authorization that asks the caller to navigate.
func RedirectTo(url string) Authorization {
	return Authorization{URL: url}
}
