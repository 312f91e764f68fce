package auth

import "net/url"

// PageLocation is an in-memory Location for one page life. It never
// navigates by itself; it records the pending navigation so the host (an
// HTTP handler, a test) can carry it out.
type PageLocation struct {
	current  url.URL
	pending  string
	navigate bool
}

// NewPageLocation starts at u. The URL is copied.
func NewPageLocation(u *url.URL) *PageLocation {
	return &PageLocation{current: *u}
}

func (l *PageLocation) Href() string {
	return l.current.String()
}

// ClearQuery drops the query; a non-empty query change is a navigation.
func (l *PageLocation) ClearQuery() error {
	if l.current.RawQuery == "" && !l.current.ForceQuery {
		return nil
	}
	l.current.RawQuery = ""
	l.current.ForceQuery = false
	l.pending = l.current.String()
	l.navigate = true
	return nil
}

func (l *PageLocation) Assign(target string) error {
	u, err := l.current.Parse(target)
	if err != nil {
		return err
	}
	l.current = *u
	l.pending = u.String()
	l.navigate = true
	return nil
}

// Navigation reports the last requested navigation, if any.
func (l *PageLocation) Navigation() (string, bool) {
	return l.pending, l.navigate
}
