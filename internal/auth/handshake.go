package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	appLog "weekcal/internal/log"
	"weekcal/internal/model"
)

// CallbackParam is the query parameter that marks an OAuth callback load.
const CallbackParam = "code"

// ErrNoAuthorizationURL is returned when authorize neither confirms a
// session nor supplies a URL to navigate to.
var ErrNoAuthorizationURL = errors.New("auth: bridge returned no authorization URL")

// State is a step of the handshake.
type State int

const (
	StateStart State = iota
	StateCheckingCallback
	StateExchanging
	StateAuthorizing
	StateRedirecting
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateCheckingCallback:
		return "checking_callback"
	case StateExchanging:
		return "exchanging"
	case StateAuthorizing:
		return "authorizing"
	case StateRedirecting:
		return "redirecting"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Bridge is the part of the host bridge the handshake delegates to.
type Bridge interface {
	Authorize(ctx context.Context) (model.Authorization, error)
	Exchange(ctx context.Context, currentURL string) error
}

// Location is the navigational location of the current page life.
type Location interface {
	// Href returns the full current URL including the query.
	Href() string
	// ClearQuery strips all query parameters.
	ClearQuery() error
	// Assign navigates to url.
	Assign(url string) error
}

// Handshake ensures a session exists before any event data is requested.
type Handshake struct {
	bridge  Bridge
	observe func(from, to State)
}

// NewHandshake builds a Handshake. observe, if non-nil, is called on every
// state transition.
func NewHandshake(bridge Bridge, observe func(from, to State)) *Handshake {
	return &Handshake{bridge: bridge, observe: observe}
}

// Run drives the handshake to a terminal state. It reports true only when the
// session is authenticated; after a redirect it reports false and the caller
// must not fetch events. Bridge failures stop the handshake and are returned
// as is, wrapped with the state they happened in.
func (h *Handshake) Run(ctx context.Context, loc Location) (bool, error) {
	state := StateStart
	move := func(next State) {
		appLog.Debug("auth handshake transition", "from", state, "to", next)
		if h.observe != nil {
			h.observe(state, next)
		}
		state = next
	}

	href := loc.Href()
	move(StateCheckingCallback)

	if isCallback(href) {
		move(StateExchanging)
		if err := h.bridge.Exchange(ctx, href); err != nil {
			return false, fmt.Errorf("auth %s: %w", state, err)
		}
		if err := loc.ClearQuery(); err != nil {
			return false, fmt.Errorf("auth %s: clear query: %w", state, err)
		}
	}

	move(StateAuthorizing)
	authz, err := h.bridge.Authorize(ctx)
	if err != nil {
		return false, fmt.Errorf("auth %s: %w", state, err)
	}

	if authz.Authenticated {
		move(StateAuthenticated)
		return true, nil
	}
	if authz.URL == "" {
		return false, ErrNoAuthorizationURL
	}

	if err := loc.Assign(authz.URL); err != nil {
		return false, fmt.Errorf("auth %s: navigate: %w", state, err)
	}
	move(StateRedirecting)
	return false, nil
}

func isCallback(href string) bool {
	u, err := url.Parse(href)
	if err != nil {
		return false
	}
	return u.Query().Has(CallbackParam)
}
