// Package bridge implements the host side of the viewer: the OAuth session
// against the university SSO and the event sources queried with it.
package bridge

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"weekcal/internal/config"
	appLog "weekcal/internal/log"
	"weekcal/internal/model"
)

var (
	// ErrNotAuthenticated is returned by FetchEvents when an authenticated
	// source is configured but no session exists.
	ErrNotAuthenticated = errors.New("bridge: not authenticated")
	// ErrStateMismatch rejects a callback whose state was not issued by us,
	// including any callback arriving before a state was issued (e.g. after
	// a restart).
	ErrStateMismatch = errors.New("bridge: oauth state mismatch")
)

// discovery is the subset of the OpenID provider metadata we need.
type discovery struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
}

// Host owns the OAuth session and answers the viewer's three bridge calls.
type Host struct {
	oauth   *oauth2.Config
	store   TokenStore
	client  *http.Client
	apiBase string
	sources []config.SourceConfig
	ics     *icsFeed
	loc     *time.Location

	mu    sync.Mutex
	token *oauth2.Token
	state string
}

type Option func(*Host)

// WithHTTPClient sets the client used for discovery, token calls and
// unauthenticated sources.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Host) { h.client = c }
}

// WithTokenStore replaces the file token store.
func WithTokenStore(s TokenStore) Option {
	return func(h *Host) { h.store = s }
}

// WithLocation sets the zone used for floating ICS times.
func WithLocation(loc *time.Location) Option {
	return func(h *Host) {
		if loc != nil {
			h.loc = loc
		}
	}
}

// NewHost discovers the provider endpoints and resumes a stored session if
// its refresh token still works.
func NewHost(ctx context.Context, cfg config.BridgeConfig, redirectURL string, opts ...Option) (*Host, error) {
	h := &Host{
		store:   NewFileTokenStore(cfg.TokenPath),
		client:  &http.Client{Timeout: 30 * time.Second},
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		sources: cfg.Sources,
		loc:     time.Local,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.ics = newICSFeed(h.client, cfg.CacheDir)

	meta, err := h.discover(ctx, cfg.Issuer)
	if err != nil {
		return nil, err
	}

	if cfg.RedirectURL != "" {
		redirectURL = cfg.RedirectURL
	}
	h.oauth = &oauth2.Config{
		ClientID:    cfg.ClientID,
		RedirectURL: loopbackHost(redirectURL),
		Scopes:      cfg.Scopes,
		// Public client: client_id travels in the form body.
		Endpoint: oauth2.Endpoint{
			AuthURL:   meta.AuthorizationEndpoint,
			TokenURL:  meta.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	stored, err := h.store.LoadToken()
	if err != nil {
		return nil, err
	}
	if stored != nil {
		if err := h.resume(ctx, stored); err != nil {
			appLog.Warn("stored session could not be refreshed; login required", "err", err)
		}
	}

	return h, nil
}

func (h *Host) discover(ctx context.Context, issuer string) (discovery, error) {
	var meta discovery
	endpoint := strings.TrimRight(issuer, "/") + "/.well-known/openid-configuration"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return meta, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return meta, fmt.Errorf("openid discovery: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return meta, fmt.Errorf("openid discovery: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return meta, fmt.Errorf("openid discovery: %w", err)
	}
	if meta.AuthorizationEndpoint == "" || meta.TokenEndpoint == "" {
		return meta, errors.New("openid discovery: missing authorization or token endpoint")
	}
	return meta, nil
}

// resume trades a stored refresh token for a fresh access token.
func (h *Host) resume(ctx context.Context, stored *oauth2.Token) error {
	expired := &oauth2.Token{RefreshToken: stored.RefreshToken, TokenType: stored.TokenType}
	token, err := h.oauth.TokenSource(h.clientContext(ctx), expired).Token()
	if err != nil {
		return err
	}
	if err := h.store.SaveToken(token); err != nil {
		return err
	}
	h.mu.Lock()
	h.token = token
	h.mu.Unlock()
	appLog.Info("resumed stored session", "expiry", token.Expiry.Format(time.RFC3339))
	return nil
}

// Authorize reports AlreadyAuthenticated when a usable token exists;
// otherwise it returns a fresh authorization URL.
func (h *Host) Authorize(ctx context.Context) (model.Authorization, error) {
	h.mu.Lock()
	token := h.token
	h.mu.Unlock()

	if token != nil {
		if token.Valid() {
			return model.AlreadyAuthenticated, nil
		}
		if token.RefreshToken != "" {
			err := h.resume(ctx, token)
			if err == nil {
				return model.AlreadyAuthenticated, nil
			}
			appLog.Warn("token refresh failed; starting a new login", "err", err)
		}
	}

	state, err := randomState()
	if err != nil {
		return model.Authorization{}, err
	}
	h.mu.Lock()
	h.token = nil
	h.state = state
	h.mu.Unlock()

	return model.RedirectTo(h.oauth.AuthCodeURL(state)), nil
}

// Exchange completes the login from the callback URL the browser landed on.
func (h *Host) Exchange(ctx context.Context, currentURL string) error {
	u, err := url.Parse(currentURL)
	if err != nil {
		return fmt.Errorf("bridge: parse callback: %w", err)
	}
	q := u.Query()
	if e := q.Get("error"); e != "" {
		return fmt.Errorf("bridge: authorization error: %s", e)
	}
	code := q.Get("code")
	if code == "" {
		return errors.New("bridge: callback has no code")
	}

	h.mu.Lock()
	expected := h.state
	h.mu.Unlock()
	if expected == "" || q.Get("state") != expected {
		return ErrStateMismatch
	}

	token, err := h.oauth.Exchange(h.clientContext(ctx), code)
	if err != nil {
		return fmt.Errorf("bridge: exchange code: %w", err)
	}
	if err := h.store.SaveToken(token); err != nil {
		return err
	}

	h.mu.Lock()
	h.token = token
	h.state = ""
	h.mu.Unlock()
	appLog.Info("login completed")
	return nil
}

// FetchEvents queries every configured source for the given range, in
// configuration order. Any failing source fails the whole call.
func (h *Host) FetchEvents(ctx context.Context, weekStart, weekEnd string) ([]model.RawEvent, error) {
	var (
		authed *http.Client
		events []model.RawEvent
	)

	for _, src := range h.sources {
		if src.Kind == config.SourceICS {
			from, to, err := parseRange(weekStart, weekEnd)
			if err != nil {
				return nil, err
			}
			evs, err := h.ics.events(ctx, src, from, to, h.loc)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", src.ID, err)
			}
			events = append(events, evs...)
			continue
		}

		if authed == nil {
			c, err := h.authorizedClient(ctx)
			if err != nil {
				return nil, err
			}
			authed = c
		}
		evs, err := fetchJSONSource(ctx, authed, h.apiBase, src, weekStart, weekEnd)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.ID, err)
		}
		events = append(events, evs...)
	}

	appLog.Debug("bridge fetched events", "from", weekStart, "to", weekEnd, "count", len(events))
	return events, nil
}

func (h *Host) authorizedClient(ctx context.Context) (*http.Client, error) {
	h.mu.Lock()
	token := h.token
	h.mu.Unlock()
	if token == nil {
		return nil, ErrNotAuthenticated
	}

	cctx := h.clientContext(ctx)
	ts := &savingTokenSource{
		source: oauth2.ReuseTokenSource(token, h.oauth.TokenSource(cctx, token)),
		store:  h.store,
		last:   token,
		onNew: func(t *oauth2.Token) {
			h.mu.Lock()
			h.token = t
			h.mu.Unlock()
		},
	}
	return oauth2.NewClient(cctx, ts), nil
}

// clientContext makes oauth2 use our HTTP client for token requests.
func (h *Host) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, h.client)
}

func parseRange(weekStart, weekEnd string) (time.Time, time.Time, error) {
	from, err := time.Parse(time.RFC3339Nano, weekStart)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bridge: bad range start: %w", err)
	}
	to, err := time.Parse(time.RFC3339Nano, weekEnd)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bridge: bad range end: %w", err)
	}
	return from, to, nil
}

// loopbackHost swaps 127.0.0.1 for localhost; the SSO realm only lists the
// latter as a valid redirect host.
func loopbackHost(redirectURL string) string {
	return strings.Replace(redirectURL, "127.0.0.1", "localhost", 1)
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("bridge: generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
