package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"weekcal/internal/auth"
	"weekcal/internal/bridge"
	"weekcal/internal/config"
	appLog "weekcal/internal/log"
	"weekcal/internal/metrics"
	"weekcal/internal/model"
	"weekcal/internal/render"
	"weekcal/internal/schedule"
	"weekcal/internal/shell"
)

// Bridge is everything a page life asks of the host.
type Bridge interface {
	Authorize(ctx context.Context) (model.Authorization, error)
	Exchange(ctx context.Context, currentURL string) error
	FetchEvents(ctx context.Context, weekStart, weekEnd string) ([]model.RawEvent, error)
}

// Server serves the viewer page and its small JSON API. Each GET / is one
// page life: auth handshake, then the event pipeline, then the HTML.
type Server struct {
	cfg     *config.Config
	mux     *http.ServeMux
	list    *render.List
	state   *shell.State
	metrics *metrics.Metrics

	handshake *auth.Handshake
	pipeline  *schedule.Pipeline

	// Page lives run one at a time; the list is shared.
	pageMu sync.Mutex

	page *template.Template
}

//go:embed templates static
var assets embed.FS

type Option func(*serverOptions)

type serverOptions struct {
	loc *time.Location
	now func() time.Time
}

// WithLocation sets the display location of the pipeline.
func WithLocation(loc *time.Location) Option {
	return func(o *serverOptions) { o.loc = loc }
}

// WithClock replaces time.Now in the pipeline.
func WithClock(now func() time.Time) Option {
	return func(o *serverOptions) { o.now = now }
}

// NewServer wires the handshake and pipeline around host. m may be nil.
func NewServer(cfg *config.Config, host Bridge, list *render.List, state *shell.State, m *metrics.Metrics, opts ...Option) *Server {
	o := serverOptions{loc: time.Local, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if m == nil {
		m = metrics.New()
	}

	b := &instrumentedBridge{next: host, metrics: m}
	s := &Server{
		cfg:     cfg,
		mux:     http.NewServeMux(),
		list:    list,
		state:   state,
		metrics: m,
		page:    template.Must(template.ParseFS(assets, "templates/page.html")),
	}
	s.handshake = auth.NewHandshake(b, func(_, to auth.State) {
		switch to {
		case auth.StateAuthenticated:
			m.Handshake("authenticated")
		case auth.StateRedirecting:
			m.Handshake("redirected")
		}
	})
	s.pipeline = schedule.NewPipeline(b, list, schedule.WithLocation(o.loc), schedule.WithClock(o.now))
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials mean disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="weekcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve accepts connections on ln until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	appLog.Info("viewer ready", "listen", "http://"+ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handlePage)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/state", s.handleState)
	s.mux.HandleFunc("POST /api/lock", s.handleLock)
	s.mux.Handle("GET /metrics", s.metrics.Handler())

	static, err := fs.Sub(assets, "static")
	if err != nil {
		panic(err)
	}
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type pageData struct {
	ClassName string
	Cards     []render.Card
	Ready     bool
	Locked    bool
	// CleanURL is set when the handshake cleared a callback query; the page
	// replaces its history entry with it.
	CleanURL string
}

// handlePage runs one page life.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	s.pageMu.Lock()
	defer s.pageMu.Unlock()

	ctx := r.Context()
	loc := auth.NewPageLocation(requestURL(r))

	proceed, err := s.handshake.Run(ctx, loc)
	if errors.Is(err, bridge.ErrStateMismatch) {
		// A callback we did not issue: drop its query and start a new page
		// life, which authorizes again.
		s.metrics.Handshake("stale_callback")
		appLog.Warn("rejected oauth callback; restarting login", "err", err)
		http.Redirect(w, r, r.URL.Path, http.StatusFound)
		return
	}
	if err != nil {
		s.metrics.Handshake("error")
		appLog.Error("auth handshake failed", err)
		http.Error(w, "authorization failed", http.StatusBadGateway)
		return
	}

	target, navigated := loc.Navigation()
	if !proceed {
		if !navigated {
			http.Error(w, "authorization pending", http.StatusBadGateway)
			return
		}
		http.Redirect(w, r, target, http.StatusFound)
		return
	}

	res, err := s.pipeline.Run(ctx)
	if err != nil {
		s.metrics.PipelineRun("error")
		appLog.Error("event pipeline failed", err)
		http.Error(w, "failed to load events", http.StatusBadGateway)
		return
	}
	s.recordRun(res)

	data := pageData{
		ClassName: s.list.ClassName(),
		Cards:     s.list.Cards(),
		Ready:     true,
		Locked:    s.state.Locked(),
	}
	if navigated {
		if u, err := url.Parse(target); err == nil {
			data.CleanURL = u.RequestURI()
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.page.Execute(w, data); err != nil {
		appLog.Error("failed to render page", err)
	}
}

func (s *Server) recordRun(res schedule.Result) {
	if !res.Rendered {
		s.metrics.PipelineRun("empty")
		appLog.Info("no upcoming events this week; keeping current list", "fetched", res.Fetched)
		return
	}
	s.metrics.PipelineRun("rendered")
	s.metrics.SetCards(len(res.Events))
	appLog.Info("rendered events", "week_start", schedule.FormatBound(res.Week.Start), "count", len(res.Events))
}

// requestURL rebuilds the absolute URL the browser is on.
func requestURL(r *http.Request) *url.URL {
	u := *r.URL
	u.Host = r.Host
	u.Scheme = "http"
	if r.TLS != nil {
		u.Scheme = "https"
	}
	return &u
}

type eventsResponse struct {
	ClassName string        `json:"class_name"`
	Cards     []render.Card `json:"cards"`
}

// handleEvents returns the cards currently shown, without running a page
// life.
func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, eventsResponse{
		ClassName: s.list.ClassName(),
		Cards:     s.list.Cards(),
	})
}

type stateResponse struct {
	Locked bool `json:"locked"`
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, stateResponse{Locked: s.state.Locked()})
}

// handleLock sets the lock flag from {"locked": bool}, or toggles it when the
// body is empty.
func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Locked *bool `json:"locked"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<10)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var locked bool
	if req.Locked == nil {
		locked = s.state.Toggle()
	} else {
		s.state.SetLocked(*req.Locked)
		locked = *req.Locked
	}
	appLog.Info("lock flag changed", "locked", locked)
	writeJSON(w, http.StatusOK, stateResponse{Locked: locked})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// instrumentedBridge times every delegated call.
type instrumentedBridge struct {
	next    Bridge
	metrics *metrics.Metrics
}

func (b *instrumentedBridge) Authorize(ctx context.Context) (model.Authorization, error) {
	start := time.Now()
	a, err := b.next.Authorize(ctx)
	b.metrics.ObserveBridgeCall("authorize", start, err)
	return a, err
}

func (b *instrumentedBridge) Exchange(ctx context.Context, currentURL string) error {
	start := time.Now()
	err := b.next.Exchange(ctx, currentURL)
	b.metrics.ObserveBridgeCall("exchange", start, err)
	return err
}

func (b *instrumentedBridge) FetchEvents(ctx context.Context, weekStart, weekEnd string) ([]model.RawEvent, error) {
	start := time.Now()
	evs, err := b.next.FetchEvents(ctx, weekStart, weekEnd)
	b.metrics.ObserveBridgeCall("fetch_events", start, err)
	return evs, err
}
