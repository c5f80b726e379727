package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"pastebin-lite/internal/paste"
)

// TestNowHeader carries the request time in unix milliseconds when test mode
// is on.
const TestNowHeader = "X-Test-Now-Ms"

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config captures server configuration.
type Config struct {
	Service *paste.Service
	// Store is pinged by /readyz. Optional.
	Store Pinger
	// BaseURL overrides the scheme and host of share links.
	BaseURL    string
	TrustProxy bool
	// RevealReason answers dead pastes with PASTE_EXPIRED or
	// VIEW_LIMIT_EXCEEDED instead of the generic PASTE_NOT_FOUND.
	RevealReason bool
	// TestMode lets the X-Test-Now-Ms header set the request clock.
	TestMode bool
	Logger   *zerolog.Logger
}

// Server wraps HTTP handling logic.
type Server struct {
	svc          *paste.Service
	store        Pinger
	router       chi.Router
	maxBytes     int
	trustProxy   bool
	revealReason bool
	testMode     bool
	baseURL      *url.URL
	logger       zerolog.Logger
	now          func() time.Time
}

// New constructs a new Server instance.
func New(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("paste service required")
	}

	var parsedBase *url.URL
	if cfg.BaseURL != "" {
		var err error
		parsedBase, err = url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "invalid base url")
		}
		if parsedBase.Scheme == "" || parsedBase.Host == "" {
			return nil, errors.New("base url must include scheme and host")
		}
		parsedBase.Path = strings.TrimSuffix(parsedBase.Path, "/")
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	srv := &Server{
		svc:          cfg.Service,
		store:        cfg.Store,
		router:       chi.NewRouter(),
		maxBytes:     cfg.Service.MaxBytes(),
		trustProxy:   cfg.TrustProxy,
		revealReason: cfg.RevealReason,
		testMode:     cfg.TestMode,
		baseURL:      parsedBase,
		logger:       logger,
		now:          time.Now,
	}
	srv.routes()
	return srv, nil
}

// Handler returns the underlying router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(requestID)
	r.Use(s.recoverer)
	if s.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.AccessHandler(accessLog))
	r.Use(observeDuration)
	r.Use(securityHeaders)
	r.Use(middleware.Compress(5, "application/json", "text/plain"))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeErr(w, r, paste.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeErr(w, r, paste.ErrMethodNotAllowed)
	})

	r.Post("/api/pastes", s.handleCreate)
	r.Get("/api/pastes/{id}", s.handleGet)
	r.Get("/api/pastes/{id}/qr", s.handleQR)
	r.Get("/p/{id}", s.handleRaw)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())
}

func (s *Server) isSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if s.baseURL != nil && s.baseURL.Scheme == "https" {
		return true
	}
	if s.trustProxy {
		proto := strings.ToLower(r.Header.Get("X-Forwarded-Proto"))
		if proto == "https" {
			return true
		}
	}
	return false
}

// canonicalURL is the share link for paste id.
func (s *Server) canonicalURL(r *http.Request, id string) string {
	if s.baseURL != nil {
		u := *s.baseURL
		if id != "" {
			u.Path = strings.TrimSuffix(u.Path, "/") + "/p/" + id
		}
		return u.String()
	}

	scheme := "http"
	if s.isSecureRequest(r) {
		scheme = "https"
	}
	host := r.Host
	if host == "" {
		host = "localhost"
	}
	path := "/"
	if id != "" {
		path = "/p/" + id
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, path)
}

// nowFor returns the clock for r. In test mode a valid X-Test-Now-Ms header
// wins over the wall clock; a malformed one is ignored.
func (s *Server) nowFor(r *http.Request) time.Time {
	if s.testMode {
		if raw := r.Header.Get(TestNowHeader); raw != "" {
			if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
				return time.UnixMilli(ms).UTC()
			}
		}
	}
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}
