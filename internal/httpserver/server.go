package httpserver

import (
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ephemeral-paste/internal/clock"
	"ephemeral-paste/internal/metrics"
	"ephemeral-paste/internal/paste"
	"ephemeral-paste/web"
)

// Config captures server configuration.
type Config struct {
	Service    *paste.Service
	Clock      clock.Clock
	MaxBytes   int
	TestMode   bool
	TrustProxy bool
	BaseURL    string
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Server wraps HTTP handling logic.
type Server struct {
	service    *paste.Service
	clock      clock.Clock
	router     chi.Router
	templates  *template.Template
	maxBytes   int
	testMode   bool
	trustProxy bool
	baseURL    *url.URL
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// New constructs a new Server instance.
func New(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("paste service required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 1_048_576
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	tmpl, err := template.New("layout").Funcs(template.FuncMap{
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return "Never"
			}
			return t.UTC().Format(time.RFC1123)
		},
		"formatSize": formatSize,
		"deref": func(v *int64) int64 {
			if v == nil {
				return 0
			}
			return *v
		},
	}).ParseFS(web.Templates, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	var parsedBase *url.URL
	if cfg.BaseURL != "" {
		parsedBase, err = url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base url: %w", err)
		}
		if parsedBase.Scheme == "" || parsedBase.Host == "" {
			return nil, errors.New("base url must include scheme and host")
		}
		parsedBase.Path = strings.TrimSuffix(parsedBase.Path, "/")
	}

	srv := &Server{
		service:    cfg.Service,
		clock:      cfg.Clock,
		router:     chi.NewRouter(),
		templates:  tmpl,
		maxBytes:   cfg.MaxBytes,
		testMode:   cfg.TestMode,
		trustProxy: cfg.TrustProxy,
		baseURL:    parsedBase,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
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

	r.Use(middleware.RequestID)
	if s.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Compress(5, "text/html", "text/plain", "text/css", "application/json"))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(RequestTime(s.clock, s.testMode))

	fileServer := http.FileServer(http.FS(web.Static))
	r.Handle("/static/*", fileServer)

	r.Get("/", s.handleIndex)
	r.Post("/pastes", s.handleCreate)

	r.Route("/p/{id}", func(pr chi.Router) {
		pr.Use(NoStore)
		pr.Get("/", s.handleView)
		pr.Get("/raw", s.handleRaw)
		pr.Get("/qr", s.handleQR)
	})

	r.Route("/api", func(ar chi.Router) {
		ar.Use(NoStore)
		ar.Post("/pastes", s.handleAPICreate)
		ar.Get("/pastes/{id}", s.handleAPIGet)
		ar.Get("/healthz", s.handleHealth)
	})
	r.Get("/healthz", s.handleHealth)

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
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

// canonicalURL is the shareable HTML URL of a paste.
func (s *Server) canonicalURL(r *http.Request, id string) string {
	if s.baseURL != nil {
		u := *s.baseURL
		u.Path = strings.TrimSuffix(u.Path, "/") + "/p/" + id
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
	return fmt.Sprintf("%s://%s/p/%s", scheme, host, id)
}

func formatSize(size int) string {
	if size < 1024 {
		return fmt.Sprintf("%d B", size)
	}
	const unit = 1024.0
	v := float64(size)
	for _, suffix := range []string{"KB", "MB", "GB"} {
		v /= unit
		if v < unit {
			return fmt.Sprintf("%.1f %s", v, suffix)
		}
	}
	return fmt.Sprintf("%d B", size)
}
