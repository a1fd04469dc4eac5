// Package http serves the dashboard pages, downloads, charts and the JSON
// API on top of the datasets loaded at startup.
package http

import (
	"bytes"
	"context"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"finboard/internal/cache"
	"finboard/internal/log"
	"finboard/internal/metrics"
	"finboard/internal/middleware/ratelimit"
	"finboard/internal/middleware/security"
	"finboard/internal/middleware/trace"
	"finboard/internal/services"
	appweb "finboard/web"
)

// Options configures NewServer. Zero values fall back to defaults.
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ExportRateLimit int // downloads and charts per client per minute
	ChartCacheSize  int // rendered charts kept in memory, 0 disables
	ChartCacheTTL   time.Duration
	TrustedProxies  []string // CIDRs added to the private networks

	Logger  *log.Logger
	Metrics *metrics.Metrics
}

type Server struct {
	http.Server
	svc       *services.DashboardService
	templates *template.Template
	metrics   *metrics.Metrics
	limiter   *ratelimit.Limiter
	detector  *security.Detector
	logger    *log.Logger
	events    *log.StructuredLogger
	charts    *cache.LRU[[]byte] // nil when disabled
	sweeper   *cache.Sweeper

	ready        atomic.Bool
	shutdownOnce sync.Once
}

func NewServer(opts Options, svc *services.DashboardService) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Wrap(slog.Default(), log.ComponentHTTP)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}

	s := &Server{
		svc:      svc,
		metrics:  opts.Metrics,
		detector: security.NewDetector(),
		logger:   opts.Logger.WithComponent(log.ComponentDashboard),
		events:   log.NewStructuredLogger(opts.Logger),
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.ExportRateLimit,
		}),
	}

	s.metrics.TrackRateLimiter(func() (int64, int64) {
		st := s.limiter.GetMetrics()
		return st.Rejected, st.ClientCount
	})

	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			s.logger.LogError(context.Background(), "Trusted proxy ignored", err, log.ErrorTypeConfiguration,
				log.FieldComponent, log.ComponentSecurity)
		}
	}

	if opts.ChartCacheSize > 0 {
		if opts.ChartCacheTTL <= 0 {
			opts.ChartCacheTTL = 10 * time.Minute
		}
		s.charts = cache.NewLRU[[]byte](opts.ChartCacheSize, opts.ChartCacheTTL)
		s.sweeper = cache.NewSweeper(opts.Logger.WithComponent(log.ComponentCache))
		s.sweeper.Register("charts", s.charts)
		s.sweeper.Start(opts.ChartCacheTTL)
	}

	tmpl, err := template.New("").Funcs(templateFuncs()).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.LogError(context.Background(), "Template parse failed", err, log.ErrorTypeConfiguration,
			log.FieldComponent, log.ComponentTemplate)
	} else {
		s.templates = tmpl
	}

	mux := http.NewServeMux()

	// Pages
	mux.HandleFunc("GET /{$}", s.handleOverview)
	mux.HandleFunc("GET /sales", s.handleSales)
	mux.HandleFunc("GET /tax", s.handleTax)
	mux.HandleFunc("GET /salary", s.handleSalaryForm)
	mux.HandleFunc("POST /salary", s.handleSalary)
	mux.HandleFunc("GET /tips", s.handleTips)
	mux.HandleFunc("GET /tips/data", s.handleTipsData)

	// Generated content is rate limited per client and never cached.
	limited := func(h http.HandlerFunc) http.Handler {
		return security.NoStore(s.limiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited)(h))
	}
	mux.Handle("GET /export/{file}", limited(s.handleExport))
	mux.Handle("GET /charts/{name}", limited(s.handleChart))

	mux.HandleFunc("GET /api/{page}", s.handleAPI)

	// Operations
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.metrics.Handler())

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := security.StaticAssetMiddleware(86400)(http.StripPrefix("/static/", http.FileServer(http.FS(sub))))
		mux.Handle("GET /static/", static)
	}

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(opts.Logger.WithComponent(log.ComponentTrace), s.detector.ExtractClientIP, s.metrics)

	// The tracer sits next to the mux so that it sees the matched pattern.
	var handler http.Handler = mux
	handler = tracer.Middleware(handler)
	handler = log.Middleware(s.logger)(handler)
	handler = s.detector.Middleware(handler)
	handler = headers.Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadTimeout:       opts.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
	s.ready.Store(s.templates != nil)
	return s
}

// Shutdown stops accepting requests and releases the rate limiter. It is
// safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.ready.Store(false)
		s.limiter.Stop()
		if s.sweeper != nil {
			s.sweeper.Stop()
		}
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// handleReady fails while templates are missing or the server is draining.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !s.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	TooManyRequestsError("Too many downloads, please wait a minute.").Write(w)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	s.renderStatus(w, r, http.StatusOK, name, data)
}

// renderStatus executes a page template into a buffer so that a failing
// template never leaves a half written page behind.
func (s *Server) renderStatus(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	if s.templates == nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Templates not loaded",
			log.FieldPath, r.URL.Path,
			log.FieldComponent, log.ComponentTemplate,
			"error_type", log.ErrorTypeConfiguration)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		log.FromContext(r.Context()).LogError(r.Context(), "Template execution failed", err, log.ErrorTypeInternal,
			"template", name)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
