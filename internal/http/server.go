package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"caisse/internal/core"
	"caisse/internal/log"
	"caisse/internal/middleware/ratelimit"
	"caisse/internal/middleware/security"
	"caisse/internal/reconcile"
	"caisse/internal/services"
)

// Reconciler is the reconciliation view used by the handlers.
type Reconciler interface {
	Load(ctx context.Context, p reconcile.Period) (services.View, error)
	Refresh(ctx context.Context) (services.View, error)
	AuditDayOffset(ctx context.Context, p reconcile.Period) ([]reconcile.OffsetCandidate, error)
}

// CashEntries persists cash entries submitted through the form.
type CashEntries interface {
	Submit(ctx context.Context, e core.CashEntry) (core.CashEntry, error)
	Delete(ctx context.Context, id, date string) error
}

// Options configures a Server.
type Options struct {
	Addr               string
	CORSAllowedOrigins []string
	RateLimitPerMinute int
	// Ready reports whether the data backend answers; nil means always ready.
	Ready  func(ctx context.Context) error
	Logger *log.Logger
}

// Server wraps http.Server with the reconciliation API.
type Server struct {
	http.Server

	recon    Reconciler
	cash     CashEntries
	ready    func(ctx context.Context) error
	logger   *log.Logger
	now      func() time.Time
	detector *security.Detector
	limiter  *ratelimit.Limiter

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options, recon Reconciler, cash CashEntries) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	s := &Server{
		recon:    recon,
		cash:     cash,
		ready:    opts.Ready,
		logger:   logger.WithComponent(log.ComponentHTTP),
		now:      time.Now,
		detector: security.NewDetector(logger),
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
			CleanupInterval:   5 * time.Minute,
			Logger:            logger,
		}),
	}
	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(opts, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(opts Options, logger *log.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(log.Middleware(logger))
	r.Use(s.detector.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Content-Disposition", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Get("/reconciliation", s.handleReconciliation)
		r.Get("/reconciliation/export.csv", s.handleExportCSV)
		r.Get("/reconciliation/export.xlsx", s.handleExportXLSX)
		r.Get("/reconciliation/offset-audit", s.handleOffsetAudit)

		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, _ *http.Request) {
				ErrorResponse(http.StatusTooManyRequests, "Trop de requêtes, réessayez plus tard").Write(w)
			}))
			r.Post("/cash-entries", s.handleSubmitCashEntry)
			r.Delete("/cash-entries", s.handleDeleteCashEntry)
		})
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		MethodNotAllowedError(allowedMethods(r.URL.Path)).Write(w)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusNotFound, "Ressource introuvable").Write(w)
	})
	return r
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// allowedMethods lists the methods routed for path.
func allowedMethods(path string) string {
	if path == "/api/cash-entries" {
		return "POST, DELETE"
	}
	return "GET"
}
