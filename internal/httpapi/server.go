package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ContentFeed/internal/domain"
	"ContentFeed/internal/filter"
	"ContentFeed/internal/infrastructure/llm"
	"ContentFeed/internal/usecase"
)

// Ingester triggers ingestion runs.
type Ingester interface {
	Run(ctx context.Context) (usecase.Report, error)
	Running() bool
}

// FilterRules is the runtime filter configuration.
type FilterRules interface {
	Current() domain.FilterRuleSet
	Update(ctx context.Context, update filter.RuleSetUpdate) (domain.FilterRuleSet, error)
	Reset(ctx context.Context) (domain.FilterRuleSet, error)
}

// LogLister returns recent ingestion runs, newest first.
type LogLister interface {
	ListLogs(ctx context.Context, limit int) ([]domain.IngestionLogEntry, error)
}

// RateLimitReporter exposes provider budgets and clears them on demand.
type RateLimitReporter interface {
	RateLimits() []llm.ProviderStatus
	ResetRateLimit(provider string) bool
}

// Deps groups the collaborators of the admin API. Nil members disable
// their routes.
type Deps struct {
	Ingester   Ingester
	Filters    FilterRules
	Logs       LogLister
	RateLimits RateLimitReporter
	Metrics    http.Handler
	Logger     *slog.Logger
	Now        func() time.Time
}

// Server is the administrative HTTP API.
type Server struct {
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
	router chi.Router
}

// New builds the router.
func New(deps Deps) *Server {
	s := &Server{deps: deps, logger: deps.Logger, now: deps.Now}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.router = s.routes()
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if s.deps.Ingester != nil {
			r.Get("/ingest", s.ingestStatus)
			r.Post("/ingest", s.ingest)
		}
		if s.deps.Filters != nil {
			r.Get("/filter-config", s.getFilterConfig)
			r.Post("/filter-config", s.updateFilterConfig)
			r.Put("/filter-config", s.resetFilterConfig)
		}
		if s.deps.Logs != nil {
			r.Get("/ingestion-logs", s.listLogs)
		}
		if s.deps.RateLimits != nil {
			r.Get("/rate-limits", s.rateLimits)
			r.Delete("/rate-limits", s.resetRateLimits)
			r.Delete("/rate-limits/{provider}", s.resetRateLimits)
		}
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down within
// shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
