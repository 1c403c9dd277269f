package http

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"familybudget/internal/auth"
	apperrors "familybudget/internal/errors"
	"familybudget/internal/ledger"
	"familybudget/internal/log"
	"familybudget/internal/middleware/ratelimit"
	"familybudget/internal/middleware/security"
	"familybudget/internal/middleware/trace"
	"familybudget/internal/services"
	"familybudget/internal/validation"
)

const (
	defaultRequestTimeout = 30 * time.Second
	healthTimeout         = 2 * time.Second
)

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Config holds the listener and throttling settings.
type Config struct {
	Addr           string
	RateLimit      ratelimit.Config
	RequestTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

// Dependencies are the services the handlers call. Registerer and
// Gatherer default to a fresh registry when nil.
type Dependencies struct {
	Ledger     *ledger.Ledger
	Budgets    *services.BudgetService
	Users      *services.UserService
	Tokens     *auth.JWTManager
	Health     HealthChecker
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	Logger     *log.Logger
}

type Server struct {
	http.Server
	ledger    *ledger.Ledger
	budgets   *services.BudgetService
	users     *services.UserService
	tokens    *auth.JWTManager
	health    HealthChecker
	validator *validation.Validator
	limiter   *ratelimit.Limiter
	detector  *security.Detector
	metrics   *httpMetrics
	logger    *log.Logger

	shutdownOnce sync.Once
}

type httpMetrics struct {
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	throttled prometheus.Counter
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	f := promauto.With(reg)
	return &httpMetrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "familybudget",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "familybudget",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		throttled: f.NewCounter(prometheus.CounterOpts{
			Namespace: "familybudget",
			Subsystem: "http",
			Name:      "throttled_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
	}
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(cfg Config, deps Dependencies) *Server {
	if deps.Registerer == nil || deps.Gatherer == nil {
		reg := prometheus.NewRegistry()
		deps.Registerer, deps.Gatherer = reg, reg
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	logger := deps.Logger.WithComponent(log.ComponentHTTP)
	s := &Server{
		Server: http.Server{
			Addr:              cfg.Addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
		ledger:    deps.Ledger,
		budgets:   deps.Budgets,
		users:     deps.Users,
		tokens:    deps.Tokens,
		health:    deps.Health,
		validator: validation.New(),
		limiter:   ratelimit.NewLimiter(cfg.RateLimit),
		detector:  security.NewDetector(),
		metrics:   newHTTPMetrics(deps.Registerer),
		logger:    logger,
	}
	s.Handler = s.routes(cfg, deps.Gatherer)
	return s
}

func (s *Server) routes(cfg Config, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Use(trace.NewMiddleware(s.detector.ClientIP, s.logger).Middleware)
	r.Use(chimw.Recoverer)
	r.Use(chimw.StripSlashes)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.detector.Middleware)
	r.Use(s.instrument)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("Not found.").Write(w, s.logger)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		MethodNotAllowedError().Write(w, s.logger)
	})

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	throttle := s.limiter.Middleware(s.userRateKey, s.onRateLimited)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(throttle)
			r.Post("/auth/register", s.handleRegister)
			r.Post("/auth/login", s.handleLogin)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Use(throttle)

			r.Get("/users/me", s.handleGetMe)
			r.Delete("/users/me", s.handleDeleteMe)

			r.Route("/budget-items", func(r chi.Router) {
				r.Post("/", s.handleCreateItem)
				r.Get("/", s.handleListItems)
				r.Get("/{itemID}", s.handleGetItem)
				r.Put("/{itemID}", s.handleReplaceItem)
				r.Patch("/{itemID}", s.handleUpdateItem)
				r.Delete("/{itemID}", s.handleDeleteItem)
			})

			r.Route("/budgets", func(r chi.Router) {
				r.Post("/", s.handleCreateBudget)
				r.Get("/", s.handleListBudgets)
				r.Get("/{budgetID}", s.handleGetBudget)
				r.Patch("/{budgetID}", s.handleUpdateBudget)
				r.Delete("/{budgetID}", s.handleDeleteBudget)
				r.Get("/{budgetID}/summary", s.handleBudgetSummary)
				r.Post("/{budgetID}/items", s.handleAddBudgetItem)
				r.Delete("/{budgetID}/items/{itemID}", s.handleRemoveBudgetItem)
			})
		})
	})

	return r
}

// instrument records request counts and latency by route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		s.metrics.duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Health check failed",
				log.FieldErrorType, log.ErrorTypeDatabase,
				log.FieldError, err.Error())
			NewResponse().
				Status(http.StatusServiceUnavailable).
				Fail("UNAVAILABLE", "database unreachable", nil).
				Write(w, s.logger)
			return
		}
	}
	s.ok(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ok(w http.ResponseWriter, status int, data any) {
	NewResponse().Status(status).Data(data).Write(w, s.logger)
}

func (s *Server) noContent(w http.ResponseWriter) {
	NewResponse().Status(http.StatusNoContent).Empty().Write(w, s.logger)
}

// fail writes err as an error envelope. Server-side failures are logged
// with their cause; client errors only at debug level.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	logger := log.FromContext(ctx)
	code := apperrors.CodeOf(err)

	switch code {
	case apperrors.CodeConcurrency:
		logger.WarnContext(ctx, "Request hit lock contention",
			log.FieldPath, r.URL.Path,
			log.FieldErrorType, log.ErrorTypeConcurrency,
			log.FieldError, err.Error())
	case apperrors.CodeConsistency:
		logger.ErrorContext(ctx, "Consistency fault",
			log.FieldPath, r.URL.Path,
			log.FieldErrorType, log.ErrorTypeConsistency,
			log.FieldError, err.Error())
	case apperrors.CodeInternal:
		logger.ErrorContext(ctx, "Request failed",
			log.FieldPath, r.URL.Path,
			log.FieldErrorType, log.ErrorTypeInternal,
			log.FieldError, err.Error())
	default:
		logger.DebugContext(ctx, "Request rejected",
			log.FieldPath, r.URL.Path,
			log.FieldError, err.Error())
	}

	ErrorResponse(err).Write(w, s.logger)
}

// decode reads and validates a JSON body into dst.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := DecodeJSON(w, r, dst); err != nil {
		return err
	}
	return s.validator.Validate(dst)
}

// Shutdown stops the limiter and gracefully shuts down the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
