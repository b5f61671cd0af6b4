package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
	"ledger/internal/services"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Materializer posts the recurrences due in a month.
type Materializer interface {
	Materialize(ctx context.Context, month core.YearMonth) (int, error)
}

// Options configures the HTTP server.
type Options struct {
	Addr               string
	RequestTimeout     time.Duration
	RateLimitPerMinute int // 0 disables write rate limiting
	Logger             *log.Logger
}

type Server struct {
	http.Server
	router *mux.Router

	ledger       *services.Ledger
	materializer Materializer
	reports      *services.Reports
	pinger       Pinger

	logger           *log.Logger
	requestTimeout   time.Duration
	traceMiddleware  *trace.Middleware
	securityDetector *security.Detector
	rateLimiter      *ratelimit.Limiter
	appMetrics       *appMetrics

	shutdownOnce sync.Once
}

// NewServer wires the JSON API around the ledger services.
func NewServer(opts Options, ledger *services.Ledger, materializer Materializer, reports *services.Reports, pinger Pinger) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 7 * time.Second
	}

	s := &Server{
		router:           mux.NewRouter(),
		ledger:           ledger,
		materializer:     materializer,
		reports:          reports,
		pinger:           pinger,
		logger:           logger,
		requestTimeout:   timeout,
		securityDetector: security.NewDetector(),
		appMetrics:       &appMetrics{uptime: time.Now()},
	}
	s.traceMiddleware = trace.NewMiddleware(logger, s.securityDetector.ExtractClientIP)
	if opts.RateLimitPerMinute > 0 {
		s.rateLimiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute})
	}

	s.registerRoutes()

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	var handler http.Handler = s.router
	handler = s.withTimeout(handler)
	handler = s.limitWrites(handler)
	handler = s.securityDetector.Middleware(handler)
	handler = headers.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      timeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	r := s.router
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "route not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/accounts", s.handleListAccounts).Methods(http.MethodGet)
	api.HandleFunc("/accounts", s.handleCreateAccount).Methods(http.MethodPost)
	api.HandleFunc("/accounts/{id:[0-9]+}", s.handleUpdateAccount).Methods(http.MethodPut)
	api.HandleFunc("/accounts/{id:[0-9]+}", s.handleDeleteAccount).Methods(http.MethodDelete)
	api.HandleFunc("/balances", s.handleBalances).Methods(http.MethodGet)

	api.HandleFunc("/cards", s.handleListCards).Methods(http.MethodGet)
	api.HandleFunc("/cards", s.handleCreateCard).Methods(http.MethodPost)
	api.HandleFunc("/cards/{id:[0-9]+}", s.handleDeleteCard).Methods(http.MethodDelete)
	api.HandleFunc("/cards/{id:[0-9]+}/statements", s.handleStatementMonths).Methods(http.MethodGet)
	api.HandleFunc("/cards/{id:[0-9]+}/statements/{month}", s.handleStatement).Methods(http.MethodGet)
	api.HandleFunc("/cards/{id:[0-9]+}/statements/{month}/payments", s.handlePayStatement).Methods(http.MethodPost)

	api.HandleFunc("/transactions", s.handleListTransactions).Methods(http.MethodGet)
	api.HandleFunc("/transactions", s.handleRecordTransaction).Methods(http.MethodPost)
	api.HandleFunc("/transactions/delete", s.handleDeleteTransactions).Methods(http.MethodPost)
	api.HandleFunc("/transactions/status", s.handleSetTransactionStatus).Methods(http.MethodPost)
	api.HandleFunc("/transactions/{id:[0-9]+}", s.handleDeleteTransaction).Methods(http.MethodDelete)

	api.HandleFunc("/recurrences", s.handleListRecurrences).Methods(http.MethodGet)
	api.HandleFunc("/recurrences", s.handleCreateRecurrence).Methods(http.MethodPost)
	api.HandleFunc("/recurrences/materialize", s.handleMaterialize).Methods(http.MethodPost)
	api.HandleFunc("/recurrences/{id:[0-9]+}", s.handleSetRecurrenceActive).Methods(http.MethodPatch)

	api.HandleFunc("/transfers", s.handleListTransfers).Methods(http.MethodGet)
	api.HandleFunc("/transfers", s.handleCreateTransfer).Methods(http.MethodPost)
	api.HandleFunc("/transfers/{id:[0-9]+}", s.handleDeleteTransfer).Methods(http.MethodDelete)

	api.HandleFunc("/goals", s.handleListGoals).Methods(http.MethodGet)
	api.HandleFunc("/goals", s.handleSetGoal).Methods(http.MethodPost)
	api.HandleFunc("/goals/active", s.handleActiveGoal).Methods(http.MethodGet)
	api.HandleFunc("/goals/active/plan", s.handleGoalPlan).Methods(http.MethodGet)

	api.HandleFunc("/category-rules", s.handleListCategoryRules).Methods(http.MethodGet)
	api.HandleFunc("/category-rules", s.handleUpsertCategoryRule).Methods(http.MethodPut)
	api.HandleFunc("/category-rules/{category}", s.handleDeleteCategoryRule).Methods(http.MethodDelete)

	api.HandleFunc("/summary", s.handleSummary).Methods(http.MethodGet)
	api.HandleFunc("/projection", s.handleProjection).Methods(http.MethodGet)
}

// withTimeout bounds every request's context.
func (s *Server) withTimeout(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// limitWrites applies the rate limiter to mutating requests only.
func (s *Server) limitWrites(next http.Handler) http.Handler {
	if s.rateLimiter == nil {
		return next
	}
	limited := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.onRateLimit)(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
		default:
			limited.ServeHTTP(w, r)
		}
	})
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded, please try again later"})
}

// Shutdown stops accepting requests and releases the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		err = s.Server.Shutdown(ctx)
	})
	return err
}
