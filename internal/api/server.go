package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"prover-api/internal/config"
	"prover-api/internal/jobs"
	"prover-api/internal/metrics"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// PoolStats is the view of the worker pool exposed on /health and /metrics.
type PoolStats interface {
	Workers() int
	InFlight() int
	Detached() int
}

// Server encapsulates the HTTP server, router and middlewares.
type Server struct {
	cfg     *config.Config
	service *Service
	pool    PoolStats
	metrics *metrics.Metrics

	router  *mux.Router
	handler http.Handler
}

// NewServer builds a server with CORS, logging and panic recovery
// middlewares and registers the pool and service gauges.
func NewServer(cfg *config.Config, service *Service, pool PoolStats, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:     cfg,
		service: service,
		pool:    pool,
		metrics: m,
		router:  mux.NewRouter(),
	}
	s.registerRoutes()
	s.registerGauges()

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	s.handler = c.Handler(s.recoveryMiddleware(s.loggingMiddleware(s.router)))
	return s
}

func (s *Server) registerRoutes() {
	s.router.Handle("/prove", s.ipRateLimitMiddleware(http.HandlerFunc(s.handleProve))).Methods(http.MethodPost)
	s.router.HandleFunc("/status/{jobId}", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, jobs.CodeNotFound, "route not found", 0)
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, jobs.CodeInvalidInput, "method not allowed", 0)
	})
}

func (s *Server) registerGauges() {
	svc := s.service
	s.metrics.RegisterGauge("queue_depth", "Jobs waiting in the queue", func() float64 { return float64(svc.Queue.Len()) })
	s.metrics.RegisterGauge("queue_capacity", "Maximum number of queued jobs", func() float64 { return float64(svc.Queue.Cap()) })
	s.metrics.RegisterGauge("workers_in_flight", "Computations holding a worker permit", func() float64 { return float64(s.pool.InFlight()) })
	s.metrics.RegisterGauge("workers_detached", "Timed out computations still running", func() float64 { return float64(s.pool.Detached()) })
	s.metrics.RegisterGauge("cache_entries", "Entries in the proof cache", func() float64 { return float64(svc.Cache.Len()) })

	for _, st := range []jobs.State{jobs.StatePending, jobs.StateRunning, jobs.StateCompleted, jobs.StateFailed} {
		st := st
		s.metrics.RegisterGauge("jobs_"+string(st), "Jobs currently "+string(st), func() float64 {
			return float64(svc.Registry.Counts()[st])
		})
	}
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves HTTP on the configured address until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Server.Host, s.cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("HTTP server running on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Simple request logger middleware.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logrus.Infof("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Microsecond))
	})
}

// recoveryMiddleware catches panics and returns 500.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logrus.Errorf("panic recovered: %v", rec)
				writeError(w, http.StatusInternalServerError, jobs.CodeInternalError, "internal server error", 0)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ipRateLimitMiddleware rejects clients that exceed the per-IP window before
// their body is even decoded.
func (s *Server) ipRateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := s.service.CheckIP(GetClientIP(r, s.cfg.Server.ProxyCount))
		if !d.Allowed {
			s.metrics.Submissions.WithLabelValues(string(jobs.CodeRateLimited)).Inc()
			writeRejection(w, &Rejection{
				Code:       jobs.CodeRateLimited,
				Message:    "too many requests from this address",
				RetryAfter: d.RetryAfter,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetClientIP extracts the real client IP from the request. With
// proxyCount trusted proxies in front, the address is taken from that
// position counting from the end of X-Forwarded-For.
func GetClientIP(r *http.Request, proxyCount uint) string {
	var ip string

	if proxyCount > 0 {
		forwardIps := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
		forwardIdx := len(forwardIps) - int(proxyCount)
		if forwardIdx >= 0 {
			ip = strings.TrimSpace(forwardIps[forwardIdx])
		}
	}
	if ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
