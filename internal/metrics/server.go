package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anstrom/portsniffer/internal/logging"
)

// Server timeout constants.
const (
	serverShutdownTimeout = 5 * time.Second
	serverReadTimeout     = 10 * time.Second
	serverWriteTimeout    = 10 * time.Second
	systemUpdateInterval  = 5 * time.Second
)

// Server exposes the metrics registry over HTTP.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	metrics    *PrometheusMetrics
	logger     *logging.Logger

	mu       sync.Mutex
	listener net.Listener
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status     string     `json:"status"`
	Uptime     string     `json:"uptime"`
	LastUpdate *time.Time `json:"last_update,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// NewServer creates a metrics server that will listen on addr.
func NewServer(addr string, pm *PrometheusMetrics, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Default()
	}

	s := &Server{
		router:  mux.NewRouter(),
		metrics: pm,
		logger:  logger.WithComponent("metrics"),
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics.GetRegistry(), promhttp.HandlerOpts{})).
		Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)

	s.router.Use(s.countRequests)
}

// Handler returns the router wrapped in panic recovery.
func (s *Server) Handler() http.Handler {
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.logger}),
		handlers.PrintRecoveryStack(false),
	)(s.router)
}

// Listen binds the listening socket. Start calls it when needed.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("metrics server failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln

	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Start serves metrics until ctx is done, then shuts the server down.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.logger.Info("Starting metrics server", "address", s.Addr())

	updateCtx, cancelUpdates := context.WithCancel(ctx)
	defer cancelUpdates()
	go s.metrics.StartPeriodicUpdates(updateCtx, systemUpdateInterval)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(s.listener); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errChan:
		return err
	}
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Metrics server shutdown error", "error", err)
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Debug("Metrics server stopped")
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	response := HealthResponse{
		Status:    "ok",
		Uptime:    s.metrics.GetUptime().Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
	}
	if last := s.metrics.GetLastUpdate(); !last.IsZero() {
		last = last.UTC()
		response.LastUpdate = &last
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Failed to encode health response", "error", err)
	}
}

// countRequests records every routed request by path template and status.
func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		s.metrics.IncrementHTTPRequests(path, strconv.Itoa(rec.status))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// recoveryLogger adapts the structured logger to gorilla/handlers.
type recoveryLogger struct {
	logger *logging.Logger
}

func (l recoveryLogger) Println(args ...interface{}) {
	l.logger.Error("Recovered from panic in metrics handler", "panic", fmt.Sprint(args...))
}
