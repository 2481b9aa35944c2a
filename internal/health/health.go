// Package health exposes liveness/readiness over both HTTP and the gRPC
// health-checking protocol, grounded on pkg/api/health.go's /health,
// /ready, /metrics mux. gRPC health checking uses the prebuilt
// google.golang.org/grpc/health package and its grpc_health_v1 service
// definition directly, no protoc step required — the same "adopt a
// pack-shipped health implementation rather than hand roll one" idea the
// teacher itself follows by depending on a stock gRPC server.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cuemby/spacetime/pkg/metrics"
)

// Checker reports whether the engine's storage layer is currently
// reachable; internal/engine implements this against its Datastore.
type Checker interface {
	Ready() error
}

// Server hosts /health, /ready and /metrics over HTTP, and registers a
// grpc_health_v1.Health service that a gRPC-aware orchestrator can probe
// instead.
type Server struct {
	checker Checker
	mux     *http.ServeMux
	grpcHealth *health.Server
}

// NewServer wires checker into both the HTTP mux and a grpc health.Server,
// marking the "" (overall) and "spacetime.Engine" services NOT_SERVING
// until the first readiness probe succeeds.
func NewServer(checker Checker) *Server {
	grpcHealth := health.NewServer()
	grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	grpcHealth.SetServingStatus("spacetime.Engine", healthpb.HealthCheckResponse_NOT_SERVING)

	s := &Server{checker: checker, mux: http.NewServeMux(), grpcHealth: grpcHealth}
	s.mux.HandleFunc("/health", s.healthHandler)
	s.mux.HandleFunc("/ready", s.readyHandler)
	s.mux.Handle("/metrics", metrics.Handler())
	return s
}

// Register adds the grpc_health_v1 Health service to srv, so a single
// gRPC listener can answer both the engine's own RPCs (if any) and health
// probes.
func (s *Server) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s.grpcHealth)
}

// Start serves the HTTP mux until ListenAndServe returns an error.
func (s *Server) Start(addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return httpSrv.ListenAndServe()
}

// Handler returns the HTTP handler for embedding in another server's mux.
func (s *Server) Handler() http.Handler { return s.mux }

// Poll runs the readiness check once and updates the gRPC health status
// accordingly; a caller should invoke this on a ticker.
func (s *Server) Poll() {
	status := healthpb.HealthCheckResponse_SERVING
	if s.checker.Ready() != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.grpcHealth.SetServingStatus("", status)
	s.grpcHealth.SetServingStatus("spacetime.Engine", status)
}

// RunPoller calls Poll on interval until ctx is canceled.
func (s *Server) RunPoller(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Poll()
		}
	}
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type readyResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message,omitempty"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(healthResponse{Status: "healthy", Timestamp: time.Now()})
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := readyResponse{Status: "ready", Timestamp: time.Now()}
	code := http.StatusOK
	if err := s.checker.Ready(); err != nil {
		resp.Status = "not ready"
		resp.Message = err.Error()
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
