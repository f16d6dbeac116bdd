// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"mongorouter/connectors/base"
	"mongorouter/connectors/registry"
	"mongorouter/router"
	"mongorouter/shared/logger"
)

// RequestIDHeader carries the per-request ID in requests and responses
const RequestIDHeader = "X-Request-ID"

// ShutdownTimeout bounds graceful shutdown in ListenAndServe
const ShutdownTimeout = 10 * time.Second

// maxTimeoutMs is the largest timeout_ms that fits in a time.Duration
const maxTimeoutMs = math.MaxInt64 / int64(time.Millisecond)

// Options configures the admin server
type Options struct {
	Logger *logger.Logger

	// Gatherer backs GET /prometheus. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// AllowedOrigins for CORS. Defaults to "*".
	AllowedOrigins []string
}

// Server exposes a Router over HTTP for inspection and timeout changes
type Server struct {
	router   *router.Router
	logger   *logger.Logger
	gatherer prometheus.Gatherer
	handler  http.Handler
}

// ClusterInfo describes one configured cluster
type ClusterInfo struct {
	Label          string   `json:"label"`
	Kind           string   `json:"kind"`
	Hosts          []string `json:"hosts"`
	Port           int      `json:"port"`
	Pattern        string   `json:"pattern"`
	ReplicaSet     string   `json:"replica_set,omitempty"`
	ReadPreference string   `json:"read_preference"`
	Live           bool     `json:"live"`
}

// RouteResponse is returned by GET /api/v1/routes/{database}
type RouteResponse struct {
	Database string       `json:"database"`
	Cluster  *ClusterInfo `json:"cluster"`
}

// TimeoutRequest is the body of PUT /api/v1/timeout
type TimeoutRequest struct {
	TimeoutMs *int64 `json:"timeout_ms"`
}

// TimeoutResponse reports the active timeout
type TimeoutResponse struct {
	Success   bool   `json:"success"`
	TimeoutMs int64  `json:"timeout_ms"`
	Error     string `json:"error,omitempty"`
}

// PingResponse is returned by POST /api/v1/databases/{database}/ping
type PingResponse struct {
	Database string             `json:"database"`
	Cluster  string             `json:"cluster"`
	Status   *base.HealthStatus `json:"status"`
}

// NewServer builds the admin server for r
func NewServer(r *router.Router, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logger.New("admin-api")
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{router: r, logger: log, gatherer: gatherer}

	m := mux.NewRouter()
	m.Use(s.requestIDMiddleware)
	s.RegisterHandlers(m)

	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	s.handler = c.Handler(m)
	return s
}

// RegisterHandlers adds the admin endpoints to m.
//
// Endpoints:
//   - GET /health - Health of every live client
//   - GET /api/v1/clusters - Configured clusters in match order
//   - GET /api/v1/routes/{database} - Cluster a name resolves to, without connecting
//   - GET /api/v1/databases - Resolved database names
//   - POST /api/v1/databases/{database}/ping - Resolve a name and ping it
//   - GET /api/v1/timeout - Current socket timeout
//   - PUT /api/v1/timeout - Change the socket timeout
//   - GET /prometheus - Prometheus metrics
func (s *Server) RegisterHandlers(m *mux.Router) {
	m.HandleFunc("/health", s.healthHandler).Methods("GET")
	m.HandleFunc("/api/v1/clusters", s.clustersHandler).Methods("GET")
	m.HandleFunc("/api/v1/routes/{database}", s.routeHandler).Methods("GET")
	m.HandleFunc("/api/v1/databases", s.databasesHandler).Methods("GET")
	m.HandleFunc("/api/v1/databases/{database}/ping", s.pingHandler).Methods("POST")
	m.HandleFunc("/api/v1/timeout", s.getTimeoutHandler).Methods("GET")
	m.HandleFunc("/api/v1/timeout", s.setTimeoutHandler).Methods("PUT")
	m.Handle("/prometheus", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
}

// Handler returns the CORS-wrapped handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Admin API listening", map[string]interface{}{"addr": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("Admin API stopped", nil)
	return nil
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(r *http.Request) *logger.Logger {
	return s.logger.WithRequestID(r.Header.Get(RequestIDHeader))
}

// healthHandler reports every live client
// GET /health
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := s.router.HealthCheck(r.Context())

	status := "healthy"
	code := http.StatusOK
	for _, h := range health {
		if !h.Healthy {
			status = "degraded"
			code = http.StatusServiceUnavailable
			break
		}
	}

	s.sendJSON(w, r, code, map[string]interface{}{
		"status":     status,
		"clusters":   health,
		"live":       s.router.Live(),
		"timeout_ms": s.router.Timeout().Milliseconds(),
		"timestamp":  time.Now().UTC(),
	})
}

// clustersHandler lists the configured clusters
// GET /api/v1/clusters
func (s *Server) clustersHandler(w http.ResponseWriter, r *http.Request) {
	live := s.liveSet()
	clusters := s.router.Clusters()

	infos := make([]*ClusterInfo, 0, len(clusters))
	for _, c := range clusters {
		infos = append(infos, toClusterInfo(c, live))
	}
	s.sendJSON(w, r, http.StatusOK, map[string]interface{}{
		"clusters": infos,
		"count":    len(infos),
	})
}

// routeHandler reports the cluster a database name resolves to
// GET /api/v1/routes/{database}
func (s *Server) routeHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["database"]

	c, err := s.router.Route(name)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	s.sendJSON(w, r, http.StatusOK, &RouteResponse{
		Database: name,
		Cluster:  toClusterInfo(c, s.liveSet()),
	})
}

// databasesHandler lists resolved database names
// GET /api/v1/databases
func (s *Server) databasesHandler(w http.ResponseWriter, r *http.Request) {
	names := s.router.Resolved()
	s.sendJSON(w, r, http.StatusOK, map[string]interface{}{
		"databases": names,
		"count":     len(names),
	})
}

// pingHandler resolves a database and pings it
// POST /api/v1/databases/{database}/ping
func (s *Server) pingHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["database"]

	c, err := s.router.Route(name)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	status, err := s.router.Ping(r.Context(), name)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	s.sendJSON(w, r, code, &PingResponse{Database: name, Cluster: c.Label, Status: status})
}

// getTimeoutHandler returns the socket timeout
// GET /api/v1/timeout
func (s *Server) getTimeoutHandler(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, r, http.StatusOK, &TimeoutResponse{
		Success:   true,
		TimeoutMs: s.router.Timeout().Milliseconds(),
	})
}

// setTimeoutHandler changes the socket timeout, invalidating every client
// PUT /api/v1/timeout
func (s *Server) setTimeoutHandler(w http.ResponseWriter, r *http.Request) {
	var req TimeoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendErrorMessage(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.TimeoutMs == nil {
		s.sendErrorMessage(w, r, http.StatusBadRequest, "timeout_ms is required")
		return
	}
	if *req.TimeoutMs < 0 {
		s.sendErrorMessage(w, r, http.StatusBadRequest, "timeout_ms must not be negative")
		return
	}
	if *req.TimeoutMs > maxTimeoutMs {
		s.sendErrorMessage(w, r, http.StatusBadRequest, fmt.Sprintf("timeout_ms must not exceed %d", maxTimeoutMs))
		return
	}

	timeout := time.Duration(*req.TimeoutMs) * time.Millisecond
	if err := s.router.SetTimeout(r.Context(), timeout); err != nil {
		if errors.Is(err, base.ErrRouterClosed) || errors.Is(err, base.ErrInvalidTimeout) {
			s.sendError(w, r, err)
			return
		}
		// Invalidation completed; only closing old clients failed
		s.requestLogger(r).ErrorWithErr("Errors closing clients after timeout change", err, nil)
		s.sendJSON(w, r, http.StatusInternalServerError, &TimeoutResponse{
			Success:   false,
			TimeoutMs: s.router.Timeout().Milliseconds(),
			Error:     err.Error(),
		})
		return
	}

	s.requestLogger(r).Info("Timeout changed via admin API", map[string]interface{}{
		"timeout_ms": *req.TimeoutMs,
	})
	s.sendJSON(w, r, http.StatusOK, &TimeoutResponse{Success: true, TimeoutMs: timeout.Milliseconds()})
}

// Helper functions

func (s *Server) liveSet() map[string]bool {
	live := make(map[string]bool)
	for _, label := range s.router.Live() {
		live[label] = true
	}
	return live
}

func toClusterInfo(c *registry.Cluster, live map[string]bool) *ClusterInfo {
	return &ClusterInfo{
		Label:          c.Label,
		Kind:           c.Kind(),
		Hosts:          c.Hosts,
		Port:           c.Port,
		Pattern:        c.Pattern.String(),
		ReplicaSet:     c.ReplicaSet,
		ReadPreference: c.ReadPreference.String(),
		Live:           live[c.Label],
	}
}

// statusFor maps router errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, base.ErrNoSuchDatabase), errors.Is(err, base.ErrNoSuchCluster):
		return http.StatusNotFound
	case errors.Is(err, base.ErrRouterClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, base.ErrInvalidTimeout):
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func (s *Server) sendError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusBadGateway {
		s.requestLogger(r).ErrorWithErr("Cluster request failed", err, map[string]interface{}{"path": r.URL.Path})
	}
	s.sendErrorMessage(w, r, code, err.Error())
}

func (s *Server) sendErrorMessage(w http.ResponseWriter, r *http.Request, code int, message string) {
	s.sendJSON(w, r, code, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, r *http.Request, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.requestLogger(r).ErrorWithErr("Error encoding response", err, nil)
	}
}
