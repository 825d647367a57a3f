// Package statusapi exposes the shard fleet over HTTP: liveness and
// readiness probes, per-shard session detail, and the Prometheus metrics
// endpoint. Read-only; the gateway connection itself never depends on it.
package statusapi

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jkaninda/mjumbe/internal/manager"
	"github.com/jkaninda/okapi"
)

// Config configures the status server.
type Config struct {
	ListenAddr      string               // e.g., ":8080"
	MetricsRegistry *prometheus.Registry // nil = no /metrics endpoint.
	MetricsPath     string               // Default: "/metrics".
}

// Server is the HTTP status surface.
type Server struct {
	config  Config
	fleet   *manager.Manager
	logger  *slog.Logger
	server  *http.Server
	okapi   *okapi.Okapi
	started time.Time
}

// HealthResponse is the JSON response for the probe endpoints.
type HealthResponse struct {
	Status string `json:"status"`
}

// ShardStatus is one shard's entry in GET /v1/shards.
type ShardStatus struct {
	ID               int     `json:"id"`
	State            string  `json:"state"`
	Alive            bool    `json:"alive"`
	Connected        bool    `json:"connected"`
	SessionID        string  `json:"session_id,omitempty"`
	Sequence         int64   `json:"sequence"`
	HeartbeatLatency float64 `json:"heartbeat_latency_s"` // -1 when unmeasured
	UserID           string  `json:"user_id,omitempty"`
}

// FleetResponse is the JSON response for GET /v1/shards.
type FleetResponse struct {
	ShardCount int           `json:"shard_count"`
	Connected  bool          `json:"connected"`
	UptimeS    float64       `json:"uptime_s"`
	Shards     []ShardStatus `json:"shards"`
}

// NewServer creates a status server for the fleet.
func NewServer(cfg Config, fleet *manager.Manager, logger *slog.Logger) *Server {
	return &Server{
		config: cfg,
		fleet:  fleet,
		logger: logger,
		okapi:  okapi.New(),
	}
}

// Start registers routes and serves until the listener fails or Stop runs.
func (s *Server) Start(ctx context.Context) error {
	s.started = time.Now()

	s.okapi.Get("/healthz", s.handleLiveness)
	s.okapi.Get("/readyz", s.handleReadiness)

	group := s.okapi.Group("/v1")
	group.Get("/shards", s.handleShards,
		okapi.DocSummary("List shard sessions and their connection state"),
		okapi.DocTags("Shards"),
		okapi.DocResponse(FleetResponse{}),
	)
	group.Get("/shards/{id}", s.handleShard,
		okapi.DocSummary("Get one shard session"),
		okapi.DocTags("Shards"),
		okapi.DocPathParam("id", "int", "Shard id"),
		okapi.DocResponse(ShardStatus{}),
		okapi.DocResponse(http.StatusNotFound, HealthResponse{}),
	)

	if s.config.MetricsRegistry != nil {
		path := s.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.okapi.HandleStd("GET", path, promhttp.HandlerFor(s.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}

	s.server = &http.Server{
		Addr:              s.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	s.logger.Info("status api starting", slog.String("addr", s.config.ListenAddr))
	return s.okapi.StartServer(s.server)
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("status api stopping")
	return s.okapi.Shutdown(s.server)
}

// handleLiveness is the Kubernetes liveness probe.
func (s *Server) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness returns 200 only when every shard holds a connected
// session, 503 otherwise.
func (s *Server) handleReadiness(c *okapi.Context) error {
	if s.fleet.AllConnected() {
		return c.OK(&HealthResponse{Status: "ok"})
	}
	return c.JSON(http.StatusServiceUnavailable, &HealthResponse{Status: "degraded"})
}

func (s *Server) handleShards(c *okapi.Context) error {
	shards := s.fleet.Shards()
	resp := FleetResponse{
		ShardCount: len(shards),
		Connected:  s.fleet.AllConnected(),
		UptimeS:    time.Since(s.started).Seconds(),
		Shards:     make([]ShardStatus, 0, len(shards)),
	}
	for _, sh := range shards {
		resp.Shards = append(resp.Shards, s.shardStatus(sh.ID()))
	}
	return c.OK(&resp)
}

func (s *Server) handleShard(c *okapi.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("shard id must be an integer")
	}
	if s.fleet.Shard(id) == nil {
		return c.JSON(http.StatusNotFound, &HealthResponse{Status: "unknown shard"})
	}
	status := s.shardStatus(id)
	return c.OK(&status)
}

func (s *Server) shardStatus(id int) ShardStatus {
	sh := s.fleet.Shard(id)
	sessionID, seq := sh.SessionInfo()
	// JSON has no NaN; report unmeasured latency as -1.
	latency := sh.HeartbeatLatency()
	if math.IsNaN(latency) {
		latency = -1
	}
	status := ShardStatus{
		ID:               sh.ID(),
		State:            sh.State().String(),
		Alive:            sh.IsAlive(),
		Connected:        sh.IsConnected(),
		SessionID:        sessionID,
		Sequence:         seq,
		HeartbeatLatency: latency,
	}
	if uid, err := sh.GetUserID(); err == nil {
		status.UserID = uid.String()
	}
	return status
}
