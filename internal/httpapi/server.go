// Package httpapi is the HTTP/WS front door (C6): it exposes the publish,
// health, stats, metrics, and WebSocket-upgrade endpoints, and invokes
// C2 (auth), C3 (registry), and C4 (broadcast) for them.
//
// Grounded on ws/internal/single/core/handlers_http.go for the health/
// stats response shape and ws/internal/shared/handlers_ws.go for upgrade
// admission ordering, with exact publish semantics taken from
// original_source/courier/broker.py.
package httpapi

import (
	"context"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lumiere-trade/courier/internal/auth"
	"github.com/lumiere-trade/courier/internal/broadcast"
	"github.com/lumiere-trade/courier/internal/config"
	"github.com/lumiere-trade/courier/internal/courier"
	"github.com/lumiere-trade/courier/internal/limits"
	"github.com/lumiere-trade/courier/internal/metrics"
	"github.com/lumiere-trade/courier/internal/registry"
	"github.com/lumiere-trade/courier/internal/shutdown"
)

// Server is the HTTP/WS front door.
type Server struct {
	cfg *config.Config

	registry  *registry.Registry
	broadcast *broadcast.Engine
	stats     *courier.Stats
	verifier  *auth.Verifier

	connRateLimiter *limits.ConnectionRateLimiter
	resourceGuard   *limits.ResourceGuard
	collectors      *metrics.Collectors
	coordinator     *shutdown.Coordinator

	logger zerolog.Logger

	connSem    chan struct{}
	httpServer *http.Server
}

// Deps bundles Server's collaborators, constructed once at startup and
// wired together in cmd/courier/main.go.
type Deps struct {
	Config          *config.Config
	Registry        *registry.Registry
	Broadcast       *broadcast.Engine
	Stats           *courier.Stats
	Verifier        *auth.Verifier // nil when auth is not configured
	ConnRateLimiter *limits.ConnectionRateLimiter
	ResourceGuard   *limits.ResourceGuard
	Collectors      *metrics.Collectors
	Coordinator     *shutdown.Coordinator
	Logger          zerolog.Logger
}

// New constructs the front door and wires its routes.
func New(deps Deps) *Server {
	s := &Server{
		cfg:             deps.Config,
		registry:        deps.Registry,
		broadcast:       deps.Broadcast,
		stats:           deps.Stats,
		verifier:        deps.Verifier,
		connRateLimiter: deps.ConnRateLimiter,
		resourceGuard:   deps.ResourceGuard,
		collectors:      deps.Collectors,
		coordinator:     deps.Coordinator,
		logger:          deps.Logger.With().Str("component", "httpapi").Logger(),
		connSem:         make(chan struct{}, deps.Config.MaxConnections),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /publish/{channel}", s.handlePublishLegacy)
	mux.HandleFunc("POST /publish", s.handlePublish)
	mux.HandleFunc("GET /ws/{channel}", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:    deps.Config.Addr(),
		Handler: mux,
	}

	return s
}

// Start begins serving in a background goroutine. It returns once the
// listener is bound, so a bind failure surfaces synchronously (spec: exit
// non-zero on initialization failure).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}

	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("courier listening")

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("http server stopped unexpectedly")
		}
	}()

	return nil
}

// reportChannelsCurrent refreshes the courier_channels_current gauge. It
// is cheap enough to call inline after any operation that adds or
// removes a channel (auto-creation, subscriber registration, reclaim).
func (s *Server) reportChannelsCurrent() {
	if s.collectors != nil {
		s.collectors.ChannelsCurrent.Set(float64(len(s.registry.GetAllChannels())))
	}
}

// Shutdown closes every live WebSocket with code 1001 ("going away") and
// stops accepting new HTTP requests, bounded by ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) {
	for _, sub := range s.registry.AllSubscribers() {
		if sub.Close != nil {
			sub.Close(1001, "server shutting down")
		}
	}
	_ = s.httpServer.Shutdown(ctx)
}
