// Command courier runs the event-broadcasting broker: an HTTP publish
// endpoint fans events out to WebSocket subscribers grouped by channel.
package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	_ "go.uber.org/automaxprocs"

	"github.com/rs/zerolog"

	"github.com/lumiere-trade/courier/internal/auth"
	"github.com/lumiere-trade/courier/internal/broadcast"
	"github.com/lumiere-trade/courier/internal/channel"
	"github.com/lumiere-trade/courier/internal/config"
	"github.com/lumiere-trade/courier/internal/courier"
	"github.com/lumiere-trade/courier/internal/heartbeat"
	"github.com/lumiere-trade/courier/internal/httpapi"
	"github.com/lumiere-trade/courier/internal/ingest"
	"github.com/lumiere-trade/courier/internal/limits"
	"github.com/lumiere-trade/courier/internal/metrics"
	"github.com/lumiere-trade/courier/internal/registry"
	"github.com/lumiere-trade/courier/internal/shutdown"
)

func main() {
	bootLogger := metrics.NewLogger(metrics.LoggerConfig{Level: "info", Format: "json"})

	cfg, err := config.Load(&bootLogger)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := metrics.NewLogger(metrics.LoggerConfig{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger.Info().Int("gomaxprocs", runtime.GOMAXPROCS(0)).Msg("gomaxprocs tuned via automaxprocs")
	cfg.LogFields(logger)

	reg := registry.New(cfg.Channels())
	stats := courier.NewStats()
	promReg := prometheus.NewRegistry()
	collectors := metrics.NewCollectors(promReg)

	broadcastEngine := broadcast.New(reg, logger)
	broadcastEngine.OnDuration(func(seconds float64) {
		collectors.BroadcastDuration.Observe(seconds)
	})

	stats.OnReceived(func() {
		collectors.MessagesReceivedTotal.Inc()
	})

	// A presented token is always verified, regardless of RequireAuth --
	// RequireAuth only governs the no-token fallback (AnonymousChannelAccess).
	// See internal/httpapi/handlers_ws.go's authorize().
	var verifier *auth.Verifier
	if cfg.JWTSecret != "" {
		verifier = auth.NewVerifier(cfg.JWTSecret)
	}

	connRateLimiter := limits.NewConnectionRateLimiter(limits.ConnectionRateLimiterConfig{
		IPRate:      cfg.ConnRateLimitPerSec,
		IPBurst:     cfg.ConnRateLimitBurst,
		GlobalRate:  cfg.ConnRateLimitPerSec * 10,
		GlobalBurst: cfg.ConnRateLimitBurst * 10,
		Logger:      logger,
	})
	resourceGuard := limits.NewResourceGuard(cfg.CPURejectThreshold, 5*time.Second, logger)

	coordinator := shutdown.New(cfg.ShutdownTimeout, logger)

	server := httpapi.New(httpapi.Deps{
		Config:          cfg,
		Registry:        reg,
		Broadcast:       broadcastEngine,
		Stats:           stats,
		Verifier:        verifier,
		ConnRateLimiter: connRateLimiter,
		ResourceGuard:   resourceGuard,
		Collectors:      collectors,
		Coordinator:     coordinator,
		Logger:          logger,
	})

	if err := server.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start http server")
	}

	heartbeatCtx, cancelHeartbeat := context.WithCancel(context.Background())
	scheduler := heartbeat.New(reg, cfg.HeartbeatInterval, logger, func(handle int64, channelName string) {
		stats.RecordSlowClientDisconnect()
		collectors.SlowClientsDropped.Inc()
	})
	go scheduler.Run(heartbeatCtx)

	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	go runCleanupLoop(cleanupCtx, reg, cfg.CleanupInterval, logger, collectors)

	var bridge *ingest.Bridge
	if cfg.NATSURL != "" {
		bridge, err = ingest.Connect(cfg.NATSURL, reg, broadcastEngine, logger)
		if err != nil {
			logger.Error().Err(err).Msg("nats ingestion bridge unavailable, continuing without it")
		} else if err := bridge.Start(); err != nil {
			logger.Error().Err(err).Msg("nats ingestion bridge failed to start")
			bridge = nil
		}
	}

	coordinator.Register(func() {
		server.Shutdown(context.Background())
	})
	coordinator.Register(cancelHeartbeat)
	coordinator.Register(cancelCleanup)
	coordinator.Register(connRateLimiter.Stop)
	coordinator.Register(resourceGuard.Stop)
	if bridge != nil {
		coordinator.Register(bridge.Stop)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutdown signal received")
	coordinator.Shutdown()
	logger.Info().Msg("courier stopped")
}

// runCleanupLoop periodically reclaims empty ephemeral/other channels,
// retaining anything pre-declared in configuration regardless of kind.
func runCleanupLoop(ctx context.Context, reg *registry.Registry, interval time.Duration, logger zerolog.Logger, collectors *metrics.Collectors) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := reg.CleanupEmptyChannels(func(name string) bool {
				kind, err := channel.Validate(name)
				if err != nil {
					return true
				}
				return !kind.Retained()
			})
			if len(removed) > 0 {
				logger.Info().Strs("channels", removed).Msg("reclaimed empty channels")
			}
			collectors.ChannelsCurrent.Set(float64(len(reg.GetAllChannels())))
		}
	}
}
