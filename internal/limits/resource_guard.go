package limits

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
)

// ResourceGuard samples system-wide CPU usage on an interval and exposes
// an admission decision, grounded on ws/internal/shared/limits/resource_guard.go
// and the gopsutil-based CPU sampling from ws/internal/single/platform.
// It feeds both the pre-upgrade admission check (reject new connections
// at or above the reject threshold) and the /health response.
type ResourceGuard struct {
	rejectThreshold float64
	currentCPU      atomic.Uint64 // bits of a float64, via math.Float64bits

	logger zerolog.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewResourceGuard constructs a guard and starts its sampling loop. Call
// Stop when the broker shuts down.
func NewResourceGuard(rejectThreshold float64, interval time.Duration, logger zerolog.Logger) *ResourceGuard {
	ctx, cancel := context.WithCancel(context.Background())
	g := &ResourceGuard{
		rejectThreshold: rejectThreshold,
		logger:          logger.With().Str("component", "resource_guard").Logger(),
		cancel:          cancel,
		done:            make(chan struct{}),
	}
	go g.sampleLoop(ctx, interval)
	return g
}

func (g *ResourceGuard) sampleLoop(ctx context.Context, interval time.Duration) {
	defer close(g.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			percents, err := cpu.PercentWithContext(ctx, 0, false)
			if err != nil || len(percents) == 0 {
				g.logger.Warn().Err(err).Msg("cpu sample failed")
				continue
			}
			g.storeCPU(percents[0])
		}
	}
}

func (g *ResourceGuard) storeCPU(percent float64) {
	g.currentCPU.Store(math.Float64bits(percent))
}

// CPUPercent returns the most recently sampled CPU usage percentage.
func (g *ResourceGuard) CPUPercent() float64 {
	return math.Float64frombits(g.currentCPU.Load())
}

// ShouldAcceptConnection reports whether current load is below the reject
// threshold.
func (g *ResourceGuard) ShouldAcceptConnection() bool {
	return g.CPUPercent() < g.rejectThreshold
}

// Stop halts the sampling loop and waits for it to exit.
func (g *ResourceGuard) Stop() {
	g.cancel()
	<-g.done
}
