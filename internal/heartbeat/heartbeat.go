// Package heartbeat runs the periodic ping scheduler: every tick, every
// live subscriber is sent a ping payload; any that fail are pruned using
// the same dead-subscriber path the broadcast engine uses.
//
// Grounded on the ping-ticker half of ws/internal/shared/pump_write.go,
// generalized from a per-connection ticker into one scheduler that walks
// the whole registry on a single tick, since the spec wants one
// process-wide heartbeat task rather than one per connection.
package heartbeat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/lumiere-trade/courier/internal/registry"
)

var pingPayload = func() []byte {
	data, _ := json.Marshal(map[string]string{"type": "ping"})
	return data
}()

// Scheduler runs the heartbeat loop.
type Scheduler struct {
	registry *registry.Registry
	interval time.Duration
	logger   zerolog.Logger

	onDead func(handle int64, channelName string)
}

// New constructs a heartbeat scheduler. onDead, if non-nil, is invoked for
// every subscriber pruned this tick (used to bump the
// slow-clients-disconnected stat).
func New(reg *registry.Registry, interval time.Duration, logger zerolog.Logger, onDead func(handle int64, channelName string)) *Scheduler {
	return &Scheduler{registry: reg, interval: interval, logger: logger, onDead: onDead}
}

// Run blocks, ticking every interval, until ctx is canceled. It is meant
// to be started in its own goroutine and is cancelable so shutdown can
// stop it promptly.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	subscribers := s.registry.AllSubscribers()

	var dead []*registry.Subscriber
	for _, sub := range subscribers {
		if err := sub.Send(pingPayload); err != nil {
			dead = append(dead, sub)
		}
	}

	for _, sub := range dead {
		s.registry.RemoveClient(sub.Handle, sub.Channel)
		if s.onDead != nil {
			s.onDead(sub.Handle, sub.Channel)
		}
	}

	if len(dead) > 0 {
		s.logger.Info().Int("pruned", len(dead)).Msg("heartbeat pruned unresponsive subscribers")
	}
}
