// Package broadcast implements the broker's fan-out engine (C4): given a
// channel and a payload, it sends the payload to every current subscriber
// and prunes the ones that failed.
//
// Grounded on ws/internal/shared/broadcast.go's snapshot-then-iterate loop:
// take a registry snapshot, send individually to each subscriber (no
// shared frame, no multiplexing), then remove the dead ones in a second
// pass so a slow or gone subscriber never holds up delivery to the rest.
package broadcast

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/lumiere-trade/courier/internal/registry"
)

// Engine sends payloads to a channel's subscribers via the connection
// registry.
type Engine struct {
	registry *registry.Registry
	logger   zerolog.Logger

	onSent     func(channelName string, count int)
	onDuration func(seconds float64)
}

// New constructs a broadcast engine bound to a registry.
func New(reg *registry.Registry, logger zerolog.Logger) *Engine {
	return &Engine{registry: reg, logger: logger}
}

// OnSent registers a callback invoked after every broadcast to a channel
// with at least one subscriber, with the number of subscribers
// successfully reached, for statistics counters. A broadcast to a channel
// with no subscribers does not invoke it.
func (e *Engine) OnSent(fn func(channelName string, count int)) {
	e.onSent = fn
}

// OnDuration registers a callback invoked after every broadcast with its
// wall-clock duration in seconds, for a Prometheus histogram.
func (e *Engine) OnDuration(fn func(seconds float64)) {
	e.onDuration = fn
}

// Broadcast sends the JSON-encoded payload to every live subscriber of
// channelName and returns the number of subscribers reached. Subscribers
// whose send fails are pruned from the registry after the fan-out
// completes; pruning never aborts or delays the broadcast itself.
func (e *Engine) Broadcast(channelName string, payload []byte) int {
	start := time.Now()
	defer func() {
		if e.onDuration != nil {
			e.onDuration(time.Since(start).Seconds())
		}
	}()

	subscribers := e.registry.GetChannelSubscribers(channelName)
	if len(subscribers) == 0 {
		return 0
	}

	var dead []*registry.Subscriber
	reached := 0

	for _, sub := range subscribers {
		if err := sub.Send(payload); err != nil {
			e.logger.Warn().
				Int64("handle", sub.Handle).
				Str("channel", channelName).
				Err(err).
				Msg("subscriber send failed, marking dead")
			dead = append(dead, sub)
			continue
		}
		reached++
	}

	for _, sub := range dead {
		e.registry.RemoveClient(sub.Handle, channelName)
	}

	if e.onSent != nil {
		e.onSent(channelName, reached)
	}

	return reached
}

// BroadcastJSON marshals v and calls Broadcast. It is a convenience for
// callers that construct a payload in-process rather than receiving one
// already-encoded from an HTTP body.
func (e *Engine) BroadcastJSON(channelName string, v any) (int, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	return e.Broadcast(channelName, data), nil
}
