// Package registry is the in-memory connection registry (C3): a mapping
// from channel name to its live subscriber set, plus per-subscriber
// metadata. It is the sole shared mutable structure of the broker.
//
// Reads that feed the broadcast engine take a snapshot under a lock and
// iterate after releasing it, so one slow subscriber's send can never
// block the registry itself. The per-channel subscriber slice is held in
// an atomic.Value and swapped copy-on-write on every add/remove, so
// GetChannelSubscribers holds the read lock only for the map lookup and
// loads the snapshot after releasing it — the same technique as ws/internal/shared/connection.go's SubscriptionIndex,
// adapted here to one channel per subscriber instead of many.
package registry

import (
	"sync"
	"sync/atomic"
	"time"
)

// Subscriber is one accepted WebSocket session bound to exactly one
// channel.
type Subscriber struct {
	// Handle is a stable, unique identity for the lifetime of the
	// session. It is the key used throughout the registry.
	Handle int64

	// Channel is the single channel this subscriber is bound to.
	Channel string

	// UserID and WalletAddress are set when a valid JWT was presented;
	// both empty for anonymous connections.
	UserID        string
	WalletAddress string

	ConnectedAt time.Time

	// MessagesReceived counts inbound frames from this subscriber. The
	// broker does not interpret them, only counts them.
	MessagesReceived int64

	// Send delivers an outbound frame to this subscriber's session. It
	// must not block indefinitely — implementations should size their
	// buffer and treat a full buffer as a transport error.
	Send func(payload []byte) error

	// Close closes the subscriber's underlying transport with a WS close
	// code and a human-readable reason. Used by the front door during
	// shutdown to close every live connection with code 1001.
	Close func(code uint16, reason string)
}

type channelState struct {
	subscribers atomic.Value // []*Subscriber, copy-on-write snapshot
	preDeclared bool
}

func (c *channelState) snapshot() []*Subscriber {
	v := c.subscribers.Load()
	if v == nil {
		return nil
	}
	return v.([]*Subscriber)
}

// Registry is the connection registry. The zero value is not usable; use
// New.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*channelState

	totalConnections int64 // monotonic, atomic
}

// New constructs an empty registry with a set of pre-declared channel
// names retained even when empty.
func New(preDeclaredChannels []string) *Registry {
	r := &Registry{
		channels: make(map[string]*channelState),
	}
	for _, name := range preDeclaredChannels {
		cs := &channelState{preDeclared: true}
		cs.subscribers.Store([]*Subscriber{})
		r.channels[name] = cs
	}
	return r
}

// AddClient registers a subscriber on a channel, creating the channel if
// it is absent. Adding the same handle to the same channel twice is a
// programmer error; in that case AddClient is a no-op rather than
// producing a duplicate (the registry's I1 invariant always holds).
func (r *Registry) AddClient(sub *Subscriber) {
	r.mu.Lock()
	cs, ok := r.channels[sub.Channel]
	if !ok {
		cs = &channelState{}
		cs.subscribers.Store([]*Subscriber{})
		r.channels[sub.Channel] = cs
	}

	current := cs.snapshot()
	for _, existing := range current {
		if existing.Handle == sub.Handle {
			r.mu.Unlock()
			return
		}
	}
	next := make([]*Subscriber, len(current)+1)
	copy(next, current)
	next[len(current)] = sub
	cs.subscribers.Store(next)
	r.mu.Unlock()

	atomic.AddInt64(&r.totalConnections, 1)
}

// RemoveClient removes a subscriber from a channel. It is a no-op (never
// an error) if the subscriber or the channel is unknown, because cleanup
// paths call it under arbitrary failure conditions.
func (r *Registry) RemoveClient(handle int64, channelName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cs, ok := r.channels[channelName]
	if !ok {
		return
	}

	current := cs.snapshot()
	idx := -1
	for i, existing := range current {
		if existing.Handle == handle {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}

	next := make([]*Subscriber, 0, len(current)-1)
	next = append(next, current[:idx]...)
	next = append(next, current[idx+1:]...)
	cs.subscribers.Store(next)
}

// GetChannelSubscribers returns a point-in-time snapshot for a channel.
// The caller may iterate it freely without holding any lock; it is an
// immutable slice and will never be mutated in place.
func (r *Registry) GetChannelSubscribers(channelName string) []*Subscriber {
	r.mu.RLock()
	cs, ok := r.channels[channelName]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return cs.snapshot()
}

// ChannelExists reports whether a channel is currently present in the
// registry (declared, or created on first publish/subscribe).
func (r *Registry) ChannelExists(channelName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.channels[channelName]
	return ok
}

// EnsureChannel creates an empty channel entry if it does not already
// exist. Used by the front door's auto-creation policy.
func (r *Registry) EnsureChannel(channelName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.channels[channelName]; ok {
		return
	}
	cs := &channelState{}
	cs.subscribers.Store([]*Subscriber{})
	r.channels[channelName] = cs
}

// GetChannelCount returns the number of live subscribers on a channel.
func (r *Registry) GetChannelCount(channelName string) int {
	return len(r.GetChannelSubscribers(channelName))
}

// GetAllChannels returns a snapshot mapping every known channel name to
// its current subscriber count.
func (r *Registry) GetAllChannels() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int, len(r.channels))
	for name, cs := range r.channels {
		out[name] = len(cs.snapshot())
	}
	return out
}

// GetTotalConnections returns the monotonic count of every accepted
// subscriber, regardless of whether it is still connected.
func (r *Registry) GetTotalConnections() int64 {
	return atomic.LoadInt64(&r.totalConnections)
}

// CurrentConnections sums the live subscriber count across every channel
// (registry invariant I3).
func (r *Registry) CurrentConnections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, cs := range r.channels {
		total += len(cs.snapshot())
	}
	return total
}

// CleanupEmptyChannels scans every channel; removes those that are empty,
// were not pre-declared, and for which reclaimable(name) reports true, and
// returns the names removed. Channels that were pre-declared in
// configuration are retained even when empty, regardless of kind.
func (r *Registry) CleanupEmptyChannels(reclaimable func(name string) bool) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for name, cs := range r.channels {
		if cs.preDeclared {
			continue
		}
		if len(cs.snapshot()) > 0 {
			continue
		}
		if !reclaimable(name) {
			continue
		}
		delete(r.channels, name)
		removed = append(removed, name)
	}
	return removed
}

// AllSubscribers returns every live subscriber across every channel, used
// by the heartbeat scheduler and graceful shutdown. The outer slice is a
// fresh copy; inner per-channel slices are the registry's own immutable
// snapshots.
func (r *Registry) AllSubscribers() []*Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []*Subscriber
	for _, cs := range r.channels {
		all = append(all, cs.snapshot()...)
	}
	return all
}
