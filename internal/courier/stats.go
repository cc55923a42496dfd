package courier

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats tracks the process-wide counters exposed through /health and
// /stats. All counters are updated atomically; they may be read without
// synchronization, since eventual consistency is acceptable for a
// monitoring response (spec: "Statistics counters must be updated
// atomically... may be read without synchronization for health/stats").
type Stats struct {
	totalMessagesSent     int64
	totalMessagesReceived int64

	startTime time.Time

	mu                      sync.Mutex
	messagesSentPerChannel  map[string]int64
	slowClientsDisconnected int64

	onReceived func()
}

// NewStats constructs a Stats tracker with its start time set to now.
func NewStats() *Stats {
	return &Stats{
		startTime:              time.Now(),
		messagesSentPerChannel: make(map[string]int64),
	}
}

// RecordSent increments the total and per-channel sent counters by count.
func (s *Stats) RecordSent(channelName string, count int) {
	if count == 0 {
		return
	}
	atomic.AddInt64(&s.totalMessagesSent, int64(count))

	s.mu.Lock()
	s.messagesSentPerChannel[channelName] += int64(count)
	s.mu.Unlock()
}

// RecordReceived increments the total inbound-frame counter.
func (s *Stats) RecordReceived() {
	atomic.AddInt64(&s.totalMessagesReceived, 1)
	if s.onReceived != nil {
		s.onReceived()
	}
}

// OnReceived registers a callback invoked after every RecordReceived, for
// a Prometheus collector to mirror the counter without Stats depending on
// the metrics package directly.
func (s *Stats) OnReceived(fn func()) {
	s.onReceived = fn
}

// RecordSlowClientDisconnect increments the count of subscribers dropped
// for failing to keep up. It is called for heartbeat prunes; subscribers
// pruned by the broadcast engine are not counted.
func (s *Stats) RecordSlowClientDisconnect() {
	atomic.AddInt64(&s.slowClientsDisconnected, 1)
}

// TotalMessagesSent returns the running total of successful per-subscriber
// sends.
func (s *Stats) TotalMessagesSent() int64 {
	return atomic.LoadInt64(&s.totalMessagesSent)
}

// TotalMessagesReceived returns the running total of inbound frames.
func (s *Stats) TotalMessagesReceived() int64 {
	return atomic.LoadInt64(&s.totalMessagesReceived)
}

// SlowClientsDisconnected returns the running total of subscribers
// dropped for being unresponsive.
func (s *Stats) SlowClientsDisconnected() int64 {
	return atomic.LoadInt64(&s.slowClientsDisconnected)
}

// StartTime returns the process start time.
func (s *Stats) StartTime() time.Time {
	return s.startTime
}

// UptimeSeconds returns elapsed seconds since StartTime.
func (s *Stats) UptimeSeconds() float64 {
	return time.Since(s.startTime).Seconds()
}

// MessagesSentByChannel returns a snapshot of per-channel sent counts.
func (s *Stats) MessagesSentByChannel() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]int64, len(s.messagesSentPerChannel))
	for k, v := range s.messagesSentPerChannel {
		out[k] = v
	}
	return out
}
