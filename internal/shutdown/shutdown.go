// Package shutdown coordinates graceful process termination: an idempotent
// signal handler, a bounded-by-timeout set of cleanup callbacks, and a
// flag callers can poll to stop accepting new work.
//
// Grounded on
// original_source/courier/src/courier/infrastructure/monitoring/courier_graceful_shutdown.py:
// the Python version sets an asyncio.Event once and awaits
// asyncio.wait_for(gather(*cleanups), timeout=...), logging a timeout as
// a warning without blocking exit. The Go idiom for the same shape is a
// sync.Once-guarded close of a "done" channel plus a WaitGroup bounded by
// a timer.
package shutdown

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// CleanupFunc is a registered shutdown step. It should return promptly;
// Coordinator does not cancel a callback that overruns the timeout, it
// simply stops waiting for it.
type CleanupFunc func()

// Coordinator drives a single, idempotent shutdown sequence.
type Coordinator struct {
	timeout time.Duration
	logger  zerolog.Logger

	mu       sync.Mutex
	cleanups []CleanupFunc

	once sync.Once
	done chan struct{}
}

// New constructs a Coordinator bounded by the given shutdown timeout.
func New(timeout time.Duration, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		timeout: timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Register adds a cleanup step run during Shutdown. Registration after
// Shutdown has already started has no effect on the in-flight run.
func (c *Coordinator) Register(fn CleanupFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanups = append(c.cleanups, fn)
}

// IsShuttingDown reports whether Shutdown has been invoked.
func (c *Coordinator) IsShuttingDown() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed once shutdown begins. Callers (e.g. the
// HTTP front door) can select on it to stop accepting new connections.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Shutdown runs every registered cleanup concurrently, waits up to the
// configured timeout, and returns. It is idempotent: a second call
// returns immediately. A timeout expiring during cleanup is logged as a
// warning and does not prevent Shutdown from returning.
func (c *Coordinator) Shutdown() {
	c.once.Do(func() {
		close(c.done)

		c.mu.Lock()
		cleanups := append([]CleanupFunc(nil), c.cleanups...)
		c.mu.Unlock()

		finished := make(chan struct{})
		go func() {
			var wg sync.WaitGroup
			for _, fn := range cleanups {
				wg.Add(1)
				go func(fn CleanupFunc) {
					defer wg.Done()
					fn()
				}(fn)
			}
			wg.Wait()
			close(finished)
		}()

		select {
		case <-finished:
			c.logger.Info().Msg("shutdown cleanup completed")
		case <-time.After(c.timeout):
			c.logger.Warn().Dur("timeout", c.timeout).Msg("shutdown cleanup timed out, proceeding to exit")
		}
	})
}
