package shutdown

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestShutdown_RunsCleanupsAndIsIdempotent(t *testing.T) {
	c := New(time.Second, zerolog.Nop())

	var calls int32
	c.Register(func() { atomic.AddInt32(&calls, 1) })
	c.Register(func() { atomic.AddInt32(&calls, 1) })

	c.Shutdown()
	c.Shutdown() // second call must not re-run cleanups or block

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("cleanup calls = %d, want 2", got)
	}
	if !c.IsShuttingDown() {
		t.Error("IsShuttingDown() should be true after Shutdown")
	}
}

func TestShutdown_TimeoutDoesNotBlockForever(t *testing.T) {
	c := New(10*time.Millisecond, zerolog.Nop())
	c.Register(func() { time.Sleep(time.Second) })

	start := time.Now()
	c.Shutdown()
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Shutdown() took %v, expected to return near the configured timeout", elapsed)
	}
}

func TestDone_ClosedOnShutdown(t *testing.T) {
	c := New(time.Second, zerolog.Nop())
	select {
	case <-c.Done():
		t.Fatal("Done() must not be closed before Shutdown")
	default:
	}

	c.Shutdown()
	select {
	case <-c.Done():
	default:
		t.Fatal("Done() must be closed after Shutdown")
	}
}
