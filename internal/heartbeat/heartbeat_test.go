package heartbeat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lumiere-trade/courier/internal/registry"
)

func newTestSub(handle int64, channelName string, send func([]byte) error) *registry.Subscriber {
	return &registry.Subscriber{
		Handle:  handle,
		Channel: channelName,
		Send:    send,
	}
}

func TestTick_PrunesFailingSubscribersAndInvokesOnDead(t *testing.T) {
	reg := registry.New(nil)

	reg.AddClient(newTestSub(1, "global", func([]byte) error { return nil }))
	reg.AddClient(newTestSub(2, "global", func([]byte) error { return errFail }))

	var mu sync.Mutex
	var pruned []int64
	sched := New(reg, time.Hour, zerolog.Nop(), func(handle int64, channelName string) {
		mu.Lock()
		pruned = append(pruned, handle)
		mu.Unlock()
	})

	sched.tick()

	mu.Lock()
	defer mu.Unlock()
	if len(pruned) != 1 || pruned[0] != 2 {
		t.Fatalf("expected handle 2 pruned, got %v", pruned)
	}
	if reg.GetChannelCount("global") != 1 {
		t.Fatalf("expected 1 surviving subscriber, got %d", reg.GetChannelCount("global"))
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	reg := registry.New(nil)
	sched := New(reg, 5*time.Millisecond, zerolog.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return after context cancellation")
	}
}

type failError struct{}

func (failError) Error() string { return "send failed" }

var errFail = failError{}
