package registry

import (
	"sync"
	"testing"
	"time"
)

func newSub(handle int64, channelName string) *Subscriber {
	return &Subscriber{
		Handle:      handle,
		Channel:     channelName,
		ConnectedAt: time.Now(),
		Send:        func([]byte) error { return nil },
	}
}

func TestAddRemove_RoundTrip(t *testing.T) {
	r := New(nil)
	sub := newSub(1, "global")

	r.AddClient(sub)
	if r.GetChannelCount("global") != 1 {
		t.Fatalf("expected 1 subscriber after add")
	}

	r.RemoveClient(1, "global")
	if r.GetChannelCount("global") != 0 {
		t.Fatalf("expected 0 subscribers after remove")
	}
	if r.ChannelExists("global") {
		// channel entry itself may remain (empty, un-reclaimed) - that's fine,
		// only the subscriber set must be empty.
	}
}

func TestRemoveClient_UnknownIsNoop(t *testing.T) {
	r := New(nil)
	r.RemoveClient(999, "nonexistent") // must not panic
}

func TestAddClient_NoDuplicates(t *testing.T) {
	r := New(nil)
	sub := newSub(1, "global")
	r.AddClient(sub)
	r.AddClient(sub)

	if r.GetChannelCount("global") != 1 {
		t.Fatalf("expected no duplicate add, got count=%d", r.GetChannelCount("global"))
	}
}

func TestGetTotalConnections_Monotonic(t *testing.T) {
	r := New(nil)
	r.AddClient(newSub(1, "global"))
	r.AddClient(newSub(2, "global"))
	r.RemoveClient(1, "global")

	if got := r.GetTotalConnections(); got != 2 {
		t.Errorf("GetTotalConnections() = %d, want 2 (monotonic, not decremented by remove)", got)
	}
	if got := r.CurrentConnections(); got != 1 {
		t.Errorf("CurrentConnections() = %d, want 1", got)
	}
}

func TestCurrentConnections_MatchesSumOfChannels(t *testing.T) {
	r := New(nil)
	r.AddClient(newSub(1, "a"))
	r.AddClient(newSub(2, "a"))
	r.AddClient(newSub(3, "b"))

	sum := 0
	for _, count := range r.GetAllChannels() {
		sum += count
	}
	if sum != r.CurrentConnections() {
		t.Errorf("sum of per-channel counts (%d) != CurrentConnections() (%d)", sum, r.CurrentConnections())
	}
}

func TestCleanupEmptyChannels_RetainsPreDeclared(t *testing.T) {
	r := New([]string{"global"})
	r.EnsureChannel("forge.job.abc")

	removed := r.CleanupEmptyChannels(func(name string) bool { return true })

	found := false
	for _, name := range removed {
		if name == "global" {
			found = true
		}
	}
	if found {
		t.Error("pre-declared channel must never be reclaimed")
	}

	foundEphemeral := false
	for _, name := range removed {
		if name == "forge.job.abc" {
			foundEphemeral = true
		}
	}
	if !foundEphemeral {
		t.Error("empty non-pre-declared channel should be reclaimed")
	}
}

func TestCleanupEmptyChannels_SkipsNonEmpty(t *testing.T) {
	r := New(nil)
	r.AddClient(newSub(1, "forge.job.busy"))

	removed := r.CleanupEmptyChannels(func(name string) bool { return true })
	for _, name := range removed {
		if name == "forge.job.busy" {
			t.Error("non-empty channel must not be reclaimed")
		}
	}
}

func TestAddRemove_ConcurrentNoRace(t *testing.T) {
	r := New(nil)
	var wg sync.WaitGroup

	for i := int64(0); i < 100; i++ {
		wg.Add(1)
		go func(handle int64) {
			defer wg.Done()
			r.AddClient(newSub(handle, "concurrent"))
			r.RemoveClient(handle, "concurrent")
		}(i)
	}
	wg.Wait()

	if r.GetChannelCount("concurrent") != 0 {
		t.Errorf("expected all subscribers removed, got %d remaining", r.GetChannelCount("concurrent"))
	}
}
