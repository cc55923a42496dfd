package limits

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestConnectionRateLimiter_PerIPBurst(t *testing.T) {
	crl := NewConnectionRateLimiter(ConnectionRateLimiterConfig{
		IPRate:      1,
		IPBurst:     2,
		GlobalRate:  1000,
		GlobalBurst: 1000,
		Logger:      zerolog.Nop(),
	})
	defer crl.Stop()

	if !crl.Allow("1.2.3.4") {
		t.Fatal("expected first connection to be allowed")
	}
	if !crl.Allow("1.2.3.4") {
		t.Fatal("expected second connection within burst to be allowed")
	}
	if crl.Allow("1.2.3.4") {
		t.Fatal("expected third connection to exceed burst")
	}

	// A different IP has its own bucket.
	if !crl.Allow("5.6.7.8") {
		t.Fatal("expected a different IP to have an independent bucket")
	}
}

func TestConnectionRateLimiter_StopIsIdempotent(t *testing.T) {
	crl := NewConnectionRateLimiter(ConnectionRateLimiterConfig{Logger: zerolog.Nop()})
	crl.Stop()
	crl.Stop() // must not panic
}

func TestResourceGuard_RejectsAtThreshold(t *testing.T) {
	g := NewResourceGuard(0, time.Hour, zerolog.Nop())
	defer g.Stop()

	// No sample has landed yet, so CPUPercent is 0; a 0 threshold must
	// reject immediately (0 is not < 0).
	if g.ShouldAcceptConnection() {
		t.Fatal("expected guard to reject when threshold is 0")
	}
}

func TestResourceGuard_AcceptsBelowThreshold(t *testing.T) {
	g := NewResourceGuard(100, time.Hour, zerolog.Nop())
	defer g.Stop()

	if !g.ShouldAcceptConnection() {
		t.Fatal("expected guard to accept when no sample exceeds a 100 threshold")
	}
}
