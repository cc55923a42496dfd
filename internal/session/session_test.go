package session

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lumiere-trade/courier/internal/registry"
)

func pipeConn(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestSend_FullBufferReturnsError(t *testing.T) {
	_, server := pipeConn(t)
	s := New(server, "global", "", "", nil, nil, zerolog.Nop())

	for i := 0; i < sendBuffer; i++ {
		if err := s.Send([]byte("x")); err != nil {
			t.Fatalf("unexpected error filling buffer at %d: %v", i, err)
		}
	}

	if err := s.Send([]byte("overflow")); !errors.Is(err, errFullBuffer) {
		t.Fatalf("expected full-buffer error, got %v", err)
	}
}

func TestRegister_WiresCloseThroughToSession(t *testing.T) {
	client, server := pipeConn(t)
	reg := registry.New(nil)
	s := New(server, "global", "user-1", "0xabc", reg, nil, zerolog.Nop())

	s.Register()

	subs := reg.GetChannelSubscribers("global")
	if len(subs) != 1 {
		t.Fatalf("expected 1 subscriber, got %d", len(subs))
	}
	if subs[0].Close == nil {
		t.Fatal("expected Close to be wired on the registered subscriber")
	}

	done := make(chan struct{})
	go func() {
		buf := make([]byte, 256)
		client.SetReadDeadline(time.Now().Add(2 * time.Second))
		client.Read(buf)
		close(done)
	}()

	subs[0].Close(1008, "test close")

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("expected close frame to be written to the connection")
	}
}

func TestClose_IsIdempotent(t *testing.T) {
	_, server := pipeConn(t)
	s := New(server, "global", "", "", nil, nil, zerolog.Nop())

	s.Close(ClosePolicyViolation, ReasonInvalidChannel)
	s.Close(ClosePolicyViolation, ReasonInvalidChannel) // must not panic on double-close
}

func TestCleanup_RemovesFromRegistry(t *testing.T) {
	_, server := pipeConn(t)
	reg := registry.New(nil)
	s := New(server, "global", "", "", reg, nil, zerolog.Nop())
	s.Register()

	if reg.GetChannelCount("global") != 1 {
		t.Fatal("expected subscriber registered before cleanup")
	}

	s.Cleanup()

	if reg.GetChannelCount("global") != 0 {
		t.Fatal("expected subscriber removed after cleanup")
	}
}
