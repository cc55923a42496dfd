// Package session drives the WebSocket session handler (C5): the
// per-connection lifecycle state machine from accepted upgrade through
// cleanup.
//
// Grounded on ws/internal/shared/handlers_ws.go (admission before upgrade)
// and pump_read.go/pump_write.go (one goroutine each driving the
// connection's read and write sides), adapted so the channel is resolved
// from the URL path at connect time instead of a later subscribe message,
// and so admission runs through VALIDATE -> AUTHORIZE -> ADMIT exactly as
// spec'd before REGISTER.
package session

import (
	"bufio"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/rs/zerolog"

	"github.com/lumiere-trade/courier/internal/metrics"
	"github.com/lumiere-trade/courier/internal/registry"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 90 * time.Second
	pingEvery = 50 * time.Second

	// sendBuffer bounds how many outbound frames can queue for one
	// subscriber before a write is treated as failed (dead subscriber).
	sendBuffer = 256
)

// CloseCode mirrors the WebSocket close codes the broker uses.
type CloseCode uint16

const (
	CloseGoingAway         CloseCode = 1001
	ClosePolicyViolation   CloseCode = 1008
)

// Close reasons, kept under the 123-byte RFC 6455 limit.
const (
	ReasonInvalidChannel = "invalid channel"
	ReasonUnauthorized   = "unauthorized"
	ReasonChannelFull    = "channel full"
	ReasonShuttingDown   = "server shutting down"
)

// Session is one accepted WebSocket connection bound to exactly one
// channel.
type Session struct {
	handle  int64
	channel string
	conn    net.Conn

	send      chan []byte
	closeOnce sync.Once

	registry *registry.Registry
	logger   zerolog.Logger
	stats    StatsRecorder

	userID        string
	walletAddress string
}

// StatsRecorder is the subset of courier.Stats the session handler
// updates. Defined here so session does not import internal/courier;
// internal/courier.Stats satisfies it.
type StatsRecorder interface {
	RecordReceived()
	RecordSlowClientDisconnect()
}

var handleCounter int64

// NextHandle returns a fresh, process-unique subscriber handle.
func NextHandle() int64 {
	return atomic.AddInt64(&handleCounter, 1)
}

// New constructs a Session for an already-upgraded connection. It does
// not register the session with the registry — call Register once ADMIT
// has passed.
func New(conn net.Conn, channelName string, userID, wallet string, reg *registry.Registry, stats StatsRecorder, logger zerolog.Logger) *Session {
	return &Session{
		handle:        NextHandle(),
		channel:       channelName,
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		registry:      reg,
		logger:        logger,
		stats:         stats,
		userID:        userID,
		walletAddress: wallet,
	}
}

// Handle returns the session's stable subscriber handle.
func (s *Session) Handle() int64 { return s.handle }

// Channel returns the single channel this session is bound to.
func (s *Session) Channel() string { return s.channel }

// Register adds the session to the connection registry as a live
// subscriber. It must be called exactly once, after ADMIT passes.
func (s *Session) Register() {
	s.registry.AddClient(&registry.Subscriber{
		Handle:        s.handle,
		Channel:       s.channel,
		UserID:        s.userID,
		WalletAddress: s.walletAddress,
		ConnectedAt:   time.Now(),
		Send:          s.Send,
		Close:         func(code uint16, reason string) { s.Close(CloseCode(code), reason) },
	})
}

// Send enqueues a frame for delivery. A full buffer is treated as a
// transport error (the subscriber is too slow to keep up) rather than
// blocking the caller — this is what lets the broadcast engine and the
// heartbeat scheduler mark a subscriber dead instead of stalling fan-out.
func (s *Session) Send(payload []byte) error {
	select {
	case s.send <- payload:
		return nil
	default:
		return errFullBuffer
	}
}

var errFullBuffer = sendBufferFullError{}

type sendBufferFullError struct{}

func (sendBufferFullError) Error() string { return "subscriber send buffer full" }

// Close closes the underlying connection exactly once, sending the given
// close code and reason first if the connection is still writable.
func (s *Session) Close(code CloseCode, reason string) {
	s.closeOnce.Do(func() {
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = wsutil.WriteServerMessage(s.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusCode(code), reason))
		s.conn.Close()
		close(s.send)
	})
}

// Cleanup removes the session from the registry. Safe to call multiple
// times and on an already-removed session (registry.RemoveClient is a
// no-op for unknown input) — this is what guarantees I2/I4 hold no matter
// which path leaves ACTIVE.
func (s *Session) Cleanup() {
	s.registry.RemoveClient(s.handle, s.channel)
}

// RunWritePump drains the send channel to the connection, batching
// messages queued together, and sends periodic pings. It returns when the
// send channel is closed or a write fails.
//
// Grounded on ws/internal/shared/pump_write.go's buffered-writer batching
// and ping ticker.
func (s *Session) RunWritePump() {
	defer metrics.RecoverPanic(s.logger, "writePump", map[string]any{"handle": s.handle})

	writer := bufio.NewWriter(s.conn)
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-s.send:
			if !ok {
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsutil.WriteServerMessage(writer, ws.OpText, message); err != nil {
				return
			}

			n := len(s.send)
			for i := 0; i < n; i++ {
				message, ok = <-s.send
				if !ok {
					writer.Flush()
					return
				}
				if err := wsutil.WriteServerMessage(writer, ws.OpText, message); err != nil {
					return
				}
			}
			if err := writer.Flush(); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsutil.WriteServerMessage(s.conn, ws.OpPing, nil); err != nil {
				return
			}
			// A successful server ping keeps the read side alive, so a
			// silent client is not dropped by the read deadline.
			s.conn.SetReadDeadline(time.Now().Add(pongWait))
		}
	}
}

// RunReadPump reads frames from the peer in a loop. Frames are counted
// but never interpreted — the broker is broadcast-only; a client message
// is not required, or used, for liveness. It returns on any read error or
// an explicit peer-initiated close.
func (s *Session) RunReadPump() {
	defer metrics.RecoverPanic(s.logger, "readPump", map[string]any{"handle": s.handle})

	s.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, op, err := wsutil.ReadClientData(s.conn)
		if err != nil {
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch op {
		case ws.OpText, ws.OpBinary:
			s.stats.RecordReceived()
		case ws.OpClose:
			return
		}
	}
}
