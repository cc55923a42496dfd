// Package ingest is an optional ingestion bridge: it lets an external
// publisher push events over NATS instead of the HTTP /publish endpoint,
// feeding them through the same validate -> auto-create -> broadcast path.
//
// Grounded on kafka/consumer.go's consumer shape (Start/Stop, a
// subscription loop, processed/failed counters under a mutex), ported
// from franz-go/Kafka to nats.go since the broker carries no
// persistence or consumer-group semantics here — a plain subject
// subscription is all §-DOMAIN STACK's NATS entry calls for.
package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/lumiere-trade/courier/internal/broadcast"
	"github.com/lumiere-trade/courier/internal/channel"
	"github.com/lumiere-trade/courier/internal/registry"
)

// subjectPrefix prefixes every subject the bridge consumes. A publish to
// "courier.publish.global" broadcasts to channel "global"; everything
// after the prefix, dots included, becomes the channel name (so
// "courier.publish.forge.job.42" targets "forge.job.42").
const subjectPrefix = "courier.publish."

const subscribeSubject = subjectPrefix + ">"

// Bridge subscribes to NATS and feeds inbound messages into the
// broadcast engine.
type Bridge struct {
	conn      *nats.Conn
	sub       *nats.Subscription
	broadcast *broadcast.Engine
	registry  *registry.Registry
	logger    zerolog.Logger

	mu                sync.Mutex
	messagesProcessed uint64
	messagesFailed    uint64
}

// Connect dials the NATS server at url and constructs a Bridge. The
// caller must call Start to begin consuming.
func Connect(url string, reg *registry.Registry, eng *broadcast.Engine, logger zerolog.Logger) (*Bridge, error) {
	conn, err := nats.Connect(url, nats.Name("courier"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &Bridge{
		conn:      conn,
		registry:  reg,
		broadcast: eng,
		logger:    logger.With().Str("component", "ingest").Logger(),
	}, nil
}

// Start subscribes to the ingestion subject. Messages arrive on the
// library's own dispatcher goroutine; handleMessage must not block.
func (b *Bridge) Start() error {
	sub, err := b.conn.Subscribe(subscribeSubject, b.handleMessage)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", subscribeSubject, err)
	}
	b.sub = sub
	b.logger.Info().Str("subject", subscribeSubject).Msg("nats ingestion bridge started")
	return nil
}

// Stop unsubscribes and closes the connection, logging final counters.
func (b *Bridge) Stop() {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	b.conn.Close()

	b.mu.Lock()
	processed, failed := b.messagesProcessed, b.messagesFailed
	b.mu.Unlock()

	b.logger.Info().
		Uint64("messages_processed", processed).
		Uint64("messages_failed", failed).
		Msg("nats ingestion bridge stopped")
}

// handleMessage maps a subject to a channel name and runs it through the
// same validate -> auto-create -> broadcast path as the HTTP publish
// endpoint. Malformed messages are logged and dropped; one bad message
// never interrupts the subscription.
func (b *Bridge) handleMessage(msg *nats.Msg) {
	channelName := strings.TrimPrefix(msg.Subject, subjectPrefix)
	if channelName == "" || channelName == msg.Subject {
		b.logger.Warn().Str("subject", msg.Subject).Msg("message on unexpected subject, dropping")
		b.incrementFailed()
		return
	}

	if _, err := channel.Validate(channelName); err != nil {
		b.logger.Warn().Str("channel", channelName).Err(err).Msg("invalid channel name, dropping")
		b.incrementFailed()
		return
	}

	var probe any
	if err := json.Unmarshal(msg.Data, &probe); err != nil {
		b.logger.Warn().Str("channel", channelName).Err(err).Msg("payload is not valid JSON, dropping")
		b.incrementFailed()
		return
	}
	if _, ok := probe.(map[string]any); !ok {
		b.logger.Warn().Str("channel", channelName).Msg("payload is not a JSON object, dropping")
		b.incrementFailed()
		return
	}

	b.registry.EnsureChannel(channelName)
	reached := b.broadcast.Broadcast(channelName, msg.Data)

	b.incrementProcessed()
	b.logger.Debug().
		Str("channel", channelName).
		Int("clients_reached", reached).
		Msg("ingested nats message")
}

func (b *Bridge) incrementProcessed() {
	b.mu.Lock()
	b.messagesProcessed++
	b.mu.Unlock()
}

func (b *Bridge) incrementFailed() {
	b.mu.Lock()
	b.messagesFailed++
	b.mu.Unlock()
}
