// Package bus publishes position intents to NATS for downstream executors.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"pairs_go/internal/domain"
)

// conn is the subset of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// Publisher is an IntentSink that publishes every intent as JSON on
// <prefix>.<pair_id>.
type Publisher struct {
	conn   conn
	prefix string
}

// NewPublisher connects to the NATS server at url. token may be empty.
func NewPublisher(url, token, prefix string) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("pairs_go"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", slog.Any("error", err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	slog.Info("NATS publisher connected", slog.String("url", url), slog.String("prefix", prefix))
	return newPublisher(nc, prefix), nil
}

func newPublisher(c conn, prefix string) *Publisher {
	return &Publisher{conn: c, prefix: prefix}
}

// Subject returns the subject intents of pairID are published on.
func (p *Publisher) Subject(pairID string) string {
	if p.prefix == "" {
		return pairID
	}
	return p.prefix + "." + pairID
}

// Emit publishes one intent.
func (p *Publisher) Emit(ctx context.Context, intent domain.PositionIntent) error {
	data, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("marshal intent: %w", err)
	}
	if err := p.conn.Publish(p.Subject(intent.PairID), data); err != nil {
		return fmt.Errorf("publish intent %s: %w", intent.ID, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := p.conn.FlushWithContext(ctx)
	p.conn.Close()
	return err
}
