// Package events publishes and consumes JSON messages over NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const flushTimeout = 2 * time.Second

// Bus is a NATS connection used for both publishing and queue-group consumption.
type Bus struct {
	conn   *nats.Conn
	logger *zap.Logger
}

// Connect dials NATS with unlimited reconnects. Extra options are appended.
func Connect(url string, logger *zap.Logger, opts ...nats.Option) (*Bus, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := []nats.Option{
		nats.Name("sma-gatepass-api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &Bus{conn: nc, logger: logger}, nil
}

// Publish JSON-encodes v onto subject and waits for the server to acknowledge the flush.
func (b *Bus) Publish(ctx context.Context, subject string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	if err := b.conn.FlushWithContext(flushCtx); err != nil {
		return fmt.Errorf("flush %s: %w", subject, err)
	}
	return nil
}

// Handler consumes one raw message payload.
type Handler func(ctx context.Context, data []byte) error

// Subscribe joins queue group on subject so each message is handled by a single
// consumer. The returned func unsubscribes.
func (b *Bus) Subscribe(subject, queue string, handler Handler) (func(), error) {
	sub, err := b.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		if err := handler(context.Background(), msg.Data); err != nil {
			b.logger.Sugar().Errorw("event handler failed", "subject", msg.Subject, "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	// Make sure the interest is registered before returning.
	if err := b.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("flush subscription: %w", err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// Close drains the connection.
func (b *Bus) Close() error {
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return err
	}
	return nil
}
