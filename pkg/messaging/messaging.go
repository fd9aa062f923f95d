// Package messaging delivers text and document messages to a phone-number address.
package messaging

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Message is a single outbound delivery. A non-empty DocumentURL sends the
// document with Text as its caption.
type Message struct {
	To          string
	Text        string
	DocumentURL string
	Filename    string
}

// HasDocument reports whether the message carries a document link.
func (m Message) HasDocument() bool {
	return strings.TrimSpace(m.DocumentURL) != ""
}

// LogGateway writes messages to the log instead of delivering them. Used in development.
type LogGateway struct {
	logger *zap.Logger
}

// NewLogGateway constructs a log-only gateway.
func NewLogGateway(logger *zap.Logger) *LogGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogGateway{logger: logger}
}

// Send logs the message and reports success.
func (g *LogGateway) Send(_ context.Context, msg Message) (string, error) {
	g.logger.Info("message not delivered: log gateway",
		zap.String("to", msg.To),
		zap.Bool("document", msg.HasDocument()),
		zap.String("text", msg.Text),
	)
	return "log-only", nil
}
