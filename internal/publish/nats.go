package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/oshokin/fall-guard/internal/logger"
)

// natsConn is the part of *nats.Conn the publisher uses.
type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes status on a NATS subject.
type NATSPublisher struct {
	conn    natsConn
	subject string
}

// errNoSubject is returned when a NATS publisher is built without a subject.
var errNoSubject = errors.New("nats subject is required")

// DialNATS connects to url and returns a publisher for subject.
func DialNATS(ctx context.Context, url, subject string, timeout time.Duration) (*NATSPublisher, error) {
	if subject == "" {
		return nil, errNoSubject
	}

	conn, err := nats.Connect(url,
		nats.Name("fall-guard"),
		nats.Timeout(timeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.WarnKV(ctx, "NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.InfoKV(ctx, "NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS %s: %w", url, err)
	}

	return newNATSPublisher(conn, subject), nil
}

// newNATSPublisher wraps an established connection.
func newNATSPublisher(conn natsConn, subject string) *NATSPublisher {
	return &NATSPublisher{
		conn:    conn,
		subject: subject,
	}
}

// Name implements Publisher.
func (p *NATSPublisher) Name() string {
	return "nats"
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(_ context.Context, payload []byte) error {
	if err := p.conn.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("publish to %s: %w", p.subject, err)
	}

	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
