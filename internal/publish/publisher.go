package publish

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/oshokin/fall-guard/internal/escalation"
	"github.com/oshokin/fall-guard/internal/logger"
)

// Publisher delivers one encoded status.
type Publisher interface {
	// Name identifies the publisher in logs.
	Name() string
	// Publish sends payload.
	Publish(ctx context.Context, payload []byte) error
	// Close flushes and releases the connection.
	Close() error
}

// Subscriber is the status source.
type Subscriber interface {
	Subscribe() (<-chan escalation.Status, func())
}

// Pump forwards every status from source to all publishers until ctx is
// done, then closes the publishers. A failing publisher is logged and does
// not stop the others.
func Pump(ctx context.Context, source Subscriber, publishers ...Publisher) error {
	if len(publishers) == 0 {
		return nil
	}

	updates, unsubscribe := source.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return CloseAll(publishers)
		case s, ok := <-updates:
			if !ok {
				return CloseAll(publishers)
			}

			publishAll(ctx, s, publishers)
		}
	}
}

// publishAll encodes s once and hands it to every publisher.
func publishAll(ctx context.Context, s escalation.Status, publishers []Publisher) {
	payload, err := s.MarshalJSON()
	if err != nil {
		logger.ErrorKV(ctx, "Failed to encode status", "error", err)

		return
	}

	for _, p := range publishers {
		if err = p.Publish(ctx, payload); err != nil {
			logger.WarnKV(ctx, "Status publish failed", "publisher", p.Name(), "event", s.Event, "error", err)
		}
	}
}

// CloseAll closes every publisher and aggregates the errors.
func CloseAll(publishers []Publisher) error {
	var errs error

	for _, p := range publishers {
		if err := p.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", p.Name(), err))
		}
	}

	return errs
}
