package dispatch

import (
	"context"
	"strings"

	"github.com/oshokin/fall-guard/internal/logger"
)

// DryRun logs messages and calls instead of sending them.
type DryRun struct{}

// SendMultipart implements Messenger.
func (DryRun) SendMultipart(ctx context.Context, number string, parts []string) error {
	logger.WarnKV(ctx, "Dry run: message not sent",
		"to", number,
		"parts", len(parts),
		"text", strings.Join(parts, ""),
	)

	return nil
}

// SendText implements Messenger.
func (DryRun) SendText(ctx context.Context, number string, text string) error {
	logger.WarnKV(ctx, "Dry run: text message not sent", "to", number, "text", text)

	return nil
}

// PlaceCall implements Caller.
func (DryRun) PlaceCall(ctx context.Context, number string) error {
	logger.WarnKV(ctx, "Dry run: call not placed", "to", number)

	return nil
}
