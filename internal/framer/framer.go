package framer

import (
	"context"
	"strings"
	"time"

	"github.com/oshokin/fall-guard/internal/domain/fall"
	"github.com/oshokin/fall-guard/internal/logger"
)

// tokens maps upper-cased wire tokens to event kinds, in match priority.
//
//nolint:gochecknoglobals // Read-only lookup table.
var tokens = []struct {
	token string
	kind  fall.SensorEventKind
}{
	{token: fall.ImpactDetected.String(), kind: fall.ImpactDetected},
}

// Frame scans one chunk and returns at most one event for it.
// Unknown content is logged at debug level and dropped.
func Frame(ctx context.Context, chunk string) (fall.SensorEvent, bool) {
	upper := strings.ToUpper(chunk)

	for _, t := range tokens {
		if !strings.Contains(upper, t.token) {
			continue
		}

		return fall.SensorEvent{
			Kind:       t.kind,
			Raw:        chunk,
			ReceivedAt: time.Now(),
		}, true
	}

	logger.DebugKV(ctx, "Ignoring sensor chunk", "chunk", chunk)

	return fall.SensorEvent{}, false
}
