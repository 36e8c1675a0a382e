//go:build !linux

package link

import (
	"context"
	"fmt"
	"runtime"

	"github.com/oshokin/fall-guard/internal/domain/fall"
)

// Dial implements Dialer; RFCOMM sockets are only available on Linux.
func (d *RFCOMMDialer) Dial(_ context.Context, _ *fall.RemoteDevice) (Stream, error) {
	return nil, fmt.Errorf("%w: rfcomm sockets are not supported on %s", fall.ErrLinkUnavailable, runtime.GOOS)
}
