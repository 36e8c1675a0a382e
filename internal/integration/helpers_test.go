package integration

import (
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/fall-guard/internal/domain/fall"
	"github.com/oshokin/fall-guard/internal/escalation"
	"github.com/oshokin/fall-guard/internal/link"
	"github.com/oshokin/fall-guard/internal/service/common"
)

// reservePort returns a free loopback address.
func reservePort(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	require.NoError(t, l.Close())

	return addr
}

// sensor hands out in-memory sensor streams and writes impacts into them.
type sensor struct {
	mu      sync.Mutex
	writers []*io.PipeWriter
}

// Dial implements link.Dialer.
func (s *sensor) Dial(context.Context, *fall.RemoteDevice) (link.Stream, error) {
	r, w := io.Pipe()

	s.mu.Lock()
	s.writers = append(s.writers, w)
	s.mu.Unlock()

	return r, nil
}

// impact writes an impact line on the latest stream.
func (s *sensor) impact(t *testing.T) {
	t.Helper()

	s.mu.Lock()
	w := s.writers[len(s.writers)-1]
	s.mu.Unlock()

	_, err := w.Write([]byte("IMPACT_DETECTED\n"))
	require.NoError(t, err)
}

// gsmModem is a scripted AT modem that accepts everything.
type gsmModem struct {
	mu      sync.Mutex
	input   strings.Builder
	output  []byte
	written []string
}

// Write records complete commands and queues their replies.
func (g *gsmModem) Write(p []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, b := range p {
		if b != '\r' && b != 0x1A {
			g.input.WriteByte(b)

			continue
		}

		line := g.input.String()
		g.input.Reset()
		g.written = append(g.written, line)

		switch {
		case b == 0x1A:
			g.output = append(g.output, "\r\n+CMGS: 1\r\n\r\nOK\r\n"...)
		case strings.HasPrefix(line, "AT+CMGS"):
			g.output = append(g.output, "\r\n> "...)
		default:
			g.output = append(g.output, "\r\nOK\r\n"...)
		}
	}

	return len(p), nil
}

// Read drains queued replies, simulating a read timeout when there are none.
func (g *gsmModem) Read(p []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.output) == 0 {
		g.mu.Unlock()
		time.Sleep(time.Millisecond)
		g.mu.Lock()

		return 0, nil
	}

	n := copy(p, g.output)
	g.output = g.output[n:]

	return n, nil
}

// Close implements io.Closer.
func (g *gsmModem) Close() error { return nil }

// SetReadTimeout implements modem.Port.
func (g *gsmModem) SetReadTimeout(time.Duration) error { return nil }

// count returns how many written lines start with prefix.
func (g *gsmModem) count(prefix string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	var n int

	for _, line := range g.written {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}

	return n
}

// watch streams status views from the daemon into a channel.
func watch(ctx context.Context, t *testing.T, c *common.Client) <-chan escalation.View {
	t.Helper()

	views := make(chan escalation.View, 256)

	go func() {
		_ = c.WatchStatus(ctx, func(v escalation.View) {
			select {
			case views <- v:
			default:
			}
		})
	}()

	return views
}

// waitFor returns the first view matching match.
func waitFor(t *testing.T, views <-chan escalation.View, match func(escalation.View) bool) escalation.View {
	t.Helper()

	deadline := time.After(5 * time.Second)

	for {
		select {
		case v := <-views:
			if match(v) {
				return v
			}
		case <-deadline:
			t.Fatal("timed out waiting for status")

			return escalation.View{}
		}
	}
}
