package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/fall-guard/internal/domain/fall"
	"github.com/oshokin/fall-guard/internal/logger"
)

const (
	// ReadBufferSize is the size of the buffer each blocking read fills.
	ReadBufferSize = 1024

	// DefaultReadTimeout bounds how long a read may block before the loop
	// re-checks whether the session was closed.
	DefaultReadTimeout = time.Second
)

// ServiceUUID is the Serial Port Profile service class the sensor exposes.
//
//nolint:gochecknoglobals // Well-known constant identifier.
var ServiceUUID = uuid.MustParse("00001101-0000-1000-8000-00805F9B34FB")

// Stream is the raw byte stream of a connected sensor.
type Stream interface {
	io.Reader
	io.Closer
}

// Dialer opens a Stream to a remote device. Implementations block until the
// link is established or ctx is done.
type Dialer interface {
	Dial(ctx context.Context, device *fall.RemoteDevice) (Stream, error)
}

// deadlineReader is implemented by pollable streams (sockets, os.File).
type deadlineReader interface {
	SetReadDeadline(t time.Time) error
}

// timeoutReader is implemented by serial ports, which return (0, nil) on timeout.
type timeoutReader interface {
	SetReadTimeout(t time.Duration) error
}

// Session is the live connection to one device.
type Session struct {
	// ID identifies the session in logs and controller messages.
	ID uuid.UUID
	// Device is the sensor this session reads from.
	Device *fall.RemoteDevice
	// OpenedAt is when the link was established.
	OpenedAt time.Time

	// stream is the underlying byte stream.
	stream Stream
	// mu guards closed and dead.
	mu sync.Mutex
	// closed is set when Disconnect was requested.
	closed bool
	// dead is set when the stream failed or was closed.
	dead bool
}

// Alive reports whether the session can still deliver data.
func (s *Session) Alive() bool {
	if s == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return !s.dead
}

// close marks the session as closed on request and closes the stream once.
func (s *Session) close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}

	s.closed = true
	s.dead = true
	s.mu.Unlock()

	return s.stream.Close()
}

// fail marks the session dead after a stream error and reports whether the
// failure was unsolicited (true) or caused by a requested close (false).
func (s *Session) fail() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dead = true

	return !s.closed
}

// Transport manages the single active sensor session.
type Transport struct {
	// dialer opens streams to devices.
	dialer Dialer
	// readTimeout bounds each blocking read on streams that support it.
	readTimeout time.Duration

	// mu guards current.
	mu sync.Mutex
	// current is the active session, nil when disconnected.
	current *Session
}

// Option configures a Transport.
type Option func(*Transport)

// WithReadTimeout sets the per-read timeout used to bound Disconnect latency.
func WithReadTimeout(timeout time.Duration) Option {
	return func(t *Transport) {
		if timeout > 0 {
			t.readTimeout = timeout
		}
	}
}

// NewTransport creates a transport using the provided dialer.
func NewTransport(dialer Dialer, opts ...Option) *Transport {
	t := &Transport{
		dialer:      dialer,
		readTimeout: DefaultReadTimeout,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Connect tears down any existing session and opens a new one to device.
// It blocks until the link is up, so callers run it off their main loop.
func (t *Transport) Connect(ctx context.Context, device *fall.RemoteDevice) (*Session, error) {
	if device == nil {
		return nil, &fall.LinkError{Op: "connect", Device: "<none>", Err: fall.ErrLinkUnavailable}
	}

	t.Disconnect(ctx, t.Current())

	logger.InfoKV(ctx, "Connecting to sensor",
		"device", device.DisplayName(), "address", device.Address, "path", device.Path, "service", ServiceUUID)

	stream, err := t.dialer.Dial(ctx, device)
	if err != nil {
		return nil, &fall.LinkError{Op: "connect", Device: device.DisplayName(), Err: classify(err)}
	}

	session := &Session{
		ID:       uuid.New(),
		Device:   device.Clone(),
		OpenedAt: time.Now(),
		stream:   stream,
	}

	t.mu.Lock()
	previous := t.current
	t.current = session
	t.mu.Unlock()

	// A concurrent Connect may have installed a session while we were dialing.
	if previous != nil {
		_ = previous.close()
	}

	logger.InfoKV(ctx, "Connected to sensor", "device", device.DisplayName(), "session_id", session.ID)

	return session, nil
}

// ReadLoop reads the session stream until it fails or is disconnected.
// Every read of at least one byte is passed to onChunk as text. On EOF or a
// read error the session is marked dead, onDisconnect is called once and the
// loop returns; it never reconnects. A session closed through Disconnect
// returns without calling onDisconnect.
func (t *Transport) ReadLoop(
	ctx context.Context,
	session *Session,
	onChunk func(chunk string),
	onDisconnect func(err error),
) {
	ctx = logger.WithKV(ctx, "session_id", session.ID)

	if tr, ok := session.stream.(timeoutReader); ok {
		if err := tr.SetReadTimeout(t.readTimeout); err != nil {
			logger.WarnKV(ctx, "Unable to set read timeout", "error", err)
		}
	}

	dr, hasDeadline := session.stream.(deadlineReader)
	buffer := make([]byte, ReadBufferSize)

	for {
		if hasDeadline {
			_ = dr.SetReadDeadline(time.Now().Add(t.readTimeout))
		}

		n, err := session.stream.Read(buffer)
		if n > 0 {
			chunk := string(buffer[:n])
			logger.DebugKV(ctx, "Received", "bytes", n, "chunk", chunk)
			onChunk(chunk)
		}

		switch {
		case err == nil:
			if !session.Alive() {
				return
			}

			continue
		case errors.Is(err, os.ErrDeadlineExceeded):
			if !session.Alive() {
				return
			}

			continue
		}

		if !session.fail() {
			logger.Debug(ctx, "Read loop stopped after disconnect")
			return
		}

		_ = session.stream.Close()
		t.clear(session)

		logger.WarnKV(ctx, "Input stream was disconnected", "error", err)

		onDisconnect(&fall.LinkError{
			Op:     "read",
			Device: session.Device.DisplayName(),
			Err:    fmt.Errorf("%w: %w", fall.ErrLinkIO, err),
		})

		return
	}
}

// Disconnect closes the session if it is still open. It is idempotent and
// safe to call from any goroutine; a blocked read is interrupted by closing
// the stream.
func (t *Transport) Disconnect(ctx context.Context, session *Session) {
	if session == nil {
		return
	}

	if err := session.close(); err != nil {
		logger.WarnKV(ctx, "Error closing sensor connection", "session_id", session.ID, "error", err)
	}

	t.clear(session)
}

// Connected reports whether a live session exists.
func (t *Transport) Connected() bool {
	return t.Current().Alive()
}

// Current returns the active session or nil.
func (t *Transport) Current() *Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.current
}

// clear forgets session if it is still the current one.
func (t *Transport) clear(session *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == session {
		t.current = nil
	}
}

// classify makes sure a dial error carries one of the link sentinels.
func classify(err error) error {
	switch {
	case errors.Is(err, fall.ErrLinkUnavailable),
		errors.Is(err, fall.ErrPermissionDenied),
		errors.Is(err, fall.ErrConnectFailed):
		return err
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %w", fall.ErrLinkUnavailable, err)
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %w", fall.ErrPermissionDenied, err)
	default:
		return fmt.Errorf("%w: %w", fall.ErrConnectFailed, err)
	}
}
