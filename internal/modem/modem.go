package modem

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/oshokin/fall-guard/internal/domain/fall"
	"github.com/oshokin/fall-guard/internal/logger"
	"github.com/oshokin/fall-guard/internal/sms"
)

const (
	// DefaultCommandTimeout bounds a plain AT command.
	DefaultCommandTimeout = 5 * time.Second
	// DefaultSubmitTimeout bounds the network round trip of a message submit.
	DefaultSubmitTimeout = 60 * time.Second
	// DefaultSubmitInterval spaces consecutive message submits.
	DefaultSubmitInterval = time.Second

	// pollInterval is the serial read timeout used while waiting for a reply.
	pollInterval = 100 * time.Millisecond
	// ctrlZ terminates a message body.
	ctrlZ = "\x1A"
	// prompt is the modem's request for a message body.
	prompt = ">"
)

var (
	errNoPrompt      = errors.New("modem did not prompt for message body")
	errTimeout       = errors.New("modem reply timeout")
	errInvalidNumber = errors.New("invalid phone number")
	errNotSingle     = errors.New("text mode message must fit one GSM 7-bit message")
)

// finalResults are the lines that end an AT command reply.
//
//nolint:gochecknoglobals // Read-only lookup table.
var finalResults = []string{"OK", "ERROR", "+CMS ERROR", "+CME ERROR", "NO CARRIER", "BUSY", "NO ANSWER", "NO DIALTONE"}

// Modem is a GSM modem reached through a serial port.
type Modem struct {
	// mu serializes command exchanges and guards port.
	mu sync.Mutex
	// port is nil until the first successful open.
	port Port
	// path and baudRate locate the port.
	path     string
	baudRate int
	// open creates the port.
	open Opener
	// commandTimeout and submitTimeout bound replies.
	commandTimeout time.Duration
	submitTimeout  time.Duration
	// limiter paces message submits.
	limiter *rate.Limiter
	// smsGranted and callGranted are the capability grants.
	smsGranted  bool
	callGranted bool
	// reference is the last concatenation reference used.
	reference byte
}

// Option configures a Modem.
type Option func(*Modem)

// WithBaudRate overrides DefaultBaudRate.
func WithBaudRate(baudRate int) Option {
	return func(m *Modem) {
		if baudRate > 0 {
			m.baudRate = baudRate
		}
	}
}

// WithOpener replaces the serial port opener.
func WithOpener(open Opener) Option {
	return func(m *Modem) {
		m.open = open
	}
}

// WithCommandTimeout overrides DefaultCommandTimeout.
func WithCommandTimeout(timeout time.Duration) Option {
	return func(m *Modem) {
		if timeout > 0 {
			m.commandTimeout = timeout
		}
	}
}

// WithSubmitTimeout overrides DefaultSubmitTimeout.
func WithSubmitTimeout(timeout time.Duration) Option {
	return func(m *Modem) {
		if timeout > 0 {
			m.submitTimeout = timeout
		}
	}
}

// WithSubmitInterval overrides DefaultSubmitInterval; zero disables pacing.
func WithSubmitInterval(interval time.Duration) Option {
	return func(m *Modem) {
		if interval <= 0 {
			m.limiter = rate.NewLimiter(rate.Inf, 1)

			return
		}

		m.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
}

// WithGrants sets the SMS and call capability grants.
func WithGrants(smsGranted, callGranted bool) Option {
	return func(m *Modem) {
		m.smsGranted = smsGranted
		m.callGranted = callGranted
	}
}

// New creates a modem on path. Both capabilities are granted unless WithGrants says otherwise.
func New(path string, opts ...Option) *Modem {
	m := &Modem{
		path:           path,
		baudRate:       DefaultBaudRate,
		open:           OpenSerial,
		commandTimeout: DefaultCommandTimeout,
		submitTimeout:  DefaultSubmitTimeout,
		limiter:        rate.NewLimiter(rate.Every(DefaultSubmitInterval), 1),
		smsGranted:     true,
		callGranted:    true,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Open opens the port and checks the modem answers. Sends open it lazily otherwise.
func (m *Modem) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.ensureOpenLocked(ctx)
}

// Close releases the port. It is safe to call on a closed modem.
func (m *Modem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closeLocked()
}

// SendMultipart sends parts as one message in PDU mode.
func (m *Modem) SendMultipart(ctx context.Context, number string, parts []string) error {
	if !m.smsGranted {
		return fmt.Errorf("send message: %w", fall.ErrPermissionDenied)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.reference++

	pdus, err := sms.SubmitPDUs(number, sms.EncodingOf(strings.Join(parts, "")), parts, m.reference)
	if err != nil {
		return err
	}

	if err = m.ensureOpenLocked(ctx); err != nil {
		return err
	}

	if _, err = m.commandLocked(ctx, "AT+CMGF=0", m.commandTimeout); err != nil {
		return err
	}

	for i, pdu := range pdus {
		if err = m.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %w", fall.ErrTransmission, err)
		}

		if err = m.submitLocked(ctx, fmt.Sprintf("AT+CMGS=%d", pdu.Length), pdu.Hex); err != nil {
			return fmt.Errorf("part %d/%d: %w", i+1, len(pdus), err)
		}
	}

	logger.DebugKV(ctx, "Message sent", "parts", len(pdus))

	return nil
}

// SendText sends a single GSM 7-bit message in text mode.
func (m *Modem) SendText(ctx context.Context, number string, text string) error {
	if !m.smsGranted {
		return fmt.Errorf("send message: %w", fall.ErrPermissionDenied)
	}

	number, err := dialable(number)
	if err != nil {
		return fmt.Errorf("%w: %w", fall.ErrEncoding, err)
	}

	enc, parts := sms.Split(text)
	if enc != sms.GSM7 || len(parts) != 1 {
		return fmt.Errorf("%w: %w", fall.ErrEncoding, errNotSingle)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err = m.ensureOpenLocked(ctx); err != nil {
		return err
	}

	for _, command := range []string{"AT+CMGF=1", `AT+CSCS="GSM"`} {
		if _, err = m.commandLocked(ctx, command, m.commandTimeout); err != nil {
			return err
		}
	}

	if err = m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", fall.ErrTransmission, err)
	}

	if err = m.submitLocked(ctx, fmt.Sprintf("AT+CMGS=%q", number), parts[0]); err != nil {
		return err
	}

	logger.DebugKV(ctx, "Text message sent")

	return nil
}

// PlaceCall dials number as a voice call.
func (m *Modem) PlaceCall(ctx context.Context, number string) error {
	if !m.callGranted {
		return fmt.Errorf("place call: %w", fall.ErrPermissionDenied)
	}

	number, err := dialable(number)
	if err != nil {
		return fmt.Errorf("%w: %w", fall.ErrTransmission, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err = m.ensureOpenLocked(ctx); err != nil {
		return err
	}

	if _, err = m.commandLocked(ctx, "ATD"+number+";", m.submitTimeout); err != nil {
		return err
	}

	logger.DebugKV(ctx, "Call placed")

	return nil
}

// ensureOpenLocked opens the port and initialises the modem. Caller holds m.mu.
func (m *Modem) ensureOpenLocked(ctx context.Context) error {
	if m.port != nil {
		return nil
	}

	port, err := m.open(m.path, m.baudRate)
	if err != nil {
		return err
	}

	if err = port.SetReadTimeout(pollInterval); err != nil {
		_ = port.Close()

		return fmt.Errorf("%w: set read timeout: %w", fall.ErrTransmission, err)
	}

	m.port = port

	// Echo off keeps replies free of the command text.
	for _, command := range []string{"ATE0", "AT"} {
		if _, err = m.commandLocked(ctx, command, m.commandTimeout); err != nil {
			_ = m.closeLocked()

			return fmt.Errorf("modem %s not responding: %w", m.path, err)
		}
	}

	logger.InfoKV(ctx, "Modem ready", "port", m.path)

	return nil
}

// closeLocked closes the port. Caller holds m.mu.
func (m *Modem) closeLocked() error {
	if m.port == nil {
		return nil
	}

	err := m.port.Close()
	m.port = nil

	return err
}

// commandLocked sends an AT command and waits for its final result.
func (m *Modem) commandLocked(ctx context.Context, command string, timeout time.Duration) (string, error) {
	if err := m.writeLocked(command + "\r"); err != nil {
		return "", err
	}

	reply, err := m.readUntilLocked(ctx, timeout, isFinal)
	if err != nil {
		return reply, err
	}

	return reply, resultOf(command, reply)
}

// submitLocked sends a message command, waits for the prompt and writes the body.
func (m *Modem) submitLocked(ctx context.Context, command, body string) error {
	if err := m.writeLocked(command + "\r"); err != nil {
		return err
	}

	reply, err := m.readUntilLocked(ctx, m.commandTimeout, func(s string) bool {
		return strings.Contains(s, prompt) || isFinal(s)
	})
	if err != nil {
		return err
	}

	if !strings.Contains(reply, prompt) {
		if resultErr := resultOf(command, reply); resultErr != nil {
			return resultErr
		}

		return fmt.Errorf("%w: %w", fall.ErrTransmission, errNoPrompt)
	}

	if err = m.writeLocked(body + ctrlZ); err != nil {
		return err
	}

	reply, err = m.readUntilLocked(ctx, m.submitTimeout, isFinal)
	if err != nil {
		return err
	}

	return resultOf(command, reply)
}

// writeLocked writes raw text to the port.
func (m *Modem) writeLocked(s string) error {
	if _, err := m.port.Write([]byte(s)); err != nil {
		_ = m.closeLocked()

		return fmt.Errorf("%w: write: %w", fall.ErrTransmission, err)
	}

	return nil
}

// readUntilLocked accumulates replies until done is satisfied, ctx ends or timeout passes.
func (m *Modem) readUntilLocked(ctx context.Context, timeout time.Duration, done func(string) bool) (string, error) {
	var (
		reply    strings.Builder
		buf      = make([]byte, 256)
		deadline = time.Now().Add(timeout)
	)

	for {
		if err := ctx.Err(); err != nil {
			return reply.String(), fmt.Errorf("%w: %w", fall.ErrTransmission, err)
		}

		if time.Now().After(deadline) {
			return reply.String(), fmt.Errorf("%w: %w", fall.ErrTransmission, errTimeout)
		}

		n, err := m.port.Read(buf)
		if n > 0 {
			reply.Write(buf[:n])

			if done(reply.String()) {
				return reply.String(), nil
			}
		}

		if err != nil {
			_ = m.closeLocked()

			return reply.String(), fmt.Errorf("%w: read: %w", fall.ErrTransmission, err)
		}
	}
}

// isFinal reports whether reply holds a final result line.
func isFinal(reply string) bool {
	return finalLine(reply) != ""
}

// finalLine returns the first final result line in reply.
func finalLine(reply string) string {
	for line := range strings.SplitSeq(reply, "\n") {
		line = strings.TrimSpace(line)

		for _, result := range finalResults {
			if strings.HasPrefix(line, result) {
				return line
			}
		}
	}

	return ""
}

// resultOf turns a final result line into an error.
func resultOf(command, reply string) error {
	line := finalLine(reply)
	if line == "OK" {
		return nil
	}

	return fmt.Errorf("%w: %s: %s", fall.ErrTransmission, command, line)
}

// dialable strips separators from number and rejects characters a modem would not dial.
func dialable(number string) (string, error) {
	var b strings.Builder

	for _, r := range strings.TrimSpace(number) {
		switch {
		case r >= '0' && r <= '9', r == '*', r == '#':
			b.WriteRune(r)
		case r == '+' && b.Len() == 0:
			b.WriteRune(r)
		case r == ' ', r == '-', r == '(', r == ')':
		default:
			return "", fmt.Errorf("%w: %q", errInvalidNumber, number)
		}
	}

	if b.Len() == 0 || b.String() == "+" {
		return "", fmt.Errorf("%w: %q", errInvalidNumber, number)
	}

	return b.String(), nil
}
