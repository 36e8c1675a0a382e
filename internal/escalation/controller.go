package escalation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/fall-guard/internal/domain/fall"
	"github.com/oshokin/fall-guard/internal/framer"
	"github.com/oshokin/fall-guard/internal/link"
	"github.com/oshokin/fall-guard/internal/logger"
)

const (
	// DefaultCountdown is the time the user has to cancel an escalation.
	DefaultCountdown = 30 * time.Second
	// DefaultTick is the countdown display granularity.
	DefaultTick = time.Second

	// eventBuffer is the capacity of the event inbox.
	eventBuffer = 64
	// subscriberBuffer is the capacity of each status subscription.
	subscriberBuffer = 64
)

var (
	// ErrStopped is returned by requests made after Run returned.
	ErrStopped = errors.New("escalation controller stopped")
	// ErrInvalidContact is returned for contacts that are not phone numbers.
	ErrInvalidContact = errors.New("invalid emergency contact")
)

// Link is the sensor transport as the controller uses it.
type Link interface {
	Connect(ctx context.Context, device *fall.RemoteDevice) (*link.Session, error)
	ReadLoop(ctx context.Context, session *link.Session, onChunk func(string), onDisconnect func(error))
	Disconnect(ctx context.Context, session *link.Session)
}

// Resolver finds the best-effort location.
type Resolver interface {
	Resolve(ctx context.Context) *fall.Location
}

// Dispatcher delivers the alert.
type Dispatcher interface {
	Dispatch(ctx context.Context, contact fall.EmergencyContact, location *fall.Location) fall.DeliveryOutcome
}

// Controller is the escalation state machine.
type Controller struct {
	link       Link
	resolver   Resolver
	dispatcher Dispatcher
	countdown  time.Duration
	tick       time.Duration

	// control and events are the two inboxes; control has priority.
	control chan command
	events  chan event
	// stopped is closed when Run returns.
	stopped  chan struct{}
	stopOnce sync.Once

	// connectMu serializes connect attempts; latestAttempt invalidates stale ones.
	connectMu     sync.Mutex
	latestAttempt atomic.Uint64

	// alerts tracks alert runs so Run can wait for them.
	alerts sync.WaitGroup

	subsMu  sync.Mutex
	subs    map[uint64]chan Status
	nextSub uint64

	// Fields below are owned by the Run goroutine.
	phase      fall.Phase
	linkStatus fall.LinkStatus
	device     *fall.RemoteDevice
	contact    fall.EmergencyContact
	session    *link.Session
	attempt    uint64
	escalation *fall.EscalationSession
	stopTimer  chan struct{}
}

// Option configures a Controller.
type Option func(*Controller)

// WithCountdown overrides DefaultCountdown.
func WithCountdown(countdown time.Duration) Option {
	return func(c *Controller) {
		if countdown > 0 {
			c.countdown = countdown
		}
	}
}

// WithTick overrides DefaultTick.
func WithTick(tick time.Duration) Option {
	return func(c *Controller) {
		if tick > 0 {
			c.tick = tick
		}
	}
}

// NewController creates a controller in the Idle phase.
func NewController(l Link, resolver Resolver, dispatcher Dispatcher, opts ...Option) *Controller {
	c := &Controller{
		link:       l,
		resolver:   resolver,
		dispatcher: dispatcher,
		countdown:  DefaultCountdown,
		tick:       DefaultTick,
		control:    make(chan command),
		events:     make(chan event, eventBuffer),
		stopped:    make(chan struct{}),
		subs:       make(map[uint64]chan Status),
		phase:      fall.PhaseIdle,
		linkStatus: fall.LinkDisconnected,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Run processes messages until ctx is done. On return the link is torn down
// and any alert already under way has finished.
func (c *Controller) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "escalation")

	defer c.stopOnce.Do(func() { close(c.stopped) })

	logger.Info(ctx, "Escalation controller started")

	for {
		select {
		case <-ctx.Done():
			c.shutdown(ctx)

			return nil
		case cmd := <-c.control:
			c.handleCommand(ctx, cmd)
		case ev := <-c.events:
			c.drainControl(ctx)
			c.handleEvent(ctx, ev)
		}
	}
}

// SelectDevice replaces the sensor and starts connecting to it.
func (c *Controller) SelectDevice(ctx context.Context, device *fall.RemoteDevice) error {
	if device == nil {
		return fmt.Errorf("%w: no device", fall.ErrLinkUnavailable)
	}

	_, err := request(ctx, c, func(reply chan struct{}) command {
		return selectDevice{device: device.Clone(), reply: reply}
	})

	return err
}

// SelectContact replaces the emergency contact; an empty number clears it.
// A running escalation keeps the contact it started with.
func (c *Controller) SelectContact(ctx context.Context, number string) error {
	contact, err := parseContact(number)
	if err != nil {
		return err
	}

	_, err = request(ctx, c, func(reply chan struct{}) command {
		return selectContact{contact: contact, reply: reply}
	})

	return err
}

// Cancel stops a running countdown. It reports whether one was cancelled;
// an alert already under way cannot be cancelled.
func (c *Controller) Cancel(ctx context.Context) (bool, error) {
	return request(ctx, c, func(reply chan bool) command {
		return cancelCountdown{reply: reply}
	})
}

// Disarm cancels any countdown and tears the link down.
func (c *Controller) Disarm(ctx context.Context) error {
	_, err := request(ctx, c, func(reply chan struct{}) command {
		return disarm{reply: reply}
	})

	return err
}

// Snapshot returns the current status.
func (c *Controller) Snapshot(ctx context.Context) (Status, error) {
	return request(ctx, c, func(reply chan Status) command {
		return snapshot{reply: reply}
	})
}

// Subscribe returns a channel receiving every status change and a function to unsubscribe.
// Slow subscribers miss updates rather than stall the controller.
func (c *Controller) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, subscriberBuffer)

	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subsMu.Unlock()

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			c.subsMu.Lock()
			delete(c.subs, id)
			close(ch)
			c.subsMu.Unlock()
		})
	}
}

// request sends a command built around a reply channel and waits for the answer.
func request[T any](ctx context.Context, c *Controller, build func(chan T) command) (T, error) {
	var zero T

	reply := make(chan T, 1)

	select {
	case c.control <- build(reply):
	case <-c.stopped:
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case v := <-reply:
		return v, nil
	case <-c.stopped:
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// post delivers an event unless the controller has stopped.
func (c *Controller) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.stopped:
	}
}

// drainControl handles every pending control request.
func (c *Controller) drainControl(ctx context.Context) {
	for {
		select {
		case cmd := <-c.control:
			c.handleCommand(ctx, cmd)
		default:
			return
		}
	}
}

// handleCommand applies a control request.
func (c *Controller) handleCommand(ctx context.Context, cmd command) {
	switch cmd := cmd.(type) {
	case selectDevice:
		c.onSelectDevice(ctx, cmd.device)
		cmd.reply <- struct{}{}
	case selectContact:
		c.contact = cmd.contact
		logger.InfoKV(ctx, "Emergency contact selected", "contact", c.contact)
		c.emit(EventContact, "Emergency contact set", nil)
		cmd.reply <- struct{}{}
	case cancelCountdown:
		cmd.reply <- c.onCancel(ctx)
	case disarm:
		c.onDisarm(ctx)
		cmd.reply <- struct{}{}
	case snapshot:
		cmd.reply <- c.status(EventSnapshot, "", nil)
	}
}

// handleEvent applies an event.
func (c *Controller) handleEvent(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case linkUp:
		c.onLinkUp(ctx, ev)
	case linkFailed:
		c.onLinkFailed(ctx, ev)
	case linkLost:
		c.onLinkLost(ctx, ev)
	case sensorEvent:
		c.onSensorEvent(ctx, ev)
	case tick:
		c.onTick(ev)
	case expired:
		c.onExpired(ctx, ev)
	case dispatched:
		c.onDispatched(ctx, ev)
	}
}

// onSelectDevice drops the current link and connects to device off the loop.
func (c *Controller) onSelectDevice(ctx context.Context, device *fall.RemoteDevice) {
	c.teardown(ctx)

	c.device = device
	c.linkStatus = fall.LinkConnecting
	c.attempt++
	c.latestAttempt.Store(c.attempt)

	name := device.DisplayName()
	logger.InfoKV(ctx, "Connecting to sensor", "device", name)
	c.emit(EventLink, "Connecting to "+name, nil)

	go c.connect(ctx, c.attempt, device)
}

// connect runs one connect attempt and reports the result.
func (c *Controller) connect(ctx context.Context, attempt uint64, device *fall.RemoteDevice) {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	if c.latestAttempt.Load() != attempt {
		return
	}

	session, err := c.link.Connect(ctx, device)
	if err != nil {
		c.post(linkFailed{attempt: attempt, err: err})

		return
	}

	c.post(linkUp{attempt: attempt, session: session})
}

// onLinkUp arms the controller and starts the read worker.
func (c *Controller) onLinkUp(ctx context.Context, ev linkUp) {
	if ev.attempt != c.attempt {
		c.link.Disconnect(ctx, ev.session)

		return
	}

	session := ev.session
	c.session = session
	c.linkStatus = fall.LinkConnected

	// An alert that outlived the previous link keeps the phase until it finishes.
	if c.escalation != nil {
		c.phase = fall.PhaseAlerting
	} else {
		c.phase = fall.PhaseArmed
	}

	name := session.Device.DisplayName()
	logger.InfoKV(ctx, "Connected to sensor", "device", name, "session_id", session.ID)
	c.emit(EventLink, "Connected to "+name, nil)

	go c.link.ReadLoop(ctx, session,
		func(chunk string) {
			if sensed, ok := framer.Frame(ctx, chunk); ok {
				c.post(sensorEvent{sessionID: session.ID, event: sensed})
			}
		},
		func(err error) {
			c.post(linkLost{sessionID: session.ID, err: err})
		},
	)
}

// onLinkFailed reports a failed connect; reconnecting is the user's decision.
func (c *Controller) onLinkFailed(ctx context.Context, ev linkFailed) {
	if ev.attempt != c.attempt {
		return
	}

	c.linkStatus = fall.LinkFailed
	c.phase = fall.PhaseIdle

	logger.ErrorKV(ctx, "Unable to connect to sensor", "device", c.device.DisplayName(), "error", ev.err)
	c.emit(EventLink, "Connection failed", ev.err)
}

// onLinkLost moves to Idle and stops any countdown without dispatching.
func (c *Controller) onLinkLost(ctx context.Context, ev linkLost) {
	if c.session == nil || c.session.ID != ev.sessionID {
		return
	}

	c.session = nil
	c.linkStatus = fall.LinkLost

	if c.phase == fall.PhaseCountingDown {
		logger.WarnKV(ctx, "Countdown cancelled by link loss", "escalation_id", c.escalation.ID)
		c.stopCountdown()
	}

	c.phase = fall.PhaseIdle

	logger.WarnKV(ctx, "Sensor connection lost", "error", ev.err)
	c.emit(EventLink, "Connection lost", ev.err)
}

// onSensorEvent starts a countdown when armed.
func (c *Controller) onSensorEvent(ctx context.Context, ev sensorEvent) {
	if c.session == nil || c.session.ID != ev.sessionID {
		return
	}

	if c.escalation != nil {
		logger.InfoKV(ctx, "Impact ignored, escalation already running",
			"phase", c.phase, "escalation_id", c.escalation.ID)

		return
	}

	if c.phase != fall.PhaseArmed {
		return
	}

	if !c.contact.IsSet() {
		logger.ErrorKV(ctx, "Impact dropped", "error", fall.ErrNoEmergencyContact)
		c.emit(EventConfigError, "Impact detected but no emergency contact is set", fall.ErrNoEmergencyContact)

		return
	}

	c.escalation = fall.NewEscalationSession(c.device, c.contact, time.Now(), c.countdown)
	c.phase = fall.PhaseCountingDown
	c.stopTimer = make(chan struct{})

	logger.WarnKV(ctx, "Impact detected, countdown started",
		"escalation_id", c.escalation.ID,
		"countdown", c.countdown,
		"raw", strings.TrimSpace(ev.event.Raw),
	)
	c.emit(EventPhase, "Impact detected", nil)

	go c.runCountdown(c.escalation.ID, c.stopTimer)
}

// runCountdown posts ticks until the countdown expires or stop is closed.
func (c *Controller) runCountdown(id uuid.UUID, stop <-chan struct{}) {
	deadline := time.Now().Add(c.countdown)
	timer := time.NewTimer(c.countdown)
	ticker := time.NewTicker(c.tick)

	defer timer.Stop()
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-c.stopped:
			return
		case <-timer.C:
			c.post(expired{escalationID: id})

			return
		case now := <-ticker.C:
			if remaining := deadline.Sub(now); remaining > 0 {
				c.post(tick{escalationID: id, remaining: remaining})
			}
		}
	}
}

// onTick forwards the remaining time of the current countdown.
func (c *Controller) onTick(ev tick) {
	if c.phase != fall.PhaseCountingDown || c.escalation.ID != ev.escalationID {
		return
	}

	c.escalation.Remaining = ev.remaining
	c.emit(EventTick, "", nil)
}

// onExpired starts the alert run.
func (c *Controller) onExpired(ctx context.Context, ev expired) {
	if c.phase != fall.PhaseCountingDown || c.escalation.ID != ev.escalationID {
		return
	}

	escalation := c.escalation

	c.stopCountdown()

	escalation.Remaining = 0
	escalation.Phase = fall.PhaseAlerting
	c.escalation = escalation
	c.phase = fall.PhaseAlerting

	logger.ErrorKV(ctx, "Countdown expired, alerting emergency contact",
		"escalation_id", escalation.ID, "contact", escalation.Contact)
	c.emit(EventPhase, "Alerting emergency contact", nil)

	// The alert runs to completion even if the link drops or the daemon stops.
	alertCtx := logger.WithKV(context.WithoutCancel(ctx), "escalation_id", escalation.ID)
	id, contact := escalation.ID, escalation.Contact

	c.alerts.Add(1)

	go func() {
		defer c.alerts.Done()

		location := c.resolver.Resolve(alertCtx)
		outcome := c.dispatcher.Dispatch(alertCtx, contact, location)

		c.post(dispatched{escalationID: id, location: location, outcome: outcome})
	}()
}

// onDispatched ends the escalation.
func (c *Controller) onDispatched(ctx context.Context, ev dispatched) {
	if c.escalation == nil || c.escalation.ID != ev.escalationID {
		return
	}

	escalation := c.escalation
	escalation.Location = ev.location
	c.escalation = nil

	if c.session != nil {
		c.phase = fall.PhaseArmed
	} else {
		c.phase = fall.PhaseIdle
	}

	logger.InfoKV(ctx, "Escalation finished", "escalation_id", escalation.ID, "outcome", ev.outcome.String())

	outcome := ev.outcome
	status := c.status(EventOutcome, "Alert sent", ev.outcome.Err)
	status.Escalation = escalation.Clone()
	status.Outcome = &outcome
	c.broadcast(status)
}

// onCancel stops a running countdown.
func (c *Controller) onCancel(ctx context.Context) bool {
	if c.phase != fall.PhaseCountingDown {
		logger.DebugKV(ctx, "Nothing to cancel", "phase", c.phase)

		return false
	}

	id := c.escalation.ID

	c.stopCountdown()
	c.phase = fall.PhaseArmed

	logger.InfoKV(ctx, "Escalation cancelled by user", "escalation_id", id)
	c.emit(EventPhase, "Escalation cancelled", nil)

	return true
}

// onDisarm tears down the link and forgets the device.
func (c *Controller) onDisarm(ctx context.Context) {
	c.teardown(ctx)

	c.device = nil
	c.linkStatus = fall.LinkDisconnected

	logger.Info(ctx, "Disarmed")
	c.emit(EventLink, "Disconnected", nil)
}

// teardown invalidates connects in flight, stops the countdown and closes the session.
func (c *Controller) teardown(ctx context.Context) {
	c.attempt++
	c.latestAttempt.Store(c.attempt)

	if c.phase == fall.PhaseCountingDown {
		c.stopCountdown()
	}

	if c.session != nil {
		c.link.Disconnect(ctx, c.session)
		c.session = nil
	}

	c.phase = fall.PhaseIdle
}

// stopCountdown stops the countdown goroutine and drops the escalation unless alerting.
func (c *Controller) stopCountdown() {
	if c.stopTimer != nil {
		close(c.stopTimer)
		c.stopTimer = nil
	}

	if c.phase == fall.PhaseCountingDown {
		c.escalation = nil
	}
}

// shutdown disarms and waits for alert runs.
func (c *Controller) shutdown(ctx context.Context) {
	c.teardown(ctx)

	// Alert runs post their result; the stopped channel lets them return.
	c.stopOnce.Do(func() { close(c.stopped) })
	c.alerts.Wait()

	logger.Info(ctx, "Escalation controller stopped")
}

// status builds a Status from the current state.
func (c *Controller) status(kind EventKind, message string, err error) Status {
	s := Status{
		Event:      kind,
		Time:       time.Now(),
		Phase:      c.phase,
		Link:       c.linkStatus,
		Device:     c.device.Clone(),
		Contact:    c.contact,
		Escalation: c.escalation.Clone(),
		Message:    message,
		Err:        err,
	}

	if c.escalation != nil && c.phase == fall.PhaseCountingDown {
		s.Remaining = c.escalation.Remaining
	}

	return s
}

// emit broadcasts a Status built from the current state.
func (c *Controller) emit(kind EventKind, message string, err error) {
	c.broadcast(c.status(kind, message, err))
}

// broadcast delivers s to every subscriber without blocking.
func (c *Controller) broadcast(s Status) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	for _, ch := range c.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

// parseContact validates a phone number typed by the user. An empty number
// clears the contact; anything else needs at least one digit.
func parseContact(number string) (fall.EmergencyContact, error) {
	number = strings.TrimSpace(number)

	var digits int

	for i, r := range number {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == ' ', r == '-', r == '(', r == ')':
		case r == '+' && i == 0:
		default:
			return "", fmt.Errorf("%w: %q", ErrInvalidContact, number)
		}
	}

	if number != "" && digits == 0 {
		return "", fmt.Errorf("%w: %q has no digits", ErrInvalidContact, number)
	}

	return fall.EmergencyContact(number), nil
}
