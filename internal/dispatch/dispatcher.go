package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/oshokin/fall-guard/internal/domain/fall"
	"github.com/oshokin/fall-guard/internal/logger"
	"github.com/oshokin/fall-guard/internal/sms"
)

// Step names used in DispatchError and logs.
const (
	StepNotice     = "notice"
	StepLocation   = "location"
	StepLastResort = "last_resort"
	StepCall       = "call"
)

var errPanic = errors.New("message path panicked")

// Messenger sends short text messages.
type Messenger interface {
	// SendMultipart sends the ordered parts as one message.
	SendMultipart(ctx context.Context, number string, parts []string) error
	// SendText sends a single plain-text message.
	SendText(ctx context.Context, number string, text string) error
}

// Caller places voice calls.
type Caller interface {
	// PlaceCall initiates a call to number.
	PlaceCall(ctx context.Context, number string) error
}

// Dispatcher runs the alert sequence.
type Dispatcher struct {
	messenger Messenger
	caller    Caller
}

// New creates a dispatcher.
func New(messenger Messenger, caller Caller) *Dispatcher {
	return &Dispatcher{
		messenger: messenger,
		caller:    caller,
	}
}

// Dispatch sends the notice, the location message and places the call.
// It never fails; the returned outcome records what succeeded.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	contact fall.EmergencyContact,
	location *fall.Location,
) fall.DeliveryOutcome {
	ctx = logger.WithName(ctx, "dispatch")
	number := contact.String()
	started := time.Now()

	var outcome fall.DeliveryOutcome

	rich, plain, attached := locationMessages(location)
	outcome.LocationAttached = attached

	var stepErr error

	outcome.Notice, stepErr = d.deliver(ctx, StepNotice, number, richNotice, plainNotice)
	outcome.Err = multierr.Append(outcome.Err, stepErr)
	panicked := errors.Is(stepErr, errPanic)

	outcome.LocationMessage, stepErr = d.deliver(ctx, StepLocation, number, rich, plain)
	outcome.Err = multierr.Append(outcome.Err, stepErr)
	panicked = panicked || errors.Is(stepErr, errPanic)

	if panicked && !outcome.Notice.Delivered() && !outcome.LocationMessage.Delivered() {
		logger.ErrorKV(ctx, "Alert messages failed unexpectedly, sending last resort message")

		outcome.LastResort = true

		if lastErr := d.sendLastResort(ctx, number); lastErr != nil {
			outcome.Err = multierr.Append(outcome.Err, &fall.DispatchError{Step: StepLastResort, Err: lastErr})

			logger.ErrorKV(ctx, "Last resort message failed", "error", lastErr)
		} else {
			outcome.LastResortSent = true
		}
	}

	result, err := d.placeCall(ctx, number)

	outcome.Call = result
	if err != nil {
		outcome.Err = multierr.Append(outcome.Err, &fall.DispatchError{Step: StepCall, Err: err})
	}

	logger.InfoKV(ctx, "Alert dispatched",
		"outcome", outcome.String(),
		"elapsed", time.Since(started).Round(time.Millisecond),
	)

	return outcome
}

// deliver sends rich and falls back to plain. A missing grant skips the step.
// A panicking send counts as a failed send.
func (d *Dispatcher) deliver(ctx context.Context, step, number, rich, plain string) (fall.MessageResult, error) {
	ctx = logger.WithKV(ctx, "step", step)

	_, parts := sms.Split(rich)

	richErr := guard(func() error { return d.messenger.SendMultipart(ctx, number, parts) })
	if richErr == nil {
		logger.InfoKV(ctx, "Message sent", "parts", len(parts))

		return fall.MessageRich, nil
	}

	if fall.IsPermission(richErr) {
		logger.WarnKV(ctx, "Messaging is not permitted, skipping step", "error", richErr)

		return fall.MessagePermissionDenied, &fall.DispatchError{Step: step, Err: richErr}
	}

	logger.WarnKV(ctx, "Rich message failed, falling back to plain text", "error", richErr)

	plainErr := guard(func() error { return d.messenger.SendText(ctx, number, plain) })
	if plainErr == nil {
		logger.InfoKV(ctx, "Plain message sent")

		return fall.MessagePlain, nil
	}

	err := &fall.DispatchError{Step: step, Err: multierr.Combine(richErr, plainErr)}

	if fall.IsPermission(plainErr) {
		logger.WarnKV(ctx, "Messaging is not permitted, skipping step", "error", plainErr)

		return fall.MessagePermissionDenied, err
	}

	logger.ErrorKV(ctx, "Message could not be delivered", "error", err)

	return fall.MessageNotSent, err
}

// guard runs send and turns a panic into an errPanic error.
func guard(send func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errPanic, r)
		}
	}()

	return send()
}

// sendLastResort attempts the minimal plain message.
func (d *Dispatcher) sendLastResort(ctx context.Context, number string) error {
	return guard(func() error { return d.messenger.SendText(ctx, number, lastResort) })
}

// placeCall triggers the call exactly once, absorbing panics.
func (d *Dispatcher) placeCall(ctx context.Context, number string) (result fall.CallResult, err error) {
	ctx = logger.WithKV(ctx, "step", StepCall)

	defer func() {
		if r := recover(); r != nil {
			result = fall.CallNotPlaced
			err = fmt.Errorf("%w: %v", errPanic, r)

			logger.ErrorKV(ctx, "Call failed unexpectedly", "error", err)
		}
	}()

	err = d.caller.PlaceCall(ctx, number)

	switch {
	case err == nil:
		logger.InfoKV(ctx, "Emergency call placed")

		return fall.CallPlaced, nil
	case fall.IsPermission(err):
		logger.WarnKV(ctx, "Calling is not permitted", "error", err)

		return fall.CallPermissionDenied, err
	default:
		logger.ErrorKV(ctx, "Emergency call failed", "error", err)

		return fall.CallNotPlaced, err
	}
}
