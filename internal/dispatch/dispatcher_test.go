package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/fall-guard/internal/domain/fall"
)

const testContact fall.EmergencyContact = "+15551234567"

var errTestCarrier = fmt.Errorf("%w: test carrier rejected", fall.ErrTransmission)

// failure selects how a fake phone method behaves.
type failure int

const (
	succeed failure = iota
	fail
	deny
	explode
)

// sentMessage is one message observed by the fake phone.
type sentMessage struct {
	rich bool
	to   string
	text string
}

// fakePhone records messages and calls.
type fakePhone struct {
	mu        sync.Mutex
	multipart failure
	text      failure
	// textScript overrides text for the first SendText calls, in order.
	textScript []failure
	call       failure
	sent       []sentMessage
	attempts   int
	calls      []string
}

// act turns a failure mode into a result.
func act(mode failure) error {
	switch mode {
	case fail:
		return errTestCarrier
	case deny:
		return fmt.Errorf("test: %w", fall.ErrPermissionDenied)
	case explode:
		panic("modem driver bug")
	default:
		return nil
	}
}

func (p *fakePhone) SendMultipart(_ context.Context, number string, parts []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.attempts++

	if err := act(p.multipart); err != nil {
		return err
	}

	p.sent = append(p.sent, sentMessage{rich: true, to: number, text: strings.Join(parts, "")})

	return nil
}

func (p *fakePhone) SendText(_ context.Context, number string, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.attempts++

	mode := p.text
	if len(p.textScript) > 0 {
		mode, p.textScript = p.textScript[0], p.textScript[1:]
	}

	if err := act(mode); err != nil {
		return err
	}

	p.sent = append(p.sent, sentMessage{to: number, text: text})

	return nil
}

func (p *fakePhone) PlaceCall(_ context.Context, number string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, number)

	return act(p.call)
}

// TestDispatch_RichWithLocation covers the happy path.
func TestDispatch_RichWithLocation(t *testing.T) {
	t.Parallel()

	phone := &fakePhone{}
	outcome := New(phone, phone).Dispatch(context.Background(), testContact, &fall.Location{Latitude: 12.5, Longitude: -3.25})

	require.NoError(t, outcome.Err)
	require.Equal(t, fall.MessageRich, outcome.Notice)
	require.Equal(t, fall.MessageRich, outcome.LocationMessage)
	require.True(t, outcome.LocationAttached)
	require.False(t, outcome.LastResort)
	require.Equal(t, fall.CallPlaced, outcome.Call)

	require.Equal(t, []sentMessage{
		{rich: true, to: testContact.String(), text: richNotice},
		{rich: true, to: testContact.String(), text: "🚨 My exact location : https://maps.google.com/?q=12.5,-3.25"},
	}, phone.sent)
	require.Equal(t, []string{testContact.String()}, phone.calls)
}

// TestDispatch_NoLocationStillSendsTwoMessages checks the unavailable notice is separate.
func TestDispatch_NoLocationStillSendsTwoMessages(t *testing.T) {
	t.Parallel()

	phone := &fakePhone{}
	outcome := New(phone, phone).Dispatch(context.Background(), testContact, nil)

	require.False(t, outcome.LocationAttached)
	require.Len(t, phone.sent, 2)
	require.Equal(t, richNotice, phone.sent[0].text)
	require.Equal(t, richUnavailable, phone.sent[1].text)
	require.Len(t, phone.calls, 1)
}

// TestDispatch_RichFailsFallsBackToPlain checks content equivalent plain messages and the call.
func TestDispatch_RichFailsFallsBackToPlain(t *testing.T) {
	t.Parallel()

	phone := &fakePhone{multipart: fail}
	outcome := New(phone, phone).Dispatch(context.Background(), testContact, &fall.Location{Latitude: 1, Longitude: 2})

	require.NoError(t, outcome.Err)
	require.Equal(t, fall.MessagePlain, outcome.Notice)
	require.Equal(t, fall.MessagePlain, outcome.LocationMessage)
	require.Equal(t, fall.CallPlaced, outcome.Call)

	require.Len(t, phone.sent, 2)

	for _, msg := range phone.sent {
		require.False(t, msg.rich)
		require.Contains(t, msg.text, "SOS ALERT! I need help immediately!")
		require.Contains(t, msg.text, "fall")
	}

	require.Contains(t, phone.sent[1].text, "https://maps.google.com/?q=1,2")
	require.Len(t, phone.calls, 1)
}

// TestDispatch_PermissionDeniedSkipsSteps checks a missing grant is not retried as plain text.
func TestDispatch_PermissionDeniedSkipsSteps(t *testing.T) {
	t.Parallel()

	phone := &fakePhone{multipart: deny}
	outcome := New(phone, phone).Dispatch(context.Background(), testContact, nil)

	require.Equal(t, fall.MessagePermissionDenied, outcome.Notice)
	require.Equal(t, fall.MessagePermissionDenied, outcome.LocationMessage)
	require.Equal(t, 2, phone.attempts)
	require.Empty(t, phone.sent)
	require.Equal(t, fall.CallPlaced, outcome.Call)
	require.ErrorIs(t, outcome.Err, fall.ErrPermissionDenied)

	var dispatchErr *fall.DispatchError
	require.ErrorAs(t, outcome.Err, &dispatchErr)
	require.Equal(t, StepNotice, dispatchErr.Step)
}

// TestDispatch_AllMessagesFail checks exhausted fallbacks are reported and the call still happens.
func TestDispatch_AllMessagesFail(t *testing.T) {
	t.Parallel()

	phone := &fakePhone{multipart: fail, text: fail}
	outcome := New(phone, phone).Dispatch(context.Background(), testContact, nil)

	require.Equal(t, fall.MessageNotSent, outcome.Notice)
	require.Equal(t, fall.MessageNotSent, outcome.LocationMessage)
	require.ErrorIs(t, outcome.Err, fall.ErrTransmission)
	require.Equal(t, fall.CallPlaced, outcome.Call)
	require.Len(t, phone.calls, 1)
}

// TestDispatch_PanicSendsLastResort checks a minimal message goes out when both steps blew up.
func TestDispatch_PanicSendsLastResort(t *testing.T) {
	t.Parallel()

	phone := &fakePhone{multipart: explode, textScript: []failure{explode, explode}}
	outcome := New(phone, phone).Dispatch(context.Background(), testContact, nil)

	require.Equal(t, fall.MessageNotSent, outcome.Notice)
	require.Equal(t, fall.MessageNotSent, outcome.LocationMessage)
	require.True(t, outcome.LastResort)
	require.True(t, outcome.LastResortSent)
	require.ErrorIs(t, outcome.Err, errPanic)
	require.Equal(t, []sentMessage{{to: testContact.String(), text: lastResort}}, phone.sent)
	require.Equal(t, fall.CallPlaced, outcome.Call)
	require.Len(t, phone.calls, 1)
}

// TestDispatch_RichPanicFallsBackPerStep checks a panicking rich send is a failed
// rich send: both steps fall back to plain and the location still goes out.
func TestDispatch_RichPanicFallsBackPerStep(t *testing.T) {
	t.Parallel()

	phone := &fakePhone{multipart: explode}
	outcome := New(phone, phone).Dispatch(context.Background(), testContact, &fall.Location{Latitude: 48.85, Longitude: 2.35})

	require.Equal(t, fall.MessagePlain, outcome.Notice)
	require.Equal(t, fall.MessagePlain, outcome.LocationMessage)
	require.True(t, outcome.LocationAttached)
	require.False(t, outcome.LastResort)
	require.NoError(t, outcome.Err)

	require.Len(t, phone.sent, 2)
	require.Equal(t, plainNotice, phone.sent[0].text)
	require.Contains(t, phone.sent[1].text, "https://maps.google.com/?q=48.85,2.35")
	require.Len(t, phone.calls, 1)
}

// TestDispatch_PlainPanicDoesNotSkipLocation checks a panic in the notice step
// leaves the location step untouched.
func TestDispatch_PlainPanicDoesNotSkipLocation(t *testing.T) {
	t.Parallel()

	phone := &fakePhone{multipart: fail, textScript: []failure{explode}}
	outcome := New(phone, phone).Dispatch(context.Background(), testContact, &fall.Location{Latitude: 1, Longitude: 2})

	require.Equal(t, fall.MessageNotSent, outcome.Notice)
	require.Equal(t, fall.MessagePlain, outcome.LocationMessage)
	require.True(t, outcome.LocationAttached)
	require.False(t, outcome.LastResort)
	require.ErrorIs(t, outcome.Err, errPanic)

	var dispatchErr *fall.DispatchError
	require.ErrorAs(t, outcome.Err, &dispatchErr)
	require.Equal(t, StepNotice, dispatchErr.Step)
	require.Len(t, phone.calls, 1)
}

// TestDispatch_CallFailure checks call errors are reported, not raised.
func TestDispatch_CallFailure(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		mode failure
		want fall.CallResult
	}{
		{mode: fail, want: fall.CallNotPlaced},
		{mode: deny, want: fall.CallPermissionDenied},
		{mode: explode, want: fall.CallNotPlaced},
	} {
		phone := &fakePhone{call: tt.mode}
		outcome := New(phone, phone).Dispatch(context.Background(), testContact, nil)

		require.Equal(t, tt.want, outcome.Call)

		var dispatchErr *fall.DispatchError
		require.ErrorAs(t, outcome.Err, &dispatchErr)
		require.Equal(t, StepCall, dispatchErr.Step)
		require.Len(t, phone.calls, 1)
	}
}

// TestDispatch_CallExactlyOnce checks the call step for every combination of message failures.
func TestDispatch_CallExactlyOnce(t *testing.T) {
	t.Parallel()

	properties := gopter.NewProperties(gopter.DefaultTestParameters())
	modes := gen.IntRange(int(succeed), int(explode))

	properties.Property("call is placed exactly once, last", prop.ForAll(
		func(multipart, text, call int, located bool) bool {
			phone := &fakePhone{multipart: failure(multipart), text: failure(text), call: failure(call)}

			var location *fall.Location
			if located {
				location = &fall.Location{Latitude: 48.85, Longitude: 2.35}
			}

			outcome := New(phone, phone).Dispatch(context.Background(), testContact, location)

			m, tx := failure(multipart), failure(text)
			delivered := m == succeed || (m != deny && tx == succeed)
			panicked := m == explode || (m == fail && tx == explode)

			return len(phone.calls) == 1 &&
				phone.calls[0] == testContact.String() &&
				outcome.LocationAttached == located &&
				outcome.Notice.Delivered() == delivered &&
				outcome.LocationMessage.Delivered() == delivered &&
				outcome.LastResort == (panicked && !delivered)
		},
		modes, modes, modes, gen.Bool(),
	))

	properties.TestingRun(t)
}

// TestDryRun checks the dry-run phone accepts everything.
func TestDryRun(t *testing.T) {
	t.Parallel()

	outcome := New(DryRun{}, DryRun{}).Dispatch(context.Background(), testContact, nil)
	require.NoError(t, outcome.Err)
	require.Equal(t, fall.MessageRich, outcome.Notice)
	require.Equal(t, fall.CallPlaced, outcome.Call)
}
