package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/sos-relay/internal/domain/alert"
	"github.com/oshokin/sos-relay/internal/logger"
)

const (
	// debounceInterval is the minimum time between the starts of two
	// triggers, independent of how the previous one completed.
	debounceInterval = 5 * time.Second

	// ackTimeout is how long a submission may stay in flight without an
	// acknowledgment before it is forcibly reset.
	ackTimeout = 15 * time.Second

	// settleDelay is how long an acknowledged submission settles before
	// the submitter returns to idle.
	settleDelay = 3 * time.Second

	// sentTrimThreshold and sentRetainCount bound the locally remembered
	// sent-id set: once it exceeds the threshold only the most recent ids
	// survive. This bounds memory, nothing more; the relay's ledger is
	// the true source of deduplication truth.
	sentTrimThreshold = 10
	sentRetainCount   = 5
)

// SubmitterState is the phase of the alert submission state machine.
type SubmitterState int

const (
	// StateIdle means no submission is in progress.
	StateIdle SubmitterState = iota
	// StateInFlight means an alert has been sent and awaits acknowledgment.
	StateInFlight
	// StateSettling means the alert was acknowledged and the submitter is
	// cooling down before accepting the next trigger.
	StateSettling
)

// String renders the state for logs.
func (s SubmitterState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInFlight:
		return "in_flight"
	case StateSettling:
		return "settling"
	default:
		return "unknown"
	}
}

var (
	// ErrSubmissionInFlight rejects a trigger while another submission is
	// not yet back to idle. Single-flight is a hard invariant.
	ErrSubmissionInFlight = errors.New("an alert submission is already in progress")
	// ErrDebounced rejects a trigger that starts too soon after the
	// previous one, successful or not.
	ErrDebounced = errors.New("alert trigger debounced")
	// ErrNotConnected rejects a trigger while the relay is unreachable.
	ErrNotConnected = errors.New("relay is not connected")
	// ErrSubmissionTimeout surfaces an in-flight submission that was never
	// acknowledged.
	ErrSubmissionTimeout = errors.New("alert submission timed out")
	// ErrSubmitterClosed rejects triggers after teardown.
	ErrSubmitterClosed = errors.New("alert submitter is closed")
)

// Outbound is what the submitter needs from the transport.
type Outbound interface {
	// Connected reports whether the relay channel is currently usable.
	Connected() bool
	// SendAlert sends the SOS submission. Fire-and-forget: a transport
	// error does not change submitter state, the ack timeout handles it.
	SendAlert(ctx context.Context, sub *alert.Submission) error
}

// FailureHandler surfaces user-visible submission failures.
type FailureHandler func(err error)

// Submitter is the single-flight, debounced, timeout-bounded submission
// state machine for emergency alerts: Idle -> InFlight -> Settling -> Idle,
// with a forced InFlight -> Idle escape on timeout.
type Submitter struct {
	// mu protects all mutable state and the timers.
	mu sync.Mutex
	// out is the transport the alert goes through.
	out Outbound
	// deviceID feeds the alert id composition.
	deviceID string
	// reporter names this device in submitted alerts.
	reporter string
	// onFailure surfaces timeout failures to the user, may be nil.
	onFailure FailureHandler

	// state is the current machine phase.
	state SubmitterState
	// lastTriggerAt is when the previous trigger started; a timed-out
	// attempt still counts against the debounce.
	lastTriggerAt time.Time
	// inFlightID is the id of the outstanding submission.
	inFlightID string
	// sentIDs remembers recently sent ids, coarsely trimmed.
	sentIDs []string
	// timeoutTimer fires when an in-flight submission goes unacknowledged.
	timeoutTimer *time.Timer
	// settleTimer returns the machine to idle after an acknowledgment.
	settleTimer *time.Timer
	// closed blocks further triggers after teardown.
	closed bool
}

// NewSubmitter creates an idle submitter. The failure handler may be nil.
func NewSubmitter(deviceID, reporter string, out Outbound, onFailure FailureHandler) *Submitter {
	return &Submitter{
		out:       out,
		deviceID:  deviceID,
		reporter:  reporter,
		onFailure: onFailure,
	}
}

// State returns the current machine phase.
func (s *Submitter) State() SubmitterState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Trigger attempts to submit an emergency alert. It is rejected while
// another submission is in progress, within the debounce window of the
// previous trigger start, or while disconnected. On success the generated
// alert id is returned and the submission is in flight.
func (s *Submitter) Trigger(ctx context.Context, lat, lon float64, message string) (string, error) {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return "", ErrSubmitterClosed
	}

	if s.state != StateIdle {
		s.mu.Unlock()
		return "", ErrSubmissionInFlight
	}

	now := time.Now()
	if !s.lastTriggerAt.IsZero() && now.Sub(s.lastTriggerAt) <= debounceInterval {
		s.mu.Unlock()
		return "", ErrDebounced
	}

	if !s.out.Connected() {
		s.mu.Unlock()
		return "", ErrNotConnected
	}

	s.lastTriggerAt = now

	// The id is recorded as sent before any transport confirmation so a
	// concurrent duplicate trigger is blocked immediately.
	id := s.newAlertID(now)
	s.rememberIDLocked(id)
	s.inFlightID = id
	s.state = StateInFlight
	s.timeoutTimer = time.AfterFunc(ackTimeout, func() { s.onTimeout(id) })

	sub := &alert.Submission{
		ID:       id,
		Reporter: s.reporter,
		Lat:      lat,
		Lon:      lon,
		Message:  message,
	}

	s.mu.Unlock()

	logger.InfoKV(ctx, "Submitting emergency alert", "alert_id", id)

	if err := s.out.SendAlert(ctx, sub); err != nil {
		// Keep the machine in flight: the ack timeout decides the outcome.
		logger.ErrorKV(ctx, "Alert send failed, awaiting timeout", "alert_id", id, "error", err)
	}

	return id, nil
}

// Acknowledge settles the in-flight submission. Acknowledgments for any
// other id, or outside the in-flight phase, are ignored.
func (s *Submitter) Acknowledge(alertID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInFlight || s.inFlightID != alertID {
		return
	}

	if s.timeoutTimer != nil {
		s.timeoutTimer.Stop()
		s.timeoutTimer = nil
	}

	s.state = StateSettling
	s.settleTimer = time.AfterFunc(settleDelay, func() { s.onSettled(alertID) })
}

// Shutdown cancels any outstanding timers and blocks further triggers so a
// stale timer can never fire against destroyed state.
func (s *Submitter) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.state = StateIdle
	s.inFlightID = ""

	if s.timeoutTimer != nil {
		s.timeoutTimer.Stop()
		s.timeoutTimer = nil
	}

	if s.settleTimer != nil {
		s.settleTimer.Stop()
		s.settleTimer = nil
	}
}

// onTimeout forcibly resets an unacknowledged submission and surfaces the
// failure. The debounce timestamp is deliberately retained: a timed-out
// attempt still counts against the debounce window.
func (s *Submitter) onTimeout(alertID string) {
	s.mu.Lock()

	if s.state != StateInFlight || s.inFlightID != alertID {
		s.mu.Unlock()
		return
	}

	s.state = StateIdle
	s.inFlightID = ""
	s.timeoutTimer = nil
	onFailure := s.onFailure

	s.mu.Unlock()

	if onFailure != nil {
		onFailure(ErrSubmissionTimeout)
	}
}

// onSettled completes the settle phase and returns the machine to idle.
func (s *Submitter) onSettled(alertID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateSettling || s.inFlightID != alertID {
		return
	}

	s.state = StateIdle
	s.inFlightID = ""
	s.settleTimer = nil
}

// newAlertID composes an id from the device identity, a monotonically
// increasing clock reading, and a random nonce, making collisions with
// other devices and with prior triggers practically impossible.
func (s *Submitter) newAlertID(now time.Time) string {
	nonce := uuid.NewString()[:8]

	return fmt.Sprintf("%s-%x-%s", s.deviceID, now.UnixNano(), nonce)
}

// rememberIDLocked records a sent id, trimming the set to the most recent
// few once it grows past the threshold. Callers must hold mu.
func (s *Submitter) rememberIDLocked(id string) {
	s.sentIDs = append(s.sentIDs, id)

	if len(s.sentIDs) > sentTrimThreshold {
		keep := s.sentIDs[len(s.sentIDs)-sentRetainCount:]
		s.sentIDs = append([]string(nil), keep...)
	}
}
