package meetings

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eyelink/client/internal/logging"
	"github.com/eyelink/client/internal/models"
)

// GlobalAPI is the part of the meetings service the global accept flow uses.
type GlobalAPI interface {
	PendingGlobal(ctx context.Context) ([]models.PendingMeeting, error)
	AcceptFirst(ctx context.Context) (models.MeetingToken, error)
	End(ctx context.Context, meetingID string) error
}

// GlobalOption configures a GlobalAcceptor.
type GlobalOption func(*GlobalAcceptor)

// WithPollInterval overrides the five second poll interval.
func WithPollInterval(d time.Duration) GlobalOption {
	return func(a *GlobalAcceptor) { a.interval = d }
}

// WithConnector sets the hand-off to the video layer.
func WithConnector(c Connector) GlobalOption {
	return func(a *GlobalAcceptor) { a.connect = c }
}

// WithObserver registers a callback receiving the state after every poll and transition.
// It runs on the goroutine that caused the change and must not block.
func WithObserver(fn func(State)) GlobalOption {
	return func(a *GlobalAcceptor) { a.observe = fn }
}

// GlobalAcceptor drives the helper side of broadcast meeting requests: it polls for unclaimed
// meetings, enables accepting while any exist, and latches after a successful claim.
type GlobalAcceptor struct {
	api      GlobalAPI
	interval time.Duration
	connect  Connector
	observe  func(State)
	poller   *Poller

	mu      sync.Mutex
	state   State
	pending []models.PendingMeeting
	token   models.MeetingToken
	latched bool
	hidden  bool
	pollGen uint64
}

// NewGlobalAcceptor builds an idle acceptor. Polling starts with Show.
func NewGlobalAcceptor(api GlobalAPI, opts ...GlobalOption) *GlobalAcceptor {
	a := &GlobalAcceptor{api: api, interval: 5 * time.Second}
	for _, opt := range opts {
		opt(a)
	}
	a.poller = NewPoller(a.interval, a.poll)
	return a
}

// State returns the current state.
func (a *GlobalAcceptor) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// CanAccept reports whether the accept control is enabled.
func (a *GlobalAcceptor) CanAccept() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state == StatePendingAvailable && !a.latched
}

// Pending returns the meetings seen by the last poll.
func (a *GlobalAcceptor) Pending() []models.PendingMeeting {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.PendingMeeting(nil), a.pending...)
}

// Token returns the claimed meeting's credentials once connected.
func (a *GlobalAcceptor) Token() (models.MeetingToken, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token, a.latched
}

// Show starts or resumes polling while the flow is visible.
func (a *GlobalAcceptor) Show(ctx context.Context) {
	a.mu.Lock()
	a.hidden = false
	polling := a.state == StateIdle || a.state == StatePendingAvailable
	a.mu.Unlock()
	if !polling {
		return
	}

	if a.poller.Running() {
		return
	}
	a.poller.Start(ctx)
	a.poller.Resume()
}

// Hide suspends polling. Poll responses already in flight are discarded.
func (a *GlobalAcceptor) Hide() {
	a.mu.Lock()
	a.hidden = true
	a.pollGen++
	a.mu.Unlock()
	a.poller.Suspend()
}

// Accept claims the oldest pending global meeting. At most one claim succeeds per acceptor; later
// calls return ErrAlreadyHandled. A failed claim re-enables the control and resumes polling.
func (a *GlobalAcceptor) Accept(ctx context.Context) (models.MeetingToken, error) {
	a.mu.Lock()
	switch {
	case a.latched:
		a.mu.Unlock()
		return models.MeetingToken{}, ErrAlreadyHandled
	case a.state == StateClosed:
		a.mu.Unlock()
		return models.MeetingToken{}, ErrClosed
	case a.state != StatePendingAvailable:
		a.mu.Unlock()
		return models.MeetingToken{}, ErrNothingPending
	}
	a.state = StateAccepting
	a.pollGen++
	a.mu.Unlock()

	a.poller.Suspend()
	a.notify(StateAccepting)

	ctx, span := logging.StartSpan(ctx, "meetings.global_accept")
	token, err := a.api.AcceptFirst(ctx)

	a.mu.Lock()
	if a.state == StateClosed {
		a.mu.Unlock()
		span.End(ErrClosed)
		return models.MeetingToken{}, ErrClosed
	}
	if err != nil {
		a.state = StatePendingAvailable
		visible := !a.hidden
		a.mu.Unlock()
		span.End(err)
		a.notify(StatePendingAvailable)
		if visible {
			a.poller.Resume()
		}
		return models.MeetingToken{}, err
	}
	a.latched = true
	a.token = token
	a.state = StateConnected
	a.pending = nil
	a.mu.Unlock()

	a.poller.Stop()
	span.End(nil)
	a.notify(StateConnected)

	if a.connect != nil {
		if err := a.connect(ctx, token); err != nil {
			return token, fmt.Errorf("join room: %w", err)
		}
	}
	return token, nil
}

// EndCall ends the claimed meeting and closes the flow. The flow closes even when the end
// request fails; the error is returned for display.
func (a *GlobalAcceptor) EndCall(ctx context.Context) error {
	a.mu.Lock()
	if a.state != StateConnected {
		a.mu.Unlock()
		return ErrNotConnected
	}
	meetingID := a.token.MeetingID
	a.mu.Unlock()

	err := a.api.End(ctx, meetingID)
	a.Close()
	return err
}

// Close stops polling for good. Responses arriving afterwards are discarded.
func (a *GlobalAcceptor) Close() {
	a.mu.Lock()
	if a.state == StateClosed {
		a.mu.Unlock()
		return
	}
	a.state = StateClosed
	a.pollGen++
	a.pending = nil
	a.mu.Unlock()

	a.poller.Stop()
	a.notify(StateClosed)
}

func (a *GlobalAcceptor) poll(ctx context.Context) {
	a.mu.Lock()
	gen := a.pollGen
	if a.state != StateIdle && a.state != StatePendingAvailable {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	meetings, err := a.api.PendingGlobal(ctx)
	if err != nil {
		logging.FromContext(ctx).Debug("global meeting poll failed", slog.String("error", err.Error()))
		meetings = nil
	}

	a.mu.Lock()
	if gen != a.pollGen || (a.state != StateIdle && a.state != StatePendingAvailable) {
		a.mu.Unlock()
		return
	}
	next := StateIdle
	if len(meetings) > 0 {
		next = StatePendingAvailable
	}
	a.state = next
	a.pending = meetings
	a.mu.Unlock()

	a.notify(next)
}

func (a *GlobalAcceptor) notify(s State) {
	if a.observe != nil {
		a.observe(s)
	}
}
