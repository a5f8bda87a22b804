// Package voice provides hands-free navigation for seekers through continuous speech recognition.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eyelink/client/internal/logging"
	"github.com/eyelink/client/internal/models"
)

var (
	// ErrNotAuthorized means microphone or speech access was refused.
	ErrNotAuthorized = errors.New("speech recognition not authorized")
	// ErrRoleNotAllowed means voice control was requested for a non-seeker screen.
	ErrRoleNotAllowed = errors.New("voice control is only available to seekers")
	// ErrRecognizerClosed is returned by Recognizer.Start when no further streams can be opened.
	// The dispatcher stops listening when it sees it.
	ErrRecognizerClosed = errors.New("recognizer closed")
)

// Transcript is one recognition result. Partials refine the current utterance; a final result
// ends it.
type Transcript struct {
	Text  string
	Final bool
}

// Stream is one recognition session. Results is closed on any terminal event, after which Err
// reports why (nil for a normal final result). Close stops audio capture, cancels the
// recognition task and releases the request, in that order.
type Stream interface {
	Results() <-chan Transcript
	Err() error
	Close() error
}

// Recognizer opens recognition streams.
type Recognizer interface {
	Authorize(ctx context.Context) (bool, error)
	Start(ctx context.Context) (Stream, error)
}

// Capabilities describes what the active screen can do. Nil hooks are skipped silently.
type Capabilities struct {
	Role        models.Role
	Navigate    func(Tab)
	CallHelper  func()
	TakePicture func()
	Repeat      func()
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRestartDelay overrides the 300ms pause between recognition streams.
func WithRestartDelay(d time.Duration) Option {
	return func(disp *Dispatcher) { disp.restartDelay = d }
}

// WithCommands replaces the command table.
func WithCommands(commands []Command) Option {
	return func(disp *Dispatcher) { disp.commands = commands }
}

// Dispatcher runs an endless listen loop and turns matched phrases into capability calls.
type Dispatcher struct {
	recognizer   Recognizer
	commands     []Command
	restartDelay time.Duration

	// activateMu is held across stop-and-install so concurrent Activate calls never leave two
	// loops running.
	activateMu sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDispatcher builds an inactive dispatcher.
func NewDispatcher(recognizer Recognizer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		recognizer:   recognizer,
		commands:     DefaultCommands,
		restartDelay: 300 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Activate authorizes speech access and starts listening on behalf of caps. A previous listen
// loop is torn down first, so at most one stream is ever open.
func (d *Dispatcher) Activate(ctx context.Context, caps Capabilities) error {
	if caps.Role != models.RoleSeeker {
		return ErrRoleNotAllowed
	}

	d.activateMu.Lock()
	defer d.activateMu.Unlock()

	granted, err := d.recognizer.Authorize(ctx)
	if err != nil {
		return fmt.Errorf("authorize speech: %w", err)
	}
	if !granted {
		return ErrNotAuthorized
	}

	d.Stop()

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	d.mu.Lock()
	d.cancel = cancel
	d.done = done
	d.mu.Unlock()

	go d.listen(loopCtx, caps, done)
	return nil
}

// Stop ends the listen loop and waits for the open stream to be torn down.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Active reports whether a listen loop is running.
func (d *Dispatcher) Active() bool {
	d.mu.Lock()
	done := d.done
	d.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Done is closed when the current listen loop exits. It returns nil when inactive.
func (d *Dispatcher) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

func (d *Dispatcher) listen(ctx context.Context, caps Capabilities, done chan struct{}) {
	defer close(done)
	logger := logging.FromContext(ctx)

	for {
		stream, err := d.recognizer.Start(ctx)
		switch {
		case errors.Is(err, ErrRecognizerClosed):
			logger.Debug("speech recognizer closed")
			return
		case err != nil:
			logger.Debug("speech stream failed to start", slog.String("error", err.Error()))
		default:
			d.consume(ctx, stream, caps)
			if err := stream.Err(); err != nil && ctx.Err() == nil {
				logger.Debug("speech stream ended with error", slog.String("error", err.Error()))
			}
			if err := stream.Close(); err != nil {
				logger.Debug("speech stream teardown failed", slog.String("error", err.Error()))
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(d.restartDelay):
		}
	}
}

// consume reads one stream until its terminal event. Each command fires at most once per
// utterance, however many partials repeat it.
func (d *Dispatcher) consume(ctx context.Context, stream Stream, caps Capabilities) {
	fired := make(map[Action]bool)
	results := stream.Results()
	for {
		select {
		case <-ctx.Done():
			return
		case tr, ok := <-results:
			if !ok {
				return
			}
			if cmd, matched := Match(tr.Text, d.commands); matched && !fired[cmd.Action] {
				fired[cmd.Action] = true
				logging.FromContext(ctx).Debug("voice command matched",
					slog.String("phrase", cmd.Phrase), slog.Bool("final", tr.Final))
				d.run(cmd.Action, caps)
			}
			if tr.Final {
				clear(fired)
			}
		}
	}
}

func (d *Dispatcher) run(action Action, caps Capabilities) {
	switch action {
	case ActionOpenVision:
		navigate(caps, TabVision)
	case ActionOpenFriends:
		navigate(caps, TabFriends)
	case ActionOpenSettings:
		navigate(caps, TabSettings)
	case ActionCallHelper:
		call(caps.CallHelper)
	case ActionTakePicture:
		call(caps.TakePicture)
	case ActionRepeat:
		call(caps.Repeat)
	}
}

func navigate(caps Capabilities, tab Tab) {
	if caps.Navigate != nil {
		caps.Navigate(tab)
	}
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}
