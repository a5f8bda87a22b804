// Package meetings coordinates the seeker-requests / helper-fulfills call flow on top of polling.
package meetings

import (
	"context"
	"errors"

	"github.com/eyelink/client/internal/models"
)

var (
	// ErrAlreadyHandled is returned when an item's one-shot latch has already fired.
	ErrAlreadyHandled = errors.New("meeting already handled")
	// ErrNothingPending is returned by Accept when the accept control is disabled.
	ErrNothingPending = errors.New("no pending meeting to accept")
	// ErrClosed is returned when the flow was closed before a response arrived.
	ErrClosed = errors.New("meeting flow closed")
	// ErrNotConnected is returned when ending a call that never connected.
	ErrNotConnected = errors.New("not connected to a meeting")
	// ErrAlreadyStarted is returned when a seeker call is started twice.
	ErrAlreadyStarted = errors.New("call already started")
)

// State is a step of the helper's global accept flow.
type State int

const (
	StateIdle State = iota
	StatePendingAvailable
	StateAccepting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePendingAvailable:
		return "pending_available"
	case StateAccepting:
		return "accepting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connector hands room credentials to the video layer once a meeting is claimed.
type Connector func(ctx context.Context, token models.MeetingToken) error
