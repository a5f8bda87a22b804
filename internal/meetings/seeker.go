package meetings

import (
	"context"
	"fmt"
	"sync"

	"github.com/eyelink/client/internal/models"
)

// SeekerAPI is the part of the meetings service the seeker flow uses.
type SeekerAPI interface {
	Create(ctx context.Context, kind models.MeetingType, helperID string) (models.MeetingToken, error)
	End(ctx context.Context, meetingID string) error
}

// SeekerCall is one call placed by a seeker. Creating the meeting returns the room credentials
// directly, so there is nothing to poll.
type SeekerCall struct {
	api     SeekerAPI
	connect Connector

	mu      sync.Mutex
	token   *models.MeetingToken
	joined  bool
	ended   bool
	started bool
}

// NewSeekerCall builds an unstarted call. connect may be nil.
func NewSeekerCall(api SeekerAPI, connect Connector) *SeekerCall {
	return &SeekerCall{api: api, connect: connect}
}

// Start creates the meeting and joins its room.
func (c *SeekerCall) Start(ctx context.Context, kind models.MeetingType, helperID string) (models.MeetingToken, error) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return models.MeetingToken{}, ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	token, err := c.api.Create(ctx, kind, helperID)
	if err != nil {
		c.mu.Lock()
		c.started = false
		c.mu.Unlock()
		return models.MeetingToken{}, err
	}

	c.mu.Lock()
	c.token = &token
	c.mu.Unlock()

	if c.connect != nil {
		if err := c.connect(ctx, token); err != nil {
			return token, fmt.Errorf("join room: %w", err)
		}
	}
	return token, nil
}

// State reports Connected once the meeting exists and Closed after End.
func (c *SeekerCall) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.ended:
		return StateClosed
	case c.token != nil:
		return StateConnected
	default:
		return StateIdle
	}
}

// ParticipantJoined records that a remote participant entered the room.
func (c *SeekerCall) ParticipantJoined() {
	c.mu.Lock()
	c.joined = true
	c.mu.Unlock()
}

// Joined reports whether anyone joined.
func (c *SeekerCall) Joined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined
}

// End finishes the call. The server is told only when a remote participant joined; calls nobody
// answered end silently. Repeated calls are no-ops.
func (c *SeekerCall) End(ctx context.Context) error {
	c.mu.Lock()
	if c.token == nil || c.ended {
		c.mu.Unlock()
		return nil
	}
	c.ended = true
	joined := c.joined
	meetingID := c.token.MeetingID
	c.mu.Unlock()

	if !joined {
		return nil
	}
	return c.api.End(ctx, meetingID)
}
