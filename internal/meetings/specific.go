package meetings

import (
	"context"
	"fmt"
	"sync"

	"github.com/eyelink/client/internal/models"
)

// SpecificAPI is the part of the meetings service the directed flow uses.
type SpecificAPI interface {
	PendingSpecific(ctx context.Context) ([]models.PendingMeeting, error)
	AcceptSpecific(ctx context.Context, meetingID string) (models.MeetingToken, error)
	Reject(ctx context.Context, meetingID string) error
}

// SpecificList is the helper's list of meetings addressed to them. It is refreshed on demand and
// every item latches independently: once accepted or declined it can never be submitted again.
type SpecificList struct {
	api     SpecificAPI
	connect Connector

	mu       sync.Mutex
	items    []models.PendingMeeting
	inflight map[string]bool
	handled  map[string]bool
	closed   bool
}

// NewSpecificList builds an empty list. connect may be nil.
func NewSpecificList(api SpecificAPI, connect Connector) *SpecificList {
	return &SpecificList{
		api:      api,
		connect:  connect,
		inflight: make(map[string]bool),
		handled:  make(map[string]bool),
	}
}

// Refresh fetches the pending directed meetings. Items already handled locally are left out.
func (l *SpecificList) Refresh(ctx context.Context) ([]models.PendingMeeting, error) {
	fetched, err := l.api.PendingSpecific(ctx)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}

	items := make([]models.PendingMeeting, 0, len(fetched))
	for _, m := range fetched {
		if !l.handled[m.ID] {
			items = append(items, m)
		}
	}
	l.items = items
	return append([]models.PendingMeeting(nil), items...), nil
}

// Items returns the list as of the last refresh or answer.
func (l *SpecificList) Items() []models.PendingMeeting {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.PendingMeeting(nil), l.items...)
}

// Busy reports whether a request for meetingID is in flight.
func (l *SpecificList) Busy(meetingID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inflight[meetingID]
}

// Accept accepts one meeting and hands its credentials to the connector.
func (l *SpecificList) Accept(ctx context.Context, meetingID string) (models.MeetingToken, error) {
	if err := l.claim(meetingID); err != nil {
		return models.MeetingToken{}, err
	}

	token, err := l.api.AcceptSpecific(ctx, meetingID)
	if err := l.settle(meetingID, err); err != nil {
		return models.MeetingToken{}, err
	}

	if l.connect != nil {
		if err := l.connect(ctx, token); err != nil {
			return token, fmt.Errorf("join room: %w", err)
		}
	}
	return token, nil
}

// Decline rejects one meeting and drops it from the list on success.
func (l *SpecificList) Decline(ctx context.Context, meetingID string) error {
	if err := l.claim(meetingID); err != nil {
		return err
	}
	return l.settle(meetingID, l.api.Reject(ctx, meetingID))
}

// Close discards any response still in flight.
func (l *SpecificList) Close() {
	l.mu.Lock()
	l.closed = true
	l.items = nil
	l.mu.Unlock()
}

func (l *SpecificList) claim(meetingID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case l.closed:
		return ErrClosed
	case l.handled[meetingID], l.inflight[meetingID]:
		return ErrAlreadyHandled
	}
	l.inflight[meetingID] = true
	return nil
}

// settle releases the in-flight mark; on success the item is latched and removed.
func (l *SpecificList) settle(meetingID string, err error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inflight, meetingID)
	if l.closed {
		return ErrClosed
	}
	if err != nil {
		return err
	}

	l.handled[meetingID] = true
	kept := l.items[:0]
	for _, m := range l.items {
		if m.ID != meetingID {
			kept = append(kept, m)
		}
	}
	l.items = kept
	return nil
}
