// Package video isolates the rest of the client from the video SDK's object lifecycle.
//
// The SDK is reached through three small ports (Connector, Room and Camera). Room lifecycle
// callbacks arrive as a typed Event stream instead of delegate methods.
package video

import (
	"context"
	"errors"
)

var (
	// ErrAlreadyConnected is returned by Connect while a room is held.
	ErrAlreadyConnected = errors.New("video session already connected")
	// ErrNotConnected is returned when no room is held.
	ErrNotConnected = errors.New("video session not connected")
	// ErrNoLocalVideo is returned by FlipCamera when the session publishes no video.
	ErrNoLocalVideo = errors.New("video session has no local camera")
)

// EventKind enumerates room lifecycle signals.
type EventKind string

const (
	EventConnected         EventKind = "connected"
	EventDisconnected      EventKind = "disconnected"
	EventParticipantJoined EventKind = "participant_joined"
	EventParticipantLeft   EventKind = "participant_left"
	EventTrackSubscribed   EventKind = "track_subscribed"
)

// Event is one room lifecycle signal. Identity is set for participant and track events, Reason
// for disconnects.
type Event struct {
	Kind     EventKind
	Identity string
	Reason   string
}

// ConnectOptions identifies the room to join.
type ConnectOptions struct {
	Token    string
	RoomName string
}

// Connector joins rooms.
type Connector interface {
	Connect(ctx context.Context, opts ConnectOptions) (Room, error)
}

// Room is a joined room. Events is closed after Disconnect.
type Room interface {
	Events() <-chan Event
	Publish(track LocalTrack) error
	Disconnect() error
}

// LocalTrack is a captured local video track.
type LocalTrack interface {
	Release() error
}

// Camera captures local video.
type Camera interface {
	Start(ctx context.Context) (LocalTrack, error)
	Stop() error
	Flip() error
}
