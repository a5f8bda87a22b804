package video

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Session holds at most one room plus the local camera track published into it.
type Session struct {
	connector Connector
	camera    Camera

	// opMu serialises Connect, FlipCamera and Disconnect.
	opMu sync.Mutex

	mu      sync.Mutex
	room    Room
	track   LocalTrack
	remotes map[string]bool
	visible bool
	done    chan struct{}
}

// NewSession builds a disconnected session. camera may be nil when no local capture exists.
func NewSession(connector Connector, camera Camera) *Session {
	return &Session{connector: connector, camera: camera}
}

// Connect joins roomName. When enableVideo is set the camera is started and its track published.
// sink receives every room event in arrival order and may be nil.
func (s *Session) Connect(ctx context.Context, token, roomName string, enableVideo bool, sink func(Event)) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.Connected() {
		return ErrAlreadyConnected
	}

	room, err := s.connector.Connect(ctx, ConnectOptions{Token: token, RoomName: roomName})
	if err != nil {
		return fmt.Errorf("connect room: %w", err)
	}

	var track LocalTrack
	if enableVideo && s.camera != nil {
		track, err = s.publishCamera(ctx, room)
		if err != nil {
			return errors.Join(err, room.Disconnect())
		}
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.room = room
	s.track = track
	s.remotes = make(map[string]bool)
	s.visible = false
	s.done = done
	s.mu.Unlock()

	go s.forward(room.Events(), done, sink)
	return nil
}

func (s *Session) publishCamera(ctx context.Context, room Room) (LocalTrack, error) {
	track, err := s.camera.Start(ctx)
	if err != nil {
		return nil, fmt.Errorf("start camera: %w", err)
	}
	if err := room.Publish(track); err != nil {
		return nil, errors.Join(fmt.Errorf("publish track: %w", err), s.camera.Stop(), track.Release())
	}
	return track, nil
}

// FlipCamera switches between front and back cameras.
func (s *Session) FlipCamera() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	room, track := s.room, s.track
	s.mu.Unlock()

	switch {
	case room == nil:
		return ErrNotConnected
	case track == nil:
		return ErrNoLocalVideo
	}
	return s.camera.Flip()
}

// Disconnect tears the session down: camera capture stops, the local track is released, the
// room disconnects, and only then is the session cleared. Every step runs even if an earlier
// one fails.
func (s *Session) Disconnect() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	room, track, done := s.room, s.track, s.done
	s.mu.Unlock()
	if room == nil {
		return ErrNotConnected
	}

	var errs []error
	if track != nil {
		if err := s.camera.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop camera: %w", err))
		}
		if err := track.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release track: %w", err))
		}
	}
	if err := room.Disconnect(); err != nil {
		errs = append(errs, fmt.Errorf("disconnect room: %w", err))
	}

	s.mu.Lock()
	s.room = nil
	s.track = nil
	s.remotes = nil
	s.visible = false
	s.done = nil
	s.mu.Unlock()
	close(done)

	return errors.Join(errs...)
}

// Connected reports whether a room is held.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room != nil
}

// RemoteVisible reports whether remote video should be rendered. It stays false, and the
// placeholder is shown, until the room reports a remote participant or subscribed track.
func (s *Session) RemoteVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

func (s *Session) forward(events <-chan Event, done <-chan struct{}, sink func(Event)) {
	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !s.apply(ev, done) {
				return
			}
			if sink != nil {
				sink(ev)
			}
		}
	}
}

// apply updates remote visibility and reports false when the event belongs to a room that is
// no longer held.
func (s *Session) apply(ev Event, done <-chan struct{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil || s.done != done {
		return false
	}

	switch ev.Kind {
	case EventParticipantJoined, EventTrackSubscribed:
		s.remotes[ev.Identity] = true
	case EventParticipantLeft:
		delete(s.remotes, ev.Identity)
	case EventDisconnected:
		clear(s.remotes)
	}
	s.visible = len(s.remotes) > 0
	return true
}
