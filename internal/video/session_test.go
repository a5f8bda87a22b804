package video

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeTrack struct{ rec *recorder }

func (t fakeTrack) Release() error {
	t.rec.add("track.release")
	return nil
}

type fakeCamera struct {
	rec      *recorder
	startErr error
	stopErr  error
}

func (c *fakeCamera) Start(context.Context) (LocalTrack, error) {
	c.rec.add("camera.start")
	if c.startErr != nil {
		return nil, c.startErr
	}
	return fakeTrack{rec: c.rec}, nil
}

func (c *fakeCamera) Stop() error {
	c.rec.add("camera.stop")
	return c.stopErr
}

func (c *fakeCamera) Flip() error {
	c.rec.add("camera.flip")
	return nil
}

type fakeRoom struct {
	rec    *recorder
	events chan Event
	once   sync.Once
}

func (r *fakeRoom) Events() <-chan Event { return r.events }

func (r *fakeRoom) Publish(LocalTrack) error {
	r.rec.add("room.publish")
	return nil
}

func (r *fakeRoom) Disconnect() error {
	r.rec.add("room.disconnect")
	r.once.Do(func() { close(r.events) })
	return nil
}

type fakeConnector struct {
	rec  *recorder
	room *fakeRoom
	err  error
}

func (c *fakeConnector) Connect(_ context.Context, opts ConnectOptions) (Room, error) {
	c.rec.add("connect " + opts.RoomName)
	if c.err != nil {
		return nil, c.err
	}
	c.room = &fakeRoom{rec: c.rec, events: make(chan Event, 8)}
	return c.room, nil
}

func waitFor(t *testing.T, predicate func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if predicate() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

func TestSessionTeardownOrder(t *testing.T) {
	rec := &recorder{}
	session := NewSession(&fakeConnector{rec: rec}, &fakeCamera{rec: rec})

	if err := session.Connect(context.Background(), "tok", "room-1", true, nil); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := session.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	want := []string{
		"connect room-1",
		"camera.start",
		"room.publish",
		"camera.stop",
		"track.release",
		"room.disconnect",
	}
	if got := rec.snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected lifecycle\n got %v\nwant %v", got, want)
	}
	if session.Connected() {
		t.Fatal("session must be cleared after disconnect")
	}
	if err := session.Disconnect(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestSessionTeardownContinuesAfterFailure(t *testing.T) {
	rec := &recorder{}
	session := NewSession(&fakeConnector{rec: rec}, &fakeCamera{rec: rec, stopErr: errors.New("busy")})

	if err := session.Connect(context.Background(), "tok", "room-1", true, nil); err != nil {
		t.Fatalf("connect: %v", err)
	}
	err := session.Disconnect()
	if err == nil {
		t.Fatal("expected camera stop error")
	}

	calls := rec.snapshot()
	if calls[len(calls)-1] != "room.disconnect" {
		t.Fatalf("room must still disconnect, got %v", calls)
	}
	if session.Connected() {
		t.Fatal("session must be cleared even after partial failure")
	}
}

func TestSessionWithoutVideoSkipsCamera(t *testing.T) {
	rec := &recorder{}
	session := NewSession(&fakeConnector{rec: rec}, &fakeCamera{rec: rec})

	if err := session.Connect(context.Background(), "tok", "room-1", false, nil); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := session.FlipCamera(); !errors.Is(err, ErrNoLocalVideo) {
		t.Fatalf("expected ErrNoLocalVideo, got %v", err)
	}
	if err := session.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	want := []string{"connect room-1", "room.disconnect"}
	if got := rec.snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestSessionCameraFailureReleasesRoom(t *testing.T) {
	rec := &recorder{}
	session := NewSession(&fakeConnector{rec: rec}, &fakeCamera{rec: rec, startErr: errors.New("denied")})

	if err := session.Connect(context.Background(), "tok", "room-1", true, nil); err == nil {
		t.Fatal("expected connect to fail")
	}
	if session.Connected() {
		t.Fatal("failed connect must not hold a room")
	}
	want := []string{"connect room-1", "camera.start", "room.disconnect"}
	if got := rec.snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestSessionRejectsSecondConnect(t *testing.T) {
	rec := &recorder{}
	session := NewSession(&fakeConnector{rec: rec}, nil)
	ctx := context.Background()

	if err := session.Connect(ctx, "tok", "room-1", true, nil); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer session.Disconnect()

	if err := session.Connect(ctx, "tok", "room-2", false, nil); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("expected ErrAlreadyConnected, got %v", err)
	}
	if err := session.FlipCamera(); !errors.Is(err, ErrNoLocalVideo) {
		t.Fatalf("nil camera must not publish video, got %v", err)
	}
}

func TestSessionRemoteVisibility(t *testing.T) {
	rec := &recorder{}
	connector := &fakeConnector{rec: rec}
	session := NewSession(connector, nil)

	var (
		mu   sync.Mutex
		seen []EventKind
	)
	sink := func(ev Event) {
		mu.Lock()
		seen = append(seen, ev.Kind)
		mu.Unlock()
	}
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(seen)
	}

	if err := session.Connect(context.Background(), "tok", "room-1", false, sink); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer session.Disconnect()

	connector.room.events <- Event{Kind: EventConnected}
	waitFor(t, func() bool { return count() == 1 })
	if session.RemoteVisible() {
		t.Fatal("remote video must stay hidden until a participant arrives")
	}

	connector.room.events <- Event{Kind: EventTrackSubscribed, Identity: "helper"}
	waitFor(t, func() bool { return count() == 2 })
	if !session.RemoteVisible() {
		t.Fatal("expected remote video after track subscription")
	}

	connector.room.events <- Event{Kind: EventParticipantLeft, Identity: "helper"}
	waitFor(t, func() bool { return count() == 3 })
	if session.RemoteVisible() {
		t.Fatal("expected placeholder after the participant left")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []EventKind{EventConnected, EventTrackSubscribed, EventParticipantLeft}
	if !reflect.DeepEqual(seen, want) {
		t.Fatalf("sink saw %v want %v", seen, want)
	}
}

func TestHeadlessConnector(t *testing.T) {
	joined := make(chan struct{})
	connector := HeadlessConnector{Presence: func(ctx context.Context, opts ConnectOptions, emit func(Event)) {
		emit(Event{Kind: EventParticipantJoined, Identity: "helper-for-" + opts.RoomName})
		close(joined)
		<-ctx.Done()
	}}
	session := NewSession(connector, nil)

	var (
		mu   sync.Mutex
		seen []Event
	)
	err := session.Connect(context.Background(), "tok", "room-1", false, func(ev Event) {
		mu.Lock()
		seen = append(seen, ev)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	<-joined
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	})
	if !session.RemoteVisible() {
		t.Fatal("expected remote video once presence reports a participant")
	}
	if err := session.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0].Kind != EventConnected || seen[1].Identity != "helper-for-room-1" {
		t.Fatalf("unexpected events %+v", seen)
	}
}
