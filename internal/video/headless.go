package video

import (
	"context"
	"sync"
)

// PresenceFunc reports remote activity for a headless room by calling emit. It runs in its own
// goroutine and must return once ctx is done.
type PresenceFunc func(ctx context.Context, opts ConnectOptions, emit func(Event))

// HeadlessConnector joins rooms without media. It is used by the command line client, which has
// no camera or renderer; remote presence comes from Presence when set.
type HeadlessConnector struct {
	Presence PresenceFunc
}

// Connect returns a room that has already reported Connected.
func (c HeadlessConnector) Connect(ctx context.Context, opts ConnectOptions) (Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	room := &headlessRoom{events: make(chan Event, 16), cancel: cancel}
	room.emit(Event{Kind: EventConnected})

	if c.Presence != nil {
		room.wg.Add(1)
		go func() {
			defer room.wg.Done()
			c.Presence(watchCtx, opts, room.emit)
		}()
	}
	return room, nil
}

type headlessRoom struct {
	mu     sync.Mutex
	events chan Event
	closed bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (r *headlessRoom) Events() <-chan Event {
	return r.events
}

func (r *headlessRoom) Publish(LocalTrack) error {
	return nil
}

func (r *headlessRoom) Disconnect() error {
	r.cancel()
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	close(r.events)
	return nil
}

// emit drops events when the buffer is full rather than blocking the presence watcher.
func (r *headlessRoom) emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.events <- ev:
	default:
	}
}
