package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eyelink/client/internal/logging"
	"github.com/eyelink/client/internal/meetings"
	"github.com/eyelink/client/internal/models"
	"github.com/eyelink/client/internal/services"
	"github.com/eyelink/client/internal/video"
)

const endTimeout = 10 * time.Second

func (a *App) meeting(ctx context.Context, args []string) error {
	sub, rest := subcommand(args, "")
	svc := a.deps.Services.Meetings

	switch sub {
	case "create":
		set := a.flags("meeting create")
		kind := set.String("type", string(models.MeetingGlobal), "global or specific")
		helper := set.String("helper", "", "helper id for specific meetings")
		if _, err := parse(set, rest); err != nil {
			return err
		}
		token, err := svc.Create(ctx, models.MeetingType(*kind), *helper)
		if err != nil {
			return err
		}
		a.printf("Meeting %s created in room %s.\n", token.MeetingID, token.RoomName)
		return nil
	case "end":
		var id string
		if len(rest) > 0 {
			id = rest[0]
		}
		if err := svc.End(ctx, id); err != nil {
			return err
		}
		a.printf("Meeting ended.\n")
		return nil
	case "show":
		id, err := single(rest, "meeting id")
		if err != nil {
			return err
		}
		m, err := svc.Get(ctx, id)
		if err != nil {
			return err
		}
		a.printf("id: %s\ntype: %s\nstatus: %s\ncreated: %s\n", m.ID, m.Type, m.Status, m.CreatedAt.Format(time.RFC3339))
		if m.HelperID != nil {
			a.printf("helper: %s\n", *m.HelperID)
		}
		return nil
	default:
		return fmt.Errorf("unknown meeting command %q", sub)
	}
}

// helpQueue waits for a broadcast request, claims it and stays in the room until interrupted or
// hold elapses.
func (a *App) helpQueue(ctx context.Context, args []string) error {
	set := a.flags("help-queue")
	timeout := set.Duration("timeout", 0, "give up waiting after this long (0 waits forever)")
	hold := set.Duration("hold", 0, "leave the call after this long (0 stays until interrupted)")
	if _, err := parse(set, args); err != nil {
		return err
	}
	if err := a.requireRole(ctx, models.RoleHelper); err != nil {
		return err
	}

	session := video.NewSession(video.HeadlessConnector{}, nil)
	ready := make(chan struct{}, 1)
	acceptor := meetings.NewGlobalAcceptor(a.deps.Services.Meetings,
		meetings.WithPollInterval(a.cfg.PollInterval),
		meetings.WithConnector(a.joinRoom(session, nil)),
		meetings.WithObserver(func(s meetings.State) {
			if s != meetings.StatePendingAvailable {
				return
			}
			select {
			case ready <- struct{}{}:
			default:
			}
		}),
	)
	defer acceptor.Close()

	waitCtx, cancel := withOptionalTimeout(ctx, *timeout)
	defer cancel()

	a.printf("Waiting for someone who needs help...\n")
	acceptor.Show(waitCtx)

	var token models.MeetingToken
	for token.MeetingID == "" {
		select {
		case <-waitCtx.Done():
			if ctx.Err() == nil {
				a.printf("Nobody needs help right now.\n")
			}
			return nil
		case <-ready:
		}

		accepted, err := acceptor.Accept(ctx)
		switch {
		case errors.Is(err, meetings.ErrNothingPending):
		case err != nil && accepted.MeetingID != "":
			return errors.Join(err, a.endHelperCall(ctx, acceptor, session))
		case err != nil:
			a.printf("Could not accept the call: %s\n", services.Message(err))
			// The failure re-announced the stale list; wait for the next poll instead.
			select {
			case <-ready:
			default:
			}
		default:
			token = accepted
		}
	}

	a.printf("Connected to meeting %s in room %s.\n", token.MeetingID, token.RoomName)
	a.stay(ctx, *hold, nil)
	return a.endHelperCall(ctx, acceptor, session)
}

func (a *App) endHelperCall(ctx context.Context, acceptor *meetings.GlobalAcceptor, session *video.Session) error {
	endCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), endTimeout)
	defer cancel()

	err := errors.Join(acceptor.EndCall(endCtx), disconnect(session))
	if err == nil {
		a.printf("Call ended.\n")
	}
	return err
}

func (a *App) pending(ctx context.Context, args []string) error {
	sub, rest := subcommand(args, "list")
	if err := a.requireRole(ctx, models.RoleHelper); err != nil {
		return err
	}

	session := video.NewSession(video.HeadlessConnector{}, nil)
	list := meetings.NewSpecificList(a.deps.Services.Meetings, a.joinRoom(session, nil))
	defer list.Close()

	switch sub {
	case "list":
		items, err := list.Refresh(ctx)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			a.printf("Nobody is calling you right now.\n")
			return nil
		}
		for _, m := range items {
			a.printf("%s\t%s\t%s\n", m.ID, m.SeekerName, m.CreatedAt.Format(time.Kitchen))
		}
		return nil
	case "accept":
		set := a.flags("pending accept")
		hold := set.Duration("hold", 0, "leave the call after this long (0 stays until interrupted)")
		positional, err := parse(set, rest)
		if err != nil {
			return err
		}
		id, err := single(positional, "meeting id")
		if err != nil {
			return err
		}

		token, err := list.Accept(ctx, id)
		if err != nil && token.MeetingID == "" {
			return err
		}
		if err == nil {
			a.printf("Connected to meeting %s in room %s.\n", token.MeetingID, token.RoomName)
			a.stay(ctx, *hold, nil)
		}

		endCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), endTimeout)
		defer cancel()
		endErr := errors.Join(a.deps.Services.Meetings.End(endCtx, token.MeetingID), disconnect(session))
		if err == nil && endErr == nil {
			a.printf("Call ended.\n")
		}
		return errors.Join(err, endErr)
	case "decline":
		id, err := single(rest, "meeting id")
		if err != nil {
			return err
		}
		if err := list.Decline(ctx, id); err != nil {
			return err
		}
		a.printf("Call declined.\n")
		return nil
	default:
		return fmt.Errorf("unknown pending command %q", sub)
	}
}

// call places a seeker call and waits for a helper. The meeting is only ended on the server when
// somebody joined.
func (a *App) call(ctx context.Context, args []string) error {
	set := a.flags("call")
	kind := set.String("type", string(models.MeetingGlobal), "global or specific")
	helper := set.String("helper", "", "helper id for specific calls")
	wait := set.Duration("wait", 0, "hang up after this long (0 stays until interrupted)")
	if _, err := parse(set, args); err != nil {
		return err
	}
	if err := a.requireRole(ctx, models.RoleSeeker); err != nil {
		return err
	}

	placed, token, err := a.placeCall(ctx, models.MeetingType(*kind), *helper)
	if err != nil && token.MeetingID == "" {
		return err
	}
	if err == nil {
		a.printf("Calling... (meeting %s)\n", token.MeetingID)
		a.stay(ctx, *wait, placed.ended)
		if !placed.call.Joined() {
			a.printf("Nobody answered.\n")
		}
	}
	return errors.Join(err, placed.hangUp(ctx))
}

// seekerCall is a call placed by the seeker together with the headless room it joined.
type seekerCall struct {
	call      *meetings.SeekerCall
	session   *video.Session
	ended     chan struct{}
	endedOnce sync.Once
}

// placeCall creates a meeting and joins its room. Room events are reported on the output. The
// returned call is non-nil whenever the meeting was created, even if joining failed.
func (a *App) placeCall(ctx context.Context, kind models.MeetingType, helperID string) (*seekerCall, models.MeetingToken, error) {
	placed := &seekerCall{ended: make(chan struct{})}
	sink := func(ev video.Event) {
		switch ev.Kind {
		case video.EventParticipantJoined:
			placed.call.ParticipantJoined()
			a.printf("A helper joined the call.\n")
		case video.EventDisconnected:
			if ev.Reason != "" {
				a.printf("The call finished: %s.\n", ev.Reason)
			}
			placed.endedOnce.Do(func() { close(placed.ended) })
		}
	}
	connect := func(ctx context.Context, token models.MeetingToken) error {
		placed.session = video.NewSession(video.HeadlessConnector{Presence: a.presence(token.MeetingID)}, nil)
		return placed.session.Connect(ctx, token.AccessToken, token.RoomName, false, sink)
	}
	placed.call = meetings.NewSeekerCall(a.deps.Services.Meetings, connect)

	token, err := placed.call.Start(ctx, kind, helperID)
	if err != nil && token.MeetingID == "" {
		return nil, token, err
	}
	return placed, token, err
}

// finished reports whether the meeting already ended on the server.
func (c *seekerCall) finished() bool {
	select {
	case <-c.ended:
		return true
	default:
		return false
	}
}

// hangUp ends the call unless the server already finished it, then leaves the room.
func (c *seekerCall) hangUp(ctx context.Context) error {
	var endErr error
	if !c.finished() {
		endCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), endTimeout)
		defer cancel()
		endErr = c.call.End(endCtx)
	}
	return errors.Join(endErr, disconnect(c.session))
}

// presence watches a meeting the seeker created and reports the helper joining and the meeting
// finishing as room events.
func (a *App) presence(meetingID string) video.PresenceFunc {
	return func(ctx context.Context, _ video.ConnectOptions, emit func(video.Event)) {
		logger := logging.FromContext(ctx).With(slog.String("meeting_id", meetingID))
		ticker := time.NewTicker(a.cfg.PollInterval)
		defer ticker.Stop()

		joined := false
		for {
			m, err := a.deps.Services.Meetings.Get(ctx, meetingID)
			switch {
			case err != nil:
				logger.Debug("meeting status poll failed", slog.String("error", err.Error()))
			case m.Status.Terminal():
				emit(video.Event{Kind: video.EventDisconnected, Reason: string(m.Status)})
				return
			case m.Status == models.MeetingAccepted && !joined:
				joined = true
				identity := ""
				if m.HelperID != nil {
					identity = *m.HelperID
				}
				emit(video.Event{Kind: video.EventParticipantJoined, Identity: identity})
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
}

// joinRoom connects session without media. sink may be nil.
func (a *App) joinRoom(session *video.Session, sink func(video.Event)) meetings.Connector {
	return func(ctx context.Context, token models.MeetingToken) error {
		return session.Connect(ctx, token.AccessToken, token.RoomName, false, sink)
	}
}

// stay blocks until ctx is done, d elapses (when positive) or done closes.
func (a *App) stay(ctx context.Context, d time.Duration, done <-chan struct{}) {
	var timer <-chan time.Time
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		timer = t.C
	}
	select {
	case <-ctx.Done():
	case <-timer:
	case <-done:
	}
}

func disconnect(session *video.Session) error {
	if session == nil {
		return nil
	}
	if err := session.Disconnect(); err != nil && !errors.Is(err, video.ErrNotConnected) {
		return err
	}
	return nil
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
