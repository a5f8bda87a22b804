package meetings

import (
	"context"
	"errors"
	"testing"

	"github.com/eyelink/client/internal/models"
)

type fakeSeekerAPI struct {
	createErr error
	creates   int
	ended     []string
}

func (f *fakeSeekerAPI) Create(_ context.Context, kind models.MeetingType, helperID string) (models.MeetingToken, error) {
	f.creates++
	if f.createErr != nil {
		return models.MeetingToken{}, f.createErr
	}
	return models.MeetingToken{AccessToken: "tok", RoomName: "room", Identity: "seeker", MeetingID: "m1"}, nil
}

func (f *fakeSeekerAPI) End(_ context.Context, id string) error {
	f.ended = append(f.ended, id)
	return nil
}

func TestSeekerCallEndsOnlyWhenSomeoneJoined(t *testing.T) {
	tests := []struct {
		name     string
		joined   bool
		wantEnds int
	}{
		{name: "nobody joined", joined: false, wantEnds: 0},
		{name: "helper joined", joined: true, wantEnds: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeSeekerAPI{}
			call := NewSeekerCall(api, nil)
			ctx := context.Background()

			if _, err := call.Start(ctx, models.MeetingGlobal, ""); err != nil {
				t.Fatalf("start: %v", err)
			}
			if tt.joined {
				call.ParticipantJoined()
			}

			for i := 0; i < 3; i++ {
				if err := call.End(ctx); err != nil {
					t.Fatalf("end: %v", err)
				}
			}

			if len(api.ended) != tt.wantEnds {
				t.Fatalf("expected %d end calls, got %v", tt.wantEnds, api.ended)
			}
			if call.State() != StateClosed {
				t.Fatalf("expected closed, got %v", call.State())
			}
		})
	}
}

func TestSeekerCallConnectsWithoutPolling(t *testing.T) {
	api := &fakeSeekerAPI{}
	var joined models.MeetingToken
	call := NewSeekerCall(api, func(_ context.Context, tok models.MeetingToken) error {
		joined = tok
		return nil
	})

	tok, err := call.Start(context.Background(), models.MeetingGlobal, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if call.State() != StateConnected {
		t.Fatalf("expected connected right after create, got %v", call.State())
	}
	if joined != tok || tok.RoomName != "room" {
		t.Fatalf("expected room hand-off, got %+v", joined)
	}

	if _, err := call.Start(context.Background(), models.MeetingGlobal, ""); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
	if api.creates != 1 {
		t.Fatalf("expected one create call, got %d", api.creates)
	}
}

func TestSeekerCallCreateFailureAllowsRetry(t *testing.T) {
	api := &fakeSeekerAPI{createErr: errors.New("offline")}
	call := NewSeekerCall(api, nil)
	ctx := context.Background()

	if _, err := call.Start(ctx, models.MeetingGlobal, ""); err == nil {
		t.Fatal("expected create failure")
	}
	if err := call.End(ctx); err != nil {
		t.Fatalf("end without meeting: %v", err)
	}

	api.createErr = nil
	if _, err := call.Start(ctx, models.MeetingGlobal, ""); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if call.State() != StateConnected {
		t.Fatalf("expected connected, got %v", call.State())
	}
}
