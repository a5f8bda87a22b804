package friends

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/eyelink/client/internal/models"
)

type stubService struct {
	requests  []models.FriendRequest
	friends   []models.Friend
	acceptErr error
	rejectErr error
	accepted  []string
	rejected  []string
}

func (s *stubService) List(context.Context) ([]models.Friend, error) {
	return s.friends, nil
}

func (s *stubService) Requests(context.Context) ([]models.FriendRequest, error) {
	return append([]models.FriendRequest(nil), s.requests...), nil
}

func (s *stubService) Accept(_ context.Context, id string) error {
	if s.acceptErr != nil {
		return s.acceptErr
	}
	s.accepted = append(s.accepted, id)
	return nil
}

func (s *stubService) Reject(_ context.Context, id string) error {
	if s.rejectErr != nil {
		return s.rejectErr
	}
	s.rejected = append(s.rejected, id)
	return nil
}

func pending(ids ...string) []models.FriendRequest {
	out := make([]models.FriendRequest, len(ids))
	for i, id := range ids {
		out[i] = models.FriendRequest{ID: id, Email: id + "@example.com", Status: models.FriendRequestPending}
	}
	return out
}

func TestBookLocalAnswersWinOverStaleServer(t *testing.T) {
	svc := &stubService{requests: pending("r1", "r2", "r3")}
	book := NewBook(svc)
	ctx := context.Background()

	if _, err := book.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := book.Accept(ctx, "r1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := book.Decline(ctx, "r2"); err != nil {
		t.Fatalf("decline: %v", err)
	}

	// the server still reports every request as pending
	merged, err := book.Refresh(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	want := map[string]models.FriendRequestStatus{
		"r1": models.FriendRequestAccepted,
		"r2": models.FriendRequestDeclined,
		"r3": models.FriendRequestPending,
	}
	for _, req := range merged {
		if req.Status != want[req.ID] {
			t.Errorf("request %s: expected %s got %s", req.ID, want[req.ID], req.Status)
		}
	}

	left := book.Pending()
	if len(left) != 1 || left[0].ID != "r3" {
		t.Fatalf("expected only r3 pending, got %+v", left)
	}
}

func TestBookFailedAnswerIsNotRecorded(t *testing.T) {
	svc := &stubService{requests: pending("r1"), acceptErr: errors.New("boom"), rejectErr: errors.New("boom")}
	book := NewBook(svc)
	ctx := context.Background()

	if _, err := book.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := book.Accept(ctx, "r1"); err == nil {
		t.Fatal("expected accept error")
	}
	if err := book.Decline(ctx, "r1"); err == nil {
		t.Fatal("expected decline error")
	}

	if _, ok := book.Status("r1"); ok {
		t.Fatal("expected no local answer after failures")
	}
	if got := book.Pending(); len(got) != 1 {
		t.Fatalf("expected r1 still pending, got %+v", got)
	}
}

func TestBookAnswerAppliesBeforeNextRefresh(t *testing.T) {
	svc := &stubService{requests: pending("r1", "r2")}
	book := NewBook(svc)
	ctx := context.Background()

	if _, err := book.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := book.Accept(ctx, "r2"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	left := book.Pending()
	if len(left) != 1 || left[0].ID != "r1" {
		t.Fatalf("expected only r1 pending, got %+v", left)
	}
	if len(svc.accepted) != 1 || svc.accepted[0] != "r2" {
		t.Fatalf("expected one accept call for r2, got %v", svc.accepted)
	}
}

func TestBookFriendsPassthrough(t *testing.T) {
	svc := &stubService{friends: []models.Friend{{ID: "f1", IsAdded: true}}}
	book := NewBook(svc)

	got, err := book.Friends(context.Background())
	if err != nil {
		t.Fatalf("friends: %v", err)
	}
	if len(got) != 1 || !got[0].IsAdded {
		t.Fatalf("unexpected friends %+v", got)
	}
}

func TestBookAnswersPersistAcrossBooks(t *testing.T) {
	svc := &stubService{requests: pending("r1", "r2", "r3")}
	store := NewFileAnswers(filepath.Join(t.TempDir(), "state", "answers.json"))
	ctx := context.Background()

	first := NewBook(svc, WithAnswerStore(store))
	if err := first.Accept(ctx, "r1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := first.Decline(ctx, "r3"); err != nil {
		t.Fatalf("decline: %v", err)
	}

	second := NewBook(svc, WithAnswerStore(store))
	merged, err := second.Refresh(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	want := map[string]models.FriendRequestStatus{
		"r1": models.FriendRequestAccepted,
		"r2": models.FriendRequestPending,
		"r3": models.FriendRequestDeclined,
	}
	for _, req := range merged {
		if req.Status != want[req.ID] {
			t.Fatalf("request %s: expected %s got %s", req.ID, want[req.ID], req.Status)
		}
	}
	if left := second.Pending(); len(left) != 1 || left[0].ID != "r2" {
		t.Fatalf("expected only r2 pending, got %+v", left)
	}
}

type failingAnswers struct{ loadErr, saveErr error }

func (f failingAnswers) Load(context.Context) (map[string]models.FriendRequestStatus, error) {
	return nil, f.loadErr
}

func (f failingAnswers) Save(context.Context, map[string]models.FriendRequestStatus) error {
	return f.saveErr
}

func TestBookAnswerStoreFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")

	t.Run("load", func(t *testing.T) {
		svc := &stubService{requests: pending("r1")}
		book := NewBook(svc, WithAnswerStore(failingAnswers{loadErr: boom}))
		if _, err := book.Refresh(ctx); !errors.Is(err, boom) {
			t.Fatalf("expected load error, got %v", err)
		}
		if err := book.Accept(ctx, "r1"); !errors.Is(err, boom) {
			t.Fatalf("expected load error, got %v", err)
		}
		if len(svc.accepted) != 0 {
			t.Fatalf("expected no accept call, got %v", svc.accepted)
		}
	})

	t.Run("save", func(t *testing.T) {
		svc := &stubService{requests: pending("r1")}
		book := NewBook(svc, WithAnswerStore(failingAnswers{saveErr: boom}))
		if err := book.Accept(ctx, "r1"); !errors.Is(err, boom) {
			t.Fatalf("expected save error, got %v", err)
		}
		if status, ok := book.Status("r1"); !ok || status != models.FriendRequestAccepted {
			t.Fatalf("expected answer kept in memory, got %q %v", status, ok)
		}
	})
}
