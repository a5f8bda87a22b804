package friends

import (
	"context"
	"fmt"
	"sync"

	"github.com/eyelink/client/internal/models"
)

// Service is the subset of the friends API the Book needs.
type Service interface {
	List(ctx context.Context) ([]models.Friend, error)
	Requests(ctx context.Context) ([]models.FriendRequest, error)
	Accept(ctx context.Context, requestID string) error
	Reject(ctx context.Context, requestID string) error
}

// Book keeps the friend request view consistent with what this client already answered.
//
// The server may keep reporting a request as pending after it was accepted or declined. Answers
// given through the Book always win over the server. They live as long as the Book, or as long as
// its AnswerStore when one is configured.
type Book struct {
	svc   Service
	store AnswerStore

	mu       sync.Mutex
	loaded   bool
	answered map[string]models.FriendRequestStatus
	requests []models.FriendRequest
}

// Option configures a Book.
type Option func(*Book)

// WithAnswerStore persists answers to store and restores them on first use.
func WithAnswerStore(store AnswerStore) Option {
	return func(b *Book) { b.store = store }
}

// NewBook wraps svc.
func NewBook(svc Service, opts ...Option) *Book {
	b := &Book{svc: svc, answered: make(map[string]models.FriendRequestStatus)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Friends returns accepted friends as the server reports them.
func (b *Book) Friends(ctx context.Context) ([]models.Friend, error) {
	return b.svc.List(ctx)
}

// Refresh fetches incoming requests, applies local answers and returns the merged list.
func (b *Book) Refresh(ctx context.Context) ([]models.FriendRequest, error) {
	if err := b.restore(ctx); err != nil {
		return nil, err
	}
	fetched, err := b.svc.Requests(ctx)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	merged := make([]models.FriendRequest, len(fetched))
	for i, req := range fetched {
		if status, ok := b.answered[req.ID]; ok {
			req.Status = status
		}
		merged[i] = req
	}
	b.requests = merged
	return append([]models.FriendRequest(nil), merged...), nil
}

// Pending returns the requests from the last Refresh that still await an answer.
func (b *Book) Pending() []models.FriendRequest {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []models.FriendRequest
	for _, req := range b.requests {
		if status, ok := b.answered[req.ID]; ok {
			req.Status = status
		}
		if req.Status == models.FriendRequestPending || req.Status == "" {
			out = append(out, req)
		}
	}
	return out
}

// Accept accepts a request and records the answer on success.
func (b *Book) Accept(ctx context.Context, requestID string) error {
	if err := b.restore(ctx); err != nil {
		return err
	}
	if err := b.svc.Accept(ctx, requestID); err != nil {
		return err
	}
	return b.record(ctx, requestID, models.FriendRequestAccepted)
}

// Decline rejects a request and records the answer on success.
func (b *Book) Decline(ctx context.Context, requestID string) error {
	if err := b.restore(ctx); err != nil {
		return err
	}
	if err := b.svc.Reject(ctx, requestID); err != nil {
		return err
	}
	return b.record(ctx, requestID, models.FriendRequestDeclined)
}

// Status reports the locally recorded answer for requestID.
func (b *Book) Status(requestID string) (models.FriendRequestStatus, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	status, ok := b.answered[requestID]
	return status, ok
}

// record keeps the answer in memory even when persisting it fails.
func (b *Book) record(ctx context.Context, requestID string, status models.FriendRequestStatus) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.answered[requestID] = status
	if b.store == nil {
		return nil
	}
	if err := b.store.Save(ctx, b.answered); err != nil {
		return fmt.Errorf("remember answer: %w", err)
	}
	return nil
}

func (b *Book) restore(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loaded || b.store == nil {
		return nil
	}
	stored, err := b.store.Load(ctx)
	if err != nil {
		return err
	}
	for id, status := range stored {
		if _, ok := b.answered[id]; !ok {
			b.answered[id] = status
		}
	}
	b.loaded = true
	return nil
}
