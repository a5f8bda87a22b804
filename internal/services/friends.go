package services

import (
	"context"
	"net/http"
	"strings"

	"github.com/eyelink/client/internal/apiclient"
	"github.com/eyelink/client/internal/credentials"
	"github.com/eyelink/client/internal/models"
)

// FriendService wraps the /friends endpoints.
type FriendService struct {
	api    Doer
	tokens credentials.TokenStore
}

type friendList struct {
	Friends []models.Friend `json:"friends"`
}

type requestList struct {
	Requests []models.FriendRequest `json:"requests"`
}

// List returns accepted friends.
func (s *FriendService) List(ctx context.Context) ([]models.Friend, error) {
	data, err := call[friendList](ctx, s.api, "friends.all", apiclient.Request{
		Method: http.MethodGet,
		Path:   "/friends/all",
		Auth:   true,
	})
	return data.Friends, err
}

// Requests returns pending incoming friend requests as the server reports them.
func (s *FriendService) Requests(ctx context.Context) ([]models.FriendRequest, error) {
	data, err := call[requestList](ctx, s.api, "friends.requests", apiclient.Request{
		Method: http.MethodGet,
		Path:   "/friends/requests",
		Auth:   true,
	})
	return data.Requests, err
}

// Send invites the user with the given email.
func (s *FriendService) Send(ctx context.Context, email string) error {
	if err := authorized(ctx, s.tokens); err != nil {
		return err
	}
	email = normalizeEmail(email)
	if email == "" {
		return Failed("Enter an email address.")
	}
	return s.post(ctx, "friends.send", "/friends/send", map[string]string{"email": email})
}

// Accept accepts an incoming request.
func (s *FriendService) Accept(ctx context.Context, requestID string) error {
	return s.post(ctx, "friends.accept", "/friends/accept", map[string]string{"requestId": requestID})
}

// Reject declines an incoming request.
func (s *FriendService) Reject(ctx context.Context, requestID string) error {
	return s.post(ctx, "friends.reject", "/friends/reject", map[string]string{"requestId": requestID})
}

// Remove deletes an accepted friend.
func (s *FriendService) Remove(ctx context.Context, friendID string) error {
	return s.post(ctx, "friends.remove", "/friends/remove", map[string]string{"friendId": friendID})
}

// Edit renames a friend as shown to the current user.
func (s *FriendService) Edit(ctx context.Context, friendID, firstName, lastName string) error {
	if err := authorized(ctx, s.tokens); err != nil {
		return err
	}
	firstName, lastName = strings.TrimSpace(firstName), strings.TrimSpace(lastName)
	if firstName == "" && lastName == "" {
		return Failed("Enter a name.")
	}
	return s.post(ctx, "friends.edit", "/friends/edit", map[string]string{
		"friendId":  friendID,
		"firstName": firstName,
		"lastName":  lastName,
	})
}

func (s *FriendService) post(ctx context.Context, op, path string, body any) error {
	_, err := call[struct{}](ctx, s.api, op, apiclient.Request{
		Method: http.MethodPost,
		Path:   path,
		Body:   body,
		Auth:   true,
	})
	return err
}
