package services

import (
	"context"
	"net/http"

	"github.com/eyelink/client/internal/apiclient"
	"github.com/eyelink/client/internal/credentials"
	"github.com/eyelink/client/internal/models"
)

// UserService wraps /users/me.
type UserService struct {
	api    Doer
	tokens credentials.TokenStore
	roles  credentials.RoleStore
}

// ProfileUpdate carries the editable profile fields. Empty fields are left unchanged.
type ProfileUpdate struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
}

// Me fetches the signed-in user's profile.
func (s *UserService) Me(ctx context.Context) (models.User, error) {
	return call[models.User](ctx, s.api, "users.me", apiclient.Request{
		Method: http.MethodGet,
		Path:   "/users/me",
		Auth:   true,
	})
}

// UpdateMe edits the profile and returns the server's copy.
func (s *UserService) UpdateMe(ctx context.Context, update ProfileUpdate) (models.User, error) {
	if err := authorized(ctx, s.tokens); err != nil {
		return models.User{}, err
	}
	if update == (ProfileUpdate{}) {
		return models.User{}, Failed("Nothing to update.")
	}
	update.Email = normalizeEmail(update.Email)
	return call[models.User](ctx, s.api, "users.update", apiclient.Request{
		Method: http.MethodPut,
		Path:   "/users/me",
		Body:   update,
		Auth:   true,
	})
}

// DeleteMe deletes the account and, on success, the local session.
func (s *UserService) DeleteMe(ctx context.Context) error {
	if _, err := call[struct{}](ctx, s.api, "users.delete", apiclient.Request{
		Method: http.MethodDelete,
		Path:   "/users/me",
		Auth:   true,
	}); err != nil {
		return err
	}
	return credentials.ClearSession(ctx, s.tokens, s.roles)
}
