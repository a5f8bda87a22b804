package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/eyelink/client/internal/models"
)

// ErrNotJWT is returned by ParseClaims for opaque bearer tokens.
var ErrNotJWT = errors.New("token is not a jwt")

// Session is the process-wide authentication state: one token plus the role chosen at login.
type Session struct {
	Token string
	Role  models.Role
}

// Authenticated reports whether a token is present.
func (s Session) Authenticated() bool {
	return s.Token != ""
}

// LoadSession reads both halves of the session. A missing token yields an empty session and no
// error; a missing role leaves Role empty.
func LoadSession(ctx context.Context, tokens TokenStore, roles RoleStore) (Session, error) {
	var session Session

	token, err := tokens.Token(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		return session, nil
	case err != nil:
		return session, fmt.Errorf("load token: %w", err)
	}
	session.Token = token

	role, err := roles.Role(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return session, fmt.Errorf("load role: %w", err)
	}
	session.Role = role
	return session, nil
}

// SaveSession writes token and role. The role is optional.
func SaveSession(ctx context.Context, tokens TokenStore, roles RoleStore, session Session) error {
	if err := tokens.SetToken(ctx, session.Token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	if session.Role == "" {
		return nil
	}
	if err := roles.SetRole(ctx, session.Role); err != nil {
		return fmt.Errorf("store role: %w", err)
	}
	return nil
}

// ClearSession removes token and role.
func ClearSession(ctx context.Context, tokens TokenStore, roles RoleStore) error {
	return errors.Join(tokens.DeleteToken(ctx), roles.ClearRole(ctx))
}

// Claims is the subset of bearer token claims the client inspects.
type Claims struct {
	Role models.Role `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Expired reports whether the token carries an expiry that has passed.
func (c Claims) Expired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Before(c.ExpiresAt.Time)
}

// ParseClaims decodes a JWT bearer token without verifying its signature. The client never holds
// the signing key; the claims are used for display and early expiry detection only.
func ParseClaims(token string) (Claims, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrNotJWT, err)
	}
	return claims, nil
}
