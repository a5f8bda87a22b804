package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/eyelink/client/internal/apiclient"
	"github.com/eyelink/client/internal/credentials"
	"github.com/eyelink/client/internal/models"
)

// AuthService covers sign-up, login and password recovery. None of its endpoints need a token;
// successful sign-in flows write the session.
type AuthService struct {
	api    Doer
	tokens credentials.TokenStore
	roles  credentials.RoleStore
}

// SignUpInput is the account creation form.
type SignUpInput struct {
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
	Email     string      `json:"email"`
	Password  string      `json:"password"`
	Role      models.Role `json:"role"`
}

type tokenData struct {
	Token string      `json:"token"`
	Role  models.Role `json:"role"`
}

type loginBody struct {
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     models.Role `json:"role,omitempty"`
}

// SignUp creates an account and stores the returned token.
func (s *AuthService) SignUp(ctx context.Context, in SignUpInput) (credentials.Session, error) {
	in.Email = normalizeEmail(in.Email)
	if in.Email == "" || in.Password == "" {
		return credentials.Session{}, Failed("Email and password are required.")
	}
	if !in.Role.Valid() {
		return credentials.Session{}, Failed("Choose whether you are a seeker or a helper.")
	}

	data, err := call[tokenData](ctx, s.api, "auth.signup", apiclient.Request{
		Method: http.MethodPost,
		Path:   "/auth/signup",
		Body:   in,
	})
	if err != nil {
		return credentials.Session{}, err
	}
	return s.establish(ctx, data, in.Role)
}

// Login exchanges credentials for a token. role is the side chosen before logging in.
func (s *AuthService) Login(ctx context.Context, email, password string, role models.Role) (credentials.Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return credentials.Session{}, Failed("Email and password are required.")
	}

	data, err := call[tokenData](ctx, s.api, "auth.login", apiclient.Request{
		Method: http.MethodPost,
		Path:   "/auth/login",
		Body:   loginBody{Email: email, Password: password, Role: role},
	})
	if err != nil {
		return credentials.Session{}, err
	}
	return s.establish(ctx, data, role)
}

// GoogleLogin exchanges a Google ID token for an API token.
func (s *AuthService) GoogleLogin(ctx context.Context, idToken string, role models.Role) (credentials.Session, error) {
	if strings.TrimSpace(idToken) == "" {
		return credentials.Session{}, Failed("Google sign-in did not return a token.")
	}

	data, err := call[tokenData](ctx, s.api, "auth.google", apiclient.Request{
		Method: http.MethodPost,
		Path:   "/auth/google",
		Body:   map[string]any{"idToken": idToken, "role": role},
	})
	if err != nil {
		return credentials.Session{}, err
	}
	return s.establish(ctx, data, role)
}

// SendCode starts password recovery by mailing a one-time code.
func (s *AuthService) SendCode(ctx context.Context, email string) error {
	_, err := call[struct{}](ctx, s.api, "auth.send_code", apiclient.Request{
		Method: http.MethodPost,
		Path:   "/auth/send-code",
		Body:   map[string]string{"email": normalizeEmail(email)},
	})
	return err
}

// VerifyCode checks the one-time code.
func (s *AuthService) VerifyCode(ctx context.Context, email, code string) error {
	_, err := call[struct{}](ctx, s.api, "auth.verify_code", apiclient.Request{
		Method: http.MethodPost,
		Path:   "/auth/verify-code",
		Body:   map[string]string{"email": normalizeEmail(email), "code": strings.TrimSpace(code)},
	})
	return err
}

// ResetPassword sets a new password after a verified code.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, password string) error {
	if password == "" {
		return Failed("A new password is required.")
	}
	_, err := call[struct{}](ctx, s.api, "auth.reset_password", apiclient.Request{
		Method: http.MethodPost,
		Path:   "/auth/reset-password",
		Body: map[string]string{
			"email":       normalizeEmail(email),
			"code":        strings.TrimSpace(code),
			"newPassword": password,
		},
	})
	return err
}

// Logout forgets the local session. The API has no logout endpoint.
func (s *AuthService) Logout(ctx context.Context) error {
	return credentials.ClearSession(ctx, s.tokens, s.roles)
}

func (s *AuthService) establish(ctx context.Context, data tokenData, role models.Role) (credentials.Session, error) {
	if data.Token == "" {
		return credentials.Session{}, Failed("The server did not return a session token.")
	}
	if !role.Valid() {
		role = data.Role
	}

	session := credentials.Session{Token: data.Token, Role: role}
	if err := credentials.SaveSession(ctx, s.tokens, s.roles, session); err != nil {
		return credentials.Session{}, &Error{Message: "Could not save your session.", Err: fmt.Errorf("save session: %w", err)}
	}
	return session, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
