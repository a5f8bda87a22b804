package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/eyelink/client/internal/apiclient"
	"github.com/eyelink/client/internal/credentials"
	"github.com/eyelink/client/internal/logging"
)

// ErrUnauthorized signals that no token was stored and the call was not attempted.
var ErrUnauthorized = apiclient.ErrUnauthorized

// Error is the single failure shape presented to callers: a human readable message, optionally
// wrapping the transport error that caused it.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Failed builds an *Error with the given message.
func Failed(message string) error {
	return &Error{Message: message}
}

// Doer executes API requests. *apiclient.Client implements it.
type Doer interface {
	Do(ctx context.Context, req apiclient.Request, out any) error
}

// Services groups the endpoint wrappers sharing one client and one credential store.
type Services struct {
	Auth     *AuthService
	Users    *UserService
	Friends  *FriendService
	Meetings *MeetingService
}

// New wires every service against api. tokens and roles receive session writes from the auth
// flows; api reads the token on every authenticated call.
func New(api Doer, tokens credentials.TokenStore, roles credentials.RoleStore) Services {
	return Services{
		Auth:     &AuthService{api: api, tokens: tokens, roles: roles},
		Users:    &UserService{api: api, tokens: tokens, roles: roles},
		Friends:  &FriendService{api: api, tokens: tokens},
		Meetings: &MeetingService{api: api, tokens: tokens},
	}
}

// envelope is the response wrapper used by every endpoint. Data stays raw so a missing payload
// can be told apart from an empty one.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

// failure returns the application error carried by a 200 response, if any. Without a status
// field, a message that arrives with no data is the server's way of reporting an error.
func (e envelope) failure() error {
	status := strings.ToLower(strings.TrimSpace(e.Status))
	switch {
	case status != "" && status != "success":
		return Failed(firstNonEmpty(e.Message, e.Error, "The request could not be completed."))
	case strings.TrimSpace(e.Error) != "":
		return Failed(e.Error)
	case status == "" && strings.TrimSpace(e.Message) != "" && !e.hasData():
		return Failed(e.Message)
	}
	return nil
}

func (e envelope) hasData() bool {
	data := bytes.TrimSpace(e.Data)
	return len(data) > 0 && !bytes.Equal(data, []byte("null"))
}

func call[T any](ctx context.Context, api Doer, op string, req apiclient.Request) (T, error) {
	ctx, span := logging.StartSpan(ctx, op)

	var (
		env  envelope
		data T
	)
	err := api.Do(ctx, req, &env)
	if err != nil {
		err = normalize(err)
	} else {
		err = env.failure()
	}
	if err == nil && env.hasData() {
		if decodeErr := json.Unmarshal(env.Data, &data); decodeErr != nil {
			err = normalize(fmt.Errorf("%w: %v", apiclient.ErrDecoding, decodeErr))
		}
	}

	span.End(err)
	if err != nil {
		var zero T
		return zero, err
	}
	return data, nil
}

// authorized fails with ErrUnauthorized when no token is stored. Operations that validate input
// locally call it first so a missing session is reported before bad input.
func authorized(ctx context.Context, tokens credentials.TokenStore) error {
	if tokens == nil {
		return nil
	}
	if tok, err := tokens.Token(ctx); err != nil || strings.TrimSpace(tok) == "" {
		return ErrUnauthorized
	}
	return nil
}

func normalize(err error) error {
	if errors.Is(err, apiclient.ErrUnauthorized) {
		return ErrUnauthorized
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return &Error{Message: apiclient.Message(err), Err: err}
}

// Message returns the text to show the user for err.
func Message(err error) string {
	var svcErr *Error
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return "You are not signed in."
	case errors.As(err, &svcErr):
		return svcErr.Message
	default:
		return err.Error()
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
