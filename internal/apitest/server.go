// Package apitest runs an in-memory implementation of the assistance REST API for tests.
//
// The fake keeps users, friendships and meetings in maps guarded by one mutex, signs bearer tokens
// with HS256 and answers in the same {status, message, data} envelope as the real service.
package apitest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/eyelink/client/internal/logging"
	"github.com/eyelink/client/internal/models"
)

type ctxKey struct{}

type account struct {
	user         models.User
	role         models.Role
	passwordHash []byte
}

type friendRequest struct {
	id     string
	from   string
	to     string
	status models.FriendRequestStatus
}

type injectedFailure struct {
	status  int
	message string
}

// Server is a running fake API. All exported methods are safe for concurrent use.
type Server struct {
	*httptest.Server

	secret []byte
	now    func() time.Time

	mu        sync.Mutex
	accounts  map[string]*account
	byEmail   map[string]string
	nicknames map[string]map[string][2]string
	requests  map[string]*friendRequest
	meetings  map[string]*models.Meeting
	codes     map[string]string
	verified  map[string]bool
	calls     map[string]int
	failures  map[string][]injectedFailure
	gates     map[string]chan struct{}
	seq       int

	logger        *slog.Logger
	lastRequestID string
}

// NewServer starts a fake API and stops it when the test finishes.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		secret:    []byte(uuid.NewString()),
		now:       time.Now,
		accounts:  make(map[string]*account),
		byEmail:   make(map[string]string),
		nicknames: make(map[string]map[string][2]string),
		requests:  make(map[string]*friendRequest),
		meetings:  make(map[string]*models.Meeting),
		codes:     make(map[string]string),
		verified:  make(map[string]bool),
		calls:     make(map[string]int),
		failures:  make(map[string][]injectedFailure),
		gates:     make(map[string]chan struct{}),
		logger:    slog.New(slog.NewTextHandler(testLogWriter{t: t}, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger(s.logger))
	r.Use(s.track)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", s.signUp)
		r.Post("/login", s.login)
		r.Post("/google", s.googleLogin)
		r.Post("/send-code", s.sendCode)
		r.Post("/verify-code", s.verifyCode)
		r.Post("/reset-password", s.resetPassword)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/users/me", s.me)
		r.Put("/users/me", s.updateMe)
		r.Delete("/users/me", s.deleteMe)

		r.Get("/friends/all", s.listFriends)
		r.Get("/friends/requests", s.listRequests)
		r.Post("/friends/send", s.sendRequest)
		r.Post("/friends/accept", s.acceptRequest)
		r.Post("/friends/reject", s.rejectRequest)
		r.Post("/friends/remove", s.removeFriend)
		r.Post("/friends/edit", s.editFriend)

		r.Post("/meetings", s.createMeeting)
		r.Get("/meetings", s.getMeeting)
		r.Post("/meetings/end", s.endMeeting)
		r.Get("/meetings/global", s.pendingGlobal)
		r.Post("/meetings/accept-first", s.acceptFirst)
		r.Get("/meetings/pending-specific", s.pendingSpecific)
		r.Post("/meetings/accept-specific", s.acceptSpecific)
		r.Post("/meetings/reject", s.rejectMeeting)
	})
	return r
}

// track counts calls, applies injected failures and holds gated routes.
func (s *Server) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path

		s.mu.Lock()
		s.calls[route]++
		gate := s.gates[route]
		var failure *injectedFailure
		if queued := s.failures[route]; len(queued) > 0 {
			failure = &queued[0]
			s.failures[route] = queued[1:]
		}
		s.mu.Unlock()

		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}

		if failure != nil {
			if failure.status == http.StatusOK {
				respondFailure(r.Context(), w, failure.message)
			} else {
				respondJSON(r.Context(), w, failure.status, map[string]string{"message": failure.message})
			}
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			respondJSON(r.Context(), w, http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
			return
		}

		claims := &jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return s.secret, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			respondJSON(r.Context(), w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}

		s.mu.Lock()
		_, exists := s.accounts[claims.Subject]
		s.mu.Unlock()
		if !exists {
			respondJSON(r.Context(), w, http.StatusUnauthorized, map[string]string{"error": "account not found"})
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, claims.Subject)))
	})
}

func currentUser(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

// AddUser registers an account and returns it.
func (s *Server) AddUser(firstName, lastName, email, password string, role models.Role) models.User {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(fmt.Sprintf("apitest: hash password: %v", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addAccountLocked(firstName, lastName, email, hash, role)
}

func (s *Server) addAccountLocked(firstName, lastName, email string, hash []byte, role models.Role) models.User {
	acct := &account{
		user: models.User{
			ID:        uuid.NewString(),
			FirstName: firstName,
			LastName:  lastName,
			Email:     strings.ToLower(strings.TrimSpace(email)),
		},
		role:         role,
		passwordHash: hash,
	}
	s.accounts[acct.user.ID] = acct
	s.byEmail[acct.user.Email] = acct.user.ID
	return acct.user
}

// TokenFor issues a bearer token for userID.
func (s *Server) TokenFor(userID string) string {
	token, err := s.issue(userID, models.Role(""))
	if err != nil {
		panic(fmt.Sprintf("apitest: issue token: %v", err))
	}
	return token
}

func (s *Server) issue(userID string, role models.Role) (string, error) {
	now := s.now()
	claims := struct {
		Role models.Role `json:"role,omitempty"`
		jwt.RegisteredClaims
	}{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// AddFriendRequest records a pending request from one user to another and returns its id.
func (s *Server) AddFriendRequest(fromID, toID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	req := &friendRequest{id: uuid.NewString(), from: fromID, to: toID, status: models.FriendRequestPending}
	s.requests[req.id] = req
	return req.id
}

// AddFriendship links two users directly.
func (s *Server) AddFriendship(a, b string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.linkLocked(a, b)
}

func (s *Server) linkLocked(a, b string) {
	if s.nicknames[a] == nil {
		s.nicknames[a] = make(map[string][2]string)
	}
	if s.nicknames[b] == nil {
		s.nicknames[b] = make(map[string][2]string)
	}
	s.nicknames[a][b] = [2]string{}
	s.nicknames[b][a] = [2]string{}
}

// AddMeeting creates a pending meeting for seekerID and returns its id. helperID is only used for
// specific meetings.
func (s *Server) AddMeeting(seekerID string, kind models.MeetingType, helperID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addMeetingLocked(seekerID, kind, helperID).ID
}

func (s *Server) addMeetingLocked(seekerID string, kind models.MeetingType, helperID string) *models.Meeting {
	s.seq++
	m := &models.Meeting{
		ID:        uuid.NewString(),
		SeekerID:  seekerID,
		Type:      kind,
		Status:    models.MeetingPending,
		CreatedAt: s.now().Add(time.Duration(s.seq) * time.Millisecond),
	}
	if kind == models.MeetingSpecific && helperID != "" {
		m.HelperID = &helperID
	}
	s.meetings[m.ID] = m
	return m
}

// Meeting returns a copy of the stored meeting.
func (s *Server) Meeting(id string) (models.Meeting, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[id]
	if !ok {
		return models.Meeting{}, false
	}
	return *m, true
}

// Meetings returns copies of every stored meeting ordered by creation.
func (s *Server) Meetings() []models.Meeting {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Meeting, 0, len(s.meetings))
	for _, m := range s.meetings {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Friends lists the user ids userID is linked with.
func (s *Server) Friends(userID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.nicknames[userID]))
	for id := range s.nicknames[userID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Code returns the last recovery code mailed to email.
func (s *Server) Code(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[strings.ToLower(email)]
}

// Calls reports how many requests hit route, written as "METHOD /path".
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// Fail makes the next request to route fail. A 200 status produces an application error
// envelope; any other status produces a bare {"message"} body.
func (s *Server) Fail(route string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], injectedFailure{status: status, message: message})
}

// Hold blocks requests to route until the returned release func is called.
func (s *Server) Hold(route string) (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gates[route] = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.gates, route)
			s.mu.Unlock()
			close(gate)
		})
	}
}

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func respondOK(ctx context.Context, w http.ResponseWriter, message string, data any) {
	respondJSON(ctx, w, http.StatusOK, envelope{Status: "success", Message: message, Data: data})
}

// respondFailure reports an application error the way the service does: HTTP 200 with a message.
func respondFailure(ctx context.Context, w http.ResponseWriter, message string) {
	respondJSON(ctx, w, http.StatusOK, envelope{Status: "error", Message: message})
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	if status >= http.StatusBadRequest {
		logging.FromContext(ctx).Debug("request returned client error", "status", status, "response", payload)
	}
}

var errBadBody = errors.New("invalid request body")

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}
