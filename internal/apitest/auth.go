package apitest

import (
	"fmt"
	"net/http"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/eyelink/client/internal/models"
)

type signUpRequest struct {
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
	Email     string      `json:"email"`
	Password  string      `json:"password"`
	Role      models.Role `json:"role"`
}

type loginRequest struct {
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
}

type tokenResponse struct {
	Token string      `json:"token"`
	Role  models.Role `json:"role,omitempty"`
	User  models.User `json:"user"`
}

func (s *Server) signUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req signUpRequest
	if err := decode(r, &req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(req.Email); err != nil {
		respondFailure(ctx, w, "Invalid email address")
		return
	}
	if len(req.Password) < 8 {
		respondFailure(ctx, w, "Password must be at least 8 characters")
		return
	}
	if !req.Role.Valid() {
		respondFailure(ctx, w, "Role must be seeker or helper")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to secure password"})
		return
	}

	s.mu.Lock()
	if _, exists := s.byEmail[req.Email]; exists {
		s.mu.Unlock()
		respondFailure(ctx, w, "Account already exists")
		return
	}
	user := s.addAccountLocked(req.FirstName, req.LastName, req.Email, hash, req.Role)
	s.mu.Unlock()

	s.respondToken(w, r, user, req.Role)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := decode(r, &req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.mu.Lock()
	acct := s.accounts[s.byEmail[strings.ToLower(strings.TrimSpace(req.Email))]]
	s.mu.Unlock()

	if acct == nil || bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(req.Password)) != nil {
		respondFailure(ctx, w, "Invalid email or password")
		return
	}

	role := req.Role
	if !role.Valid() {
		role = acct.role
	}
	s.respondToken(w, r, acct.user, role)
}

// googleLogin accepts "google:<email>" as a stand-in for a verified Google ID token.
func (s *Server) googleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		IDToken string      `json:"idToken"`
		Role    models.Role `json:"role"`
	}
	if err := decode(r, &req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	email, ok := strings.CutPrefix(req.IDToken, "google:")
	if !ok || email == "" {
		respondFailure(ctx, w, "Invalid Google token")
		return
	}
	email = strings.ToLower(email)

	s.mu.Lock()
	acct := s.accounts[s.byEmail[email]]
	var user models.User
	if acct == nil {
		user = s.addAccountLocked("", "", email, nil, req.Role)
	} else {
		user = acct.user
	}
	s.mu.Unlock()

	s.respondToken(w, r, user, req.Role)
}

func (s *Server) respondToken(w http.ResponseWriter, r *http.Request, user models.User, role models.Role) {
	token, err := s.issue(user.ID, role)
	if err != nil {
		respondJSON(r.Context(), w, http.StatusInternalServerError, map[string]string{"error": "failed to create session"})
		return
	}
	respondOK(r.Context(), w, "", tokenResponse{Token: token, Role: role, User: user})
}

func (s *Server) sendCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Email string `json:"email"`
	}
	if err := decode(r, &req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[req.Email]; !ok {
		respondFailure(ctx, w, "No account uses that email")
		return
	}
	s.seq++
	s.codes[req.Email] = fmt.Sprintf("%06d", 100000+s.seq)
	delete(s.verified, req.Email)
	respondOK(ctx, w, "Code sent", nil)
}

func (s *Server) verifyCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := decode(r, &req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if code, ok := s.codes[req.Email]; !ok || code != req.Code {
		respondFailure(ctx, w, "Invalid code")
		return
	}
	s.verified[req.Email] = true
	respondOK(ctx, w, "Code verified", nil)
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Email       string `json:"email"`
		Code        string `json:"code"`
		NewPassword string `json:"newPassword"`
	}
	if err := decode(r, &req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if len(req.NewPassword) < 8 {
		respondFailure(ctx, w, "Password must be at least 8 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.MinCost)
	if err != nil {
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to secure password"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.verified[req.Email] || s.codes[req.Email] != req.Code {
		respondFailure(ctx, w, "Verify your code first")
		return
	}
	s.accounts[s.byEmail[req.Email]].passwordHash = hash
	delete(s.codes, req.Email)
	delete(s.verified, req.Email)
	respondOK(ctx, w, "Password updated", nil)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	user := s.accounts[currentUser(r)].user
	s.mu.Unlock()
	respondOK(r.Context(), w, "", user)
}

func (s *Server) updateMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
	}
	if err := decode(r, &req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.accounts[currentUser(r)]
	if req.Email != "" && req.Email != acct.user.Email {
		if _, taken := s.byEmail[req.Email]; taken {
			respondFailure(ctx, w, "Email already in use")
			return
		}
		delete(s.byEmail, acct.user.Email)
		s.byEmail[req.Email] = acct.user.ID
		acct.user.Email = req.Email
	}
	if req.FirstName != "" {
		acct.user.FirstName = req.FirstName
	}
	if req.LastName != "" {
		acct.user.LastName = req.LastName
	}
	respondOK(ctx, w, "Profile updated", acct.user)
}

func (s *Server) deleteMe(w http.ResponseWriter, r *http.Request) {
	id := currentUser(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.accounts[id]
	delete(s.byEmail, acct.user.Email)
	delete(s.accounts, id)
	for friend := range s.nicknames[id] {
		delete(s.nicknames[friend], id)
	}
	delete(s.nicknames, id)
	respondOK(r.Context(), w, "Account deleted", nil)
}
