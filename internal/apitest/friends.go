package apitest

import (
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/eyelink/client/internal/models"
)

func (s *Server) listFriends(w http.ResponseWriter, r *http.Request) {
	me := currentUser(r)

	s.mu.Lock()
	friends := make([]models.Friend, 0, len(s.nicknames[me]))
	for id, nick := range s.nicknames[me] {
		acct, ok := s.accounts[id]
		if !ok {
			continue
		}
		f := models.Friend{
			ID:        id,
			FirstName: acct.user.FirstName,
			LastName:  acct.user.LastName,
			Email:     acct.user.Email,
			IsAdded:   true,
		}
		if nick[0] != "" || nick[1] != "" {
			f.FirstName, f.LastName = nick[0], nick[1]
		}
		friends = append(friends, f)
	}
	s.mu.Unlock()

	sort.Slice(friends, func(i, j int) bool { return friends[i].Email < friends[j].Email })
	respondOK(r.Context(), w, "", map[string]any{"friends": friends})
}

// listRequests reports every incoming request with its stored status, including ones already
// answered.
func (s *Server) listRequests(w http.ResponseWriter, r *http.Request) {
	me := currentUser(r)

	s.mu.Lock()
	out := make([]models.FriendRequest, 0)
	for _, req := range s.requests {
		if req.to != me {
			continue
		}
		sender := s.accounts[req.from]
		if sender == nil {
			continue
		}
		out = append(out, models.FriendRequest{
			ID:        req.id,
			FirstName: sender.user.FirstName,
			LastName:  sender.user.LastName,
			Email:     sender.user.Email,
			Status:    req.status,
		})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	respondOK(r.Context(), w, "", map[string]any{"requests": out})
}

func (s *Server) sendRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	me := currentUser(r)

	var req struct {
		Email string `json:"email"`
	}
	if err := decode(r, &req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.byEmail[strings.ToLower(req.Email)]
	switch {
	case !ok:
		respondFailure(ctx, w, "No user with that email")
		return
	case target == me:
		respondFailure(ctx, w, "You cannot add yourself")
		return
	}
	if _, linked := s.nicknames[me][target]; linked {
		respondFailure(ctx, w, "Already friends")
		return
	}
	for _, existing := range s.requests {
		if existing.from == me && existing.to == target && existing.status == models.FriendRequestPending {
			respondFailure(ctx, w, "Request already sent")
			return
		}
	}

	id := uuid.NewString()
	s.requests[id] = &friendRequest{id: id, from: me, to: target, status: models.FriendRequestPending}
	respondOK(ctx, w, "Friend request sent", nil)
}

func (s *Server) acceptRequest(w http.ResponseWriter, r *http.Request) {
	s.answerRequest(w, r, models.FriendRequestAccepted)
}

func (s *Server) rejectRequest(w http.ResponseWriter, r *http.Request) {
	s.answerRequest(w, r, models.FriendRequestDeclined)
}

func (s *Server) answerRequest(w http.ResponseWriter, r *http.Request, status models.FriendRequestStatus) {
	ctx := r.Context()
	me := currentUser(r)

	var body struct {
		RequestID string `json:"requestId"`
	}
	if err := decode(r, &body); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[body.RequestID]
	if !ok || req.to != me {
		respondFailure(ctx, w, "Friend request not found")
		return
	}
	if req.status != models.FriendRequestPending {
		respondFailure(ctx, w, "Friend request already answered")
		return
	}
	req.status = status
	if status == models.FriendRequestAccepted {
		s.linkLocked(req.from, req.to)
	}
	respondOK(ctx, w, "Friend request updated", nil)
}

func (s *Server) removeFriend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	me := currentUser(r)

	var body struct {
		FriendID string `json:"friendId"`
	}
	if err := decode(r, &body); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nicknames[me][body.FriendID]; !ok {
		respondFailure(ctx, w, "Friend not found")
		return
	}
	delete(s.nicknames[me], body.FriendID)
	delete(s.nicknames[body.FriendID], me)
	respondOK(ctx, w, "Friend removed", nil)
}

func (s *Server) editFriend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	me := currentUser(r)

	var body struct {
		FriendID  string `json:"friendId"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	}
	if err := decode(r, &body); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nicknames[me][body.FriendID]; !ok {
		respondFailure(ctx, w, "Friend not found")
		return
	}
	s.nicknames[me][body.FriendID] = [2]string{body.FirstName, body.LastName}
	respondOK(ctx, w, "Friend updated", nil)
}
