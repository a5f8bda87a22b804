package apitest

import (
	"net/http"
	"sort"

	"github.com/eyelink/client/internal/models"
)

func (s *Server) createMeeting(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	me := currentUser(r)

	var body struct {
		Type     models.MeetingType `json:"type"`
		HelperID *string            `json:"helperId"`
	}
	if err := decode(r, &body); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.mu.Lock()
	var helper string
	switch body.Type {
	case models.MeetingGlobal:
	case models.MeetingSpecific:
		if body.HelperID == nil || s.accounts[*body.HelperID] == nil {
			s.mu.Unlock()
			respondFailure(ctx, w, "Helper not found")
			return
		}
		helper = *body.HelperID
	default:
		s.mu.Unlock()
		respondFailure(ctx, w, "Unknown meeting type")
		return
	}
	m := s.addMeetingLocked(me, body.Type, helper)
	s.mu.Unlock()

	s.respondMeetingToken(w, r, *m, me)
}

func (s *Server) getMeeting(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	m, ok := s.meetings[r.URL.Query().Get("id")]
	var out models.Meeting
	if ok {
		out = *m
	}
	s.mu.Unlock()

	if !ok {
		respondFailure(r.Context(), w, "Meeting not found")
		return
	}
	respondOK(r.Context(), w, "", out)
}

func (s *Server) endMeeting(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	me := currentUser(r)

	var body struct {
		MeetingID string `json:"meetingId"`
	}
	if err := decode(r, &body); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var target *models.Meeting
	if body.MeetingID != "" {
		target = s.meetings[body.MeetingID]
	} else {
		target = s.activeMeetingLocked(me)
	}
	if target == nil || !participant(target, me) {
		respondFailure(ctx, w, "No active meeting")
		return
	}
	if target.Status.Terminal() {
		respondFailure(ctx, w, "Meeting already ended")
		return
	}

	now := s.now()
	target.Status = models.MeetingEnded
	target.EndedAt = &now
	respondOK(ctx, w, "Meeting ended", nil)
}

func (s *Server) pendingGlobal(w http.ResponseWriter, r *http.Request) {
	me := currentUser(r)
	s.respondPending(w, r, func(m *models.Meeting) bool {
		return m.Type == models.MeetingGlobal && m.SeekerID != me
	})
}

func (s *Server) pendingSpecific(w http.ResponseWriter, r *http.Request) {
	me := currentUser(r)
	s.respondPending(w, r, func(m *models.Meeting) bool {
		return m.Type == models.MeetingSpecific && m.HelperID != nil && *m.HelperID == me
	})
}

func (s *Server) respondPending(w http.ResponseWriter, r *http.Request, match func(*models.Meeting) bool) {
	s.mu.Lock()
	out := make([]models.PendingMeeting, 0)
	for _, m := range s.pendingLocked(match) {
		name := ""
		if seeker := s.accounts[m.SeekerID]; seeker != nil {
			name = seeker.user.DisplayName()
		}
		out = append(out, models.PendingMeeting{
			ID:         m.ID,
			SeekerID:   m.SeekerID,
			SeekerName: name,
			Type:       m.Type,
			CreatedAt:  m.CreatedAt,
		})
	}
	s.mu.Unlock()

	respondOK(r.Context(), w, "", map[string]any{"meetings": out})
}

func (s *Server) acceptFirst(w http.ResponseWriter, r *http.Request) {
	me := currentUser(r)

	s.mu.Lock()
	pending := s.pendingLocked(func(m *models.Meeting) bool {
		return m.Type == models.MeetingGlobal && m.SeekerID != me
	})
	if len(pending) == 0 {
		s.mu.Unlock()
		respondFailure(r.Context(), w, "No pending meetings")
		return
	}
	m := s.claimLocked(pending[0], me)
	s.mu.Unlock()

	s.respondMeetingToken(w, r, m, me)
}

func (s *Server) acceptSpecific(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	me := currentUser(r)

	var body struct {
		MeetingID string `json:"meetingId"`
	}
	if err := decode(r, &body); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.mu.Lock()
	m, ok := s.meetings[body.MeetingID]
	if !ok || m.Type != models.MeetingSpecific || m.HelperID == nil || *m.HelperID != me {
		s.mu.Unlock()
		respondFailure(ctx, w, "Meeting not found")
		return
	}
	if m.Status != models.MeetingPending {
		s.mu.Unlock()
		respondFailure(ctx, w, "Meeting is no longer pending")
		return
	}
	claimed := s.claimLocked(m, me)
	s.mu.Unlock()

	s.respondMeetingToken(w, r, claimed, me)
}

func (s *Server) rejectMeeting(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	me := currentUser(r)

	var body struct {
		MeetingID string `json:"meetingId"`
	}
	if err := decode(r, &body); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[body.MeetingID]
	if !ok || m.HelperID == nil || *m.HelperID != me || m.Status != models.MeetingPending {
		respondFailure(ctx, w, "Meeting not found")
		return
	}
	m.Status = models.MeetingRejected
	respondOK(ctx, w, "Meeting rejected", nil)
}

func (s *Server) respondMeetingToken(w http.ResponseWriter, r *http.Request, m models.Meeting, identity string) {
	token, err := s.issue(identity, "")
	if err != nil {
		respondJSON(r.Context(), w, http.StatusInternalServerError, map[string]string{"error": "failed to issue room token"})
		return
	}
	respondOK(r.Context(), w, "", models.MeetingToken{
		AccessToken: token,
		RoomName:    "meeting-" + m.ID,
		Identity:    identity,
		MeetingID:   m.ID,
	})
}

// pendingLocked returns matching pending meetings, oldest first.
func (s *Server) pendingLocked(match func(*models.Meeting) bool) []*models.Meeting {
	var out []*models.Meeting
	for _, m := range s.meetings {
		if m.Status == models.MeetingPending && match(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Server) claimLocked(m *models.Meeting, helper string) models.Meeting {
	now := s.now()
	m.HelperID = &helper
	m.Status = models.MeetingAccepted
	m.AcceptedAt = &now
	return *m
}

func (s *Server) activeMeetingLocked(userID string) *models.Meeting {
	var latest *models.Meeting
	for _, m := range s.meetings {
		if m.Status.Terminal() || !participant(m, userID) {
			continue
		}
		if latest == nil || m.CreatedAt.After(latest.CreatedAt) {
			latest = m
		}
	}
	return latest
}

func participant(m *models.Meeting, userID string) bool {
	return m.SeekerID == userID || (m.HelperID != nil && *m.HelperID == userID)
}
