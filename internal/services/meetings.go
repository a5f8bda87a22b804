package services

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/eyelink/client/internal/apiclient"
	"github.com/eyelink/client/internal/credentials"
	"github.com/eyelink/client/internal/models"
)

// MeetingService wraps the /meetings endpoints. It only requests transitions; the status it
// reports is always the server's.
type MeetingService struct {
	api    Doer
	tokens credentials.TokenStore
}

type createMeetingBody struct {
	Type     models.MeetingType `json:"type"`
	HelperID *string            `json:"helperId"`
}

type meetingList struct {
	Meetings []models.PendingMeeting `json:"meetings"`
}

// Create opens a meeting request and returns the room credentials in the same round trip.
// helperID must be set for specific meetings and is ignored for global ones.
func (s *MeetingService) Create(ctx context.Context, kind models.MeetingType, helperID string) (models.MeetingToken, error) {
	if err := authorized(ctx, s.tokens); err != nil {
		return models.MeetingToken{}, err
	}
	body := createMeetingBody{Type: kind}
	switch kind {
	case models.MeetingGlobal:
	case models.MeetingSpecific:
		helperID = strings.TrimSpace(helperID)
		if helperID == "" {
			return models.MeetingToken{}, Failed("Choose who to call.")
		}
		body.HelperID = &helperID
	default:
		return models.MeetingToken{}, Failed("Unknown meeting type.")
	}

	return s.token(ctx, "meetings.create", "/meetings", body)
}

// End ends a meeting. An empty meetingID ends the current user's active meeting.
func (s *MeetingService) End(ctx context.Context, meetingID string) error {
	body := map[string]string{}
	if meetingID != "" {
		body["meetingId"] = meetingID
	}
	_, err := call[struct{}](ctx, s.api, "meetings.end", apiclient.Request{
		Method: http.MethodPost,
		Path:   "/meetings/end",
		Body:   body,
		Auth:   true,
	})
	return err
}

// Get fetches meeting details.
func (s *MeetingService) Get(ctx context.Context, meetingID string) (models.Meeting, error) {
	if err := authorized(ctx, s.tokens); err != nil {
		return models.Meeting{}, err
	}
	if meetingID == "" {
		return models.Meeting{}, Failed("A meeting id is required.")
	}
	return call[models.Meeting](ctx, s.api, "meetings.get", apiclient.Request{
		Method: http.MethodGet,
		Path:   "/meetings",
		Query:  url.Values{"id": {meetingID}},
		Auth:   true,
	})
}

// PendingGlobal lists unclaimed global meetings.
func (s *MeetingService) PendingGlobal(ctx context.Context) ([]models.PendingMeeting, error) {
	data, err := call[meetingList](ctx, s.api, "meetings.global", apiclient.Request{
		Method: http.MethodGet,
		Path:   "/meetings/global",
		Auth:   true,
	})
	return data.Meetings, err
}

// AcceptFirst claims the oldest pending global meeting.
func (s *MeetingService) AcceptFirst(ctx context.Context) (models.MeetingToken, error) {
	return s.token(ctx, "meetings.accept_first", "/meetings/accept-first", struct{}{})
}

// PendingSpecific lists meetings directed at the current helper.
func (s *MeetingService) PendingSpecific(ctx context.Context) ([]models.PendingMeeting, error) {
	data, err := call[meetingList](ctx, s.api, "meetings.pending_specific", apiclient.Request{
		Method: http.MethodGet,
		Path:   "/meetings/pending-specific",
		Auth:   true,
	})
	return data.Meetings, err
}

// AcceptSpecific accepts one directed meeting.
func (s *MeetingService) AcceptSpecific(ctx context.Context, meetingID string) (models.MeetingToken, error) {
	return s.token(ctx, "meetings.accept_specific", "/meetings/accept-specific", map[string]string{"meetingId": meetingID})
}

// Reject declines one directed meeting.
func (s *MeetingService) Reject(ctx context.Context, meetingID string) error {
	_, err := call[struct{}](ctx, s.api, "meetings.reject", apiclient.Request{
		Method: http.MethodPost,
		Path:   "/meetings/reject",
		Body:   map[string]string{"meetingId": meetingID},
		Auth:   true,
	})
	return err
}

func (s *MeetingService) token(ctx context.Context, op, path string, body any) (models.MeetingToken, error) {
	tok, err := call[models.MeetingToken](ctx, s.api, op, apiclient.Request{
		Method: http.MethodPost,
		Path:   path,
		Body:   body,
		Auth:   true,
	})
	if err != nil {
		return models.MeetingToken{}, err
	}
	if tok.AccessToken == "" || tok.RoomName == "" {
		return models.MeetingToken{}, Failed("The server did not return call details.")
	}
	return tok, nil
}
