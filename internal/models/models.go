package models

import "time"

// Role identifies which side of the assistance flow the signed-in user is on.
type Role string

const (
	RoleSeeker Role = "seeker"
	RoleHelper Role = "helper"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleSeeker || r == RoleHelper
}

// User is the profile returned by /users/me.
type User struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// DisplayName joins first and last name, falling back to the email address.
func (u User) DisplayName() string {
	return displayName(u.FirstName, u.LastName, u.Email)
}

// Friend is an accepted contact, mirrored read-only from the server.
type Friend struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	IsAdded   bool   `json:"isAdded"`
}

// DisplayName joins first and last name, falling back to the email address.
func (f Friend) DisplayName() string {
	return displayName(f.FirstName, f.LastName, f.Email)
}

// FriendRequestStatus is the lifecycle state of an incoming friend request.
type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestAccepted FriendRequestStatus = "accepted"
	FriendRequestDeclined FriendRequestStatus = "declined"
)

// FriendRequest is an incoming contact invitation.
type FriendRequest struct {
	ID        string              `json:"id"`
	FirstName string              `json:"firstName"`
	LastName  string              `json:"lastName"`
	Email     string              `json:"email"`
	Status    FriendRequestStatus `json:"status"`
}

// MeetingType distinguishes broadcast requests from directed ones.
type MeetingType string

const (
	MeetingGlobal   MeetingType = "global"
	MeetingSpecific MeetingType = "specific"
)

// MeetingStatus mirrors the server-side meeting state.
type MeetingStatus string

const (
	MeetingPending  MeetingStatus = "pending"
	MeetingAccepted MeetingStatus = "accepted"
	MeetingEnded    MeetingStatus = "ended"
	MeetingRejected MeetingStatus = "rejected"
)

// Terminal reports whether no further transitions are possible.
func (s MeetingStatus) Terminal() bool {
	return s == MeetingEnded || s == MeetingRejected
}

// Meeting is a call request between a seeker and (eventually) a helper.
type Meeting struct {
	ID         string        `json:"id"`
	SeekerID   string        `json:"seekerId"`
	HelperID   *string       `json:"helperId,omitempty"`
	Type       MeetingType   `json:"type"`
	Status     MeetingStatus `json:"status"`
	CreatedAt  time.Time     `json:"createdAt"`
	AcceptedAt *time.Time    `json:"acceptedAt,omitempty"`
	EndedAt    *time.Time    `json:"endedAt,omitempty"`
}

// MeetingToken is the ephemeral credential for joining one video room.
type MeetingToken struct {
	AccessToken string `json:"token"`
	RoomName    string `json:"roomName"`
	Identity    string `json:"identity"`
	MeetingID   string `json:"meetingId"`
}

// PendingMeeting is a meeting awaiting a helper, decorated for list rendering.
type PendingMeeting struct {
	ID         string      `json:"id"`
	SeekerID   string      `json:"seekerId"`
	SeekerName string      `json:"seekerName"`
	Type       MeetingType `json:"type"`
	CreatedAt  time.Time   `json:"createdAt"`
}

func displayName(first, last, email string) string {
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	case last != "":
		return last
	default:
		return email
	}
}
