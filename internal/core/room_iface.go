package core

import "github.com/dkeye/Duet/internal/domain"

// PublishResult reports delivery stats/backpressure to the registry.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	SID         SessionID            `json:"sid"`
	Participant domain.ParticipantID `json:"participant"`
}

// RoomService is the core-facing API of one conversation.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Key() domain.RoomKey
	MemberCount() int
	MembersSnapshot() []MemberDTO

	// AddMember reports false if the session was already present.
	AddMember(ms MemberSession) bool
	// RemoveMember reports false if the session was absent.
	RemoveMember(sid SessionID) bool
	Broadcast(data Frame) PublishResult
}

type RoomInfo struct {
	Key         domain.RoomKey `json:"room"`
	MemberCount int            `json:"session_count"`
}
