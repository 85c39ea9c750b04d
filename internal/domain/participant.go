// Package domain contains entities without transport or storage logic.
package domain

import (
	"errors"
	"strings"
)

const (
	MaxParticipantIDLen = 64
	MaxDisplayNameLen   = 64

	// pairSeparator joins the two ids of a RoomKey and is rejected inside ids.
	pairSeparator = "|"
)

var (
	ErrParticipantIDEmpty   = errors.New("participant id empty")
	ErrParticipantIDTooLong = errors.New("participant id too long")
	ErrParticipantIDInvalid = errors.New("participant id contains a reserved character")
)

// ParticipantID is the opaque, stable identifier issued by the identity side.
type ParticipantID string

func (id ParticipantID) Validate() error {
	if len(id) == 0 {
		return ErrParticipantIDEmpty
	}
	if len(id) > MaxParticipantIDLen {
		return ErrParticipantIDTooLong
	}
	if strings.Contains(string(id), pairSeparator) {
		return ErrParticipantIDInvalid
	}
	return nil
}

// Participant is an authenticated principal. DisplayName is read-only here.
type Participant struct {
	ID          ParticipantID `json:"id"`
	DisplayName string        `json:"display_name"`
}

// NewParticipant validates the id and falls back to it when the name is empty.
func NewParticipant(id ParticipantID, displayName string) (Participant, error) {
	if err := id.Validate(); err != nil {
		return Participant{}, err
	}
	if displayName == "" {
		displayName = string(id)
	}
	if len(displayName) > MaxDisplayNameLen {
		displayName = displayName[:MaxDisplayNameLen]
	}
	return Participant{ID: id, DisplayName: displayName}, nil
}
