package domain

import "strings"

const roomKeyPrefix = "dm:"

// RoomKey identifies the conversation of one unordered pair of participants.
type RoomKey string

// ResolveRoom derives the canonical key for the pair (p1, p2).
// ResolveRoom(a, b) == ResolveRoom(b, a), and distinct pairs never share a key
// because both ids are kept verbatim around a separator they cannot contain.
func ResolveRoom(p1, p2 ParticipantID) (RoomKey, error) {
	if p1.Validate() != nil || p2.Validate() != nil || p1 == p2 {
		return "", ErrInvalidPairing
	}
	if p2 < p1 {
		p1, p2 = p2, p1
	}
	return RoomKey(roomKeyPrefix + string(p1) + pairSeparator + string(p2)), nil
}

// Participants splits the key back into its ordered pair.
func (k RoomKey) Participants() (ParticipantID, ParticipantID, bool) {
	rest, ok := strings.CutPrefix(string(k), roomKeyPrefix)
	if !ok {
		return "", "", false
	}
	a, b, ok := strings.Cut(rest, pairSeparator)
	if !ok || a == "" || b == "" {
		return "", "", false
	}
	return ParticipantID(a), ParticipantID(b), true
}

// Has reports whether id is one side of the conversation.
func (k RoomKey) Has(id ParticipantID) bool {
	a, b, ok := k.Participants()
	return ok && (a == id || b == id)
}
