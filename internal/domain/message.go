package domain

import "time"

type MessageID int64

// Message is the stored form of one chat event. Body is ciphertext.
// ReadAt is non-nil iff Read; once read it never reverts.
type Message struct {
	ID         MessageID
	SenderID   ParticipantID
	ReceiverID ParticipantID
	Ciphertext []byte
	CreatedAt  time.Time
	Read       bool
	ReadAt     *time.Time
}

// Room is the conversation the message belongs to.
func (m Message) Room() (RoomKey, error) {
	return ResolveRoom(m.SenderID, m.ReceiverID)
}

// MarkRead applies the read transition at t and reports whether it changed anything.
func (m *Message) MarkRead(t time.Time) bool {
	if m.Read {
		return false
	}
	at := t.UTC()
	m.Read = true
	m.ReadAt = &at
	return true
}
