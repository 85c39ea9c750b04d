//go:generate go run go.uber.org/mock/mockgen -source=store_iface.go -destination=../mocks/mock_store.go -package=mocks
package core

import (
	"context"

	"github.com/dkeye/Duet/internal/domain"
)

// Store is the durable message store. Implementations assign ids and
// timestamps and must apply MarkRead atomically per message.
type Store interface {
	CreateMessage(ctx context.Context, sender, receiver domain.ParticipantID, ciphertext []byte) (domain.Message, error)
	GetMessage(ctx context.Context, id domain.MessageID) (domain.Message, error)
	// MarkRead returns the stored message and whether this call performed the transition.
	MarkRead(ctx context.Context, id domain.MessageID) (domain.Message, bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// Directory resolves participant ids to principals.
type Directory interface {
	FindByID(ctx context.Context, id domain.ParticipantID) (domain.Participant, error)
	// PutParticipant inserts or replaces a principal record.
	PutParticipant(ctx context.Context, p domain.Participant) error
}
