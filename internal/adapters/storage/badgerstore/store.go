// Package badgerstore is the embedded durable store for messages and
// the participant directory.
//
// Key layout:
//
//	msg:{id padded to 19 digits}   cbor messageRecord
//	participant:{participant id}   cbor participantRecord
//	seq:message                    badger sequence lease
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dkeye/Duet/internal/domain"
	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog/log"
)

const (
	sequenceKey       = "seq:message"
	sequenceBandwidth = 100
	maxMarkAttempts   = 16
)

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("badgerstore: cbor encoder initialization failed: " + err.Error())
	}
}

type messageRecord struct {
	ID         int64  `cbor:"id"`
	SenderID   string `cbor:"sender_id"`
	ReceiverID string `cbor:"receiver_id"`
	Ciphertext []byte `cbor:"ciphertext"`
	CreatedAt  int64  `cbor:"created_at"`
	Read       bool   `cbor:"read"`
	ReadAt     int64  `cbor:"read_at,omitempty"`
}

type participantRecord struct {
	ID          string `cbor:"id"`
	DisplayName string `cbor:"display_name"`
}

type Store struct {
	db  *badger.DB
	seq *badger.Sequence
	now func() time.Time
}

// Open opens (or creates) a store rooted at path.
func Open(path string) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, fmt.Errorf("%w: open badger at %s: %v", domain.ErrStoreUnavailable, path, err)
	}
	return New(db)
}

// New wraps an already opened database. The store owns db from here on.
func New(db *badger.DB) (*Store, error) {
	seq, err := db.GetSequence([]byte(sequenceKey), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("%w: lease message sequence: %v", domain.ErrStoreUnavailable, err)
	}
	return &Store{db: db, seq: seq, now: time.Now}, nil
}

func messageKey(id domain.MessageID) []byte {
	return []byte(fmt.Sprintf("msg:%019d", id))
}

func participantKey(id domain.ParticipantID) []byte {
	return []byte("participant:" + string(id))
}

func (s *Store) CreateMessage(ctx context.Context, sender, receiver domain.ParticipantID, ciphertext []byte) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	n, err := s.seq.Next()
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: next message id: %v", domain.ErrStoreUnavailable, err)
	}
	m := domain.Message{
		ID:         domain.MessageID(n + 1),
		SenderID:   sender,
		ReceiverID: receiver,
		Ciphertext: ciphertext,
		CreatedAt:  s.now().UTC(),
	}
	value, err := encMode.Marshal(toRecord(m))
	if err != nil {
		return domain.Message{}, fmt.Errorf("encode message %d: %w", m.ID, err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(m.ID), value)
	}); err != nil {
		return domain.Message{}, fmt.Errorf("%w: write message %d: %v", domain.ErrStoreUnavailable, m.ID, err)
	}
	return m, nil
}

func (s *Store) GetMessage(ctx context.Context, id domain.MessageID) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	var m domain.Message
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		m, err = readMessage(txn, id)
		return err
	})
	return m, err
}

// MarkRead flips the read flag inside an optimistic transaction. A
// concurrent writer makes the commit fail with badger.ErrConflict and the
// transaction is replayed against the new state, so exactly one caller
// observes the transition.
func (s *Store) MarkRead(ctx context.Context, id domain.MessageID) (domain.Message, bool, error) {
	for attempt := 0; attempt < maxMarkAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.Message{}, false, err
		}
		var (
			m            domain.Message
			transitioned bool
		)
		err := s.db.Update(func(txn *badger.Txn) error {
			var err error
			m, err = readMessage(txn, id)
			if err != nil {
				return err
			}
			if !m.MarkRead(s.now()) {
				return nil
			}
			value, err := encMode.Marshal(toRecord(m))
			if err != nil {
				return fmt.Errorf("encode message %d: %w", id, err)
			}
			transitioned = true
			return txn.Set(messageKey(id), value)
		})
		if errors.Is(err, badger.ErrConflict) {
			log.Debug().Str("module", "badgerstore").Int64("message_id", int64(id)).
				Int("attempt", attempt).Msg("mark read conflict, retrying")
			continue
		}
		if err != nil {
			return domain.Message{}, false, err
		}
		return m, transitioned, nil
	}
	return domain.Message{}, false, fmt.Errorf("%w: mark read %d: too many conflicts", domain.ErrStoreUnavailable, id)
}

func (s *Store) FindByID(ctx context.Context, id domain.ParticipantID) (domain.Participant, error) {
	if err := ctx.Err(); err != nil {
		return domain.Participant{}, err
	}
	var rec participantRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(participantKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ErrUnknownParticipant
		}
		if err != nil {
			return fmt.Errorf("%w: read participant %s: %v", domain.ErrStoreUnavailable, id, err)
		}
		return item.Value(func(v []byte) error {
			return cbor.Unmarshal(v, &rec)
		})
	})
	if err != nil {
		return domain.Participant{}, err
	}
	return domain.Participant{ID: domain.ParticipantID(rec.ID), DisplayName: rec.DisplayName}, nil
}

func (s *Store) PutParticipant(ctx context.Context, p domain.Participant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.ID.Validate(); err != nil {
		return err
	}
	value, err := encMode.Marshal(participantRecord{ID: string(p.ID), DisplayName: p.DisplayName})
	if err != nil {
		return fmt.Errorf("encode participant %s: %w", p.ID, err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(participantKey(p.ID), value)
	}); err != nil {
		return fmt.Errorf("%w: write participant %s: %v", domain.ErrStoreUnavailable, p.ID, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return fmt.Errorf("%w: badger closed", domain.ErrStoreUnavailable)
	}
	return nil
}

func (s *Store) Close() error {
	if err := s.seq.Release(); err != nil {
		log.Warn().Err(err).Str("module", "badgerstore").Msg("release sequence")
	}
	return s.db.Close()
}

func readMessage(txn *badger.Txn, id domain.MessageID) (domain.Message, error) {
	item, err := txn.Get(messageKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: read message %d: %v", domain.ErrStoreUnavailable, id, err)
	}
	var rec messageRecord
	if err := item.Value(func(v []byte) error {
		return cbor.Unmarshal(v, &rec)
	}); err != nil {
		return domain.Message{}, fmt.Errorf("decode message %d: %w", id, err)
	}
	return fromRecord(rec), nil
}

func toRecord(m domain.Message) messageRecord {
	rec := messageRecord{
		ID:         int64(m.ID),
		SenderID:   string(m.SenderID),
		ReceiverID: string(m.ReceiverID),
		Ciphertext: m.Ciphertext,
		CreatedAt:  m.CreatedAt.UnixNano(),
		Read:       m.Read,
	}
	if m.ReadAt != nil {
		rec.ReadAt = m.ReadAt.UnixNano()
	}
	return rec
}

func fromRecord(rec messageRecord) domain.Message {
	m := domain.Message{
		ID:         domain.MessageID(rec.ID),
		SenderID:   domain.ParticipantID(rec.SenderID),
		ReceiverID: domain.ParticipantID(rec.ReceiverID),
		Ciphertext: rec.Ciphertext,
		CreatedAt:  time.Unix(0, rec.CreatedAt).UTC(),
		Read:       rec.Read,
	}
	if rec.Read {
		at := time.Unix(0, rec.ReadAt).UTC()
		m.ReadAt = &at
	}
	return m
}
