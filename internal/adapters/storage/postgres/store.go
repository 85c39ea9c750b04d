// Package postgres is the durable store backed by PostgreSQL (lib/pq).
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dkeye/Duet/internal/domain"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sql.DB
}

// Open connects to dsn and checks the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open postgres: %v", domain.ErrStoreUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping postgres: %v", domain.ErrStoreUnavailable, err)
	}
	return NewStore(db), nil
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const messageColumns = `id, sender_id, receiver_id, ciphertext, created_at, is_read, read_at`

func (s *Store) CreateMessage(ctx context.Context, sender, receiver domain.ParticipantID, ciphertext []byte) (domain.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (sender_id, receiver_id, ciphertext)
		VALUES ($1, $2, $3)
		RETURNING `+messageColumns,
		string(sender), string(receiver), ciphertext)
	m, err := scanMessage(row)
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: insert message: %v", domain.ErrStoreUnavailable, err)
	}
	return m, nil
}

func (s *Store) GetMessage(ctx context.Context, id domain.MessageID) (domain.Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, int64(id))
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Message{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: select message %d: %v", domain.ErrStoreUnavailable, id, err)
	}
	return m, nil
}

// MarkRead relies on the row lock taken by the conditional UPDATE: only
// the statement that still sees is_read = FALSE returns a row.
func (s *Store) MarkRead(ctx context.Context, id domain.MessageID) (domain.Message, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE messages SET is_read = TRUE, read_at = now()
		WHERE id = $1 AND NOT is_read
		RETURNING `+messageColumns,
		int64(id))
	m, err := scanMessage(row)
	switch {
	case err == nil:
		return m, true, nil
	case errors.Is(err, sql.ErrNoRows):
		// Either missing or already read; read never reverts.
		m, err = s.GetMessage(ctx, id)
		return m, false, err
	default:
		return domain.Message{}, false, fmt.Errorf("%w: mark read %d: %v", domain.ErrStoreUnavailable, id, err)
	}
}

func (s *Store) FindByID(ctx context.Context, id domain.ParticipantID) (domain.Participant, error) {
	var p domain.Participant
	err := s.db.QueryRowContext(ctx,
		`SELECT id, display_name FROM participants WHERE id = $1`, string(id)).
		Scan(&p.ID, &p.DisplayName)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, domain.ErrUnknownParticipant
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("%w: select participant %s: %v", domain.ErrStoreUnavailable, id, err)
	}
	return p, nil
}

func (s *Store) PutParticipant(ctx context.Context, p domain.Participant) error {
	if err := p.ID.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO participants (id, display_name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET display_name = $2`,
		string(p.ID), p.DisplayName)
	if err != nil {
		return fmt.Errorf("%w: upsert participant %s: %v", domain.ErrStoreUnavailable, p.ID, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (domain.Message, error) {
	var (
		m      domain.Message
		id     int64
		sender string
		recv   string
		readAt sql.NullTime
	)
	if err := row.Scan(&id, &sender, &recv, &m.Ciphertext, &m.CreatedAt, &m.Read, &readAt); err != nil {
		return domain.Message{}, err
	}
	m.ID = domain.MessageID(id)
	m.SenderID = domain.ParticipantID(sender)
	m.ReceiverID = domain.ParticipantID(recv)
	m.CreatedAt = m.CreatedAt.UTC()
	if readAt.Valid {
		at := readAt.Time.UTC()
		m.ReadAt = &at
	}
	return m, nil
}

