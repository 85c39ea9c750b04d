package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/Duet/internal/codec"
	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxBodyBytes = 4096
	DefaultStoreTimeout = 5 * time.Second
)

type ChatOptions struct {
	MaxBodyBytes int
	StoreTimeout time.Duration
}

// Chat persists messages and read state and announces them to the room.
type Chat struct {
	store     core.Store
	directory core.Directory
	cipher    core.Cipher
	fanout    Fanout
	opts      ChatOptions
}

func NewChat(store core.Store, directory core.Directory, cipher core.Cipher, fanout Fanout, opts ChatOptions) *Chat {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	return &Chat{store: store, directory: directory, cipher: cipher, fanout: fanout, opts: opts}
}

// Send stores body from sender to peer and broadcasts chat_delivered to
// their room. Nothing is broadcast unless the message was stored.
func (c *Chat) Send(ctx context.Context, sender domain.Participant, peer domain.ParticipantID, body string) (domain.Message, error) {
	if strings.TrimSpace(body) == "" {
		return domain.Message{}, fmt.Errorf("%w: empty body", domain.ErrMalformedPayload)
	}
	if len(body) > c.opts.MaxBodyBytes {
		return domain.Message{}, fmt.Errorf("%w: body is %d bytes, limit %d", domain.ErrMalformedPayload, len(body), c.opts.MaxBodyBytes)
	}
	key, err := domain.ResolveRoom(sender.ID, peer)
	if err != nil {
		return domain.Message{}, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, c.opts.StoreTimeout)
	defer cancel()

	if _, err := c.directory.FindByID(storeCtx, peer); err != nil {
		return domain.Message{}, fmt.Errorf("find receiver %s: %w", peer, err)
	}
	sealed, err := c.cipher.Encrypt([]byte(body))
	if err != nil {
		return domain.Message{}, fmt.Errorf("encrypt: %w", err)
	}
	m, err := c.store.CreateMessage(storeCtx, sender.ID, peer, sealed)
	if err != nil {
		return domain.Message{}, fmt.Errorf("create message: %w", err)
	}

	frame, err := codec.Encode(codec.NewChatDelivered(m, sender, body))
	if err != nil {
		return m, err
	}
	res, err := c.fanout.Broadcast(ctx, key, frame)
	if err != nil {
		return m, fmt.Errorf("broadcast message %d: %w", m.ID, err)
	}
	log.Debug().Str("module", "app.chat").Str("room", string(key)).Int64("message_id", int64(m.ID)).
		Int("sent_to", res.SendTo).Msg("message delivered")
	return m, nil
}

// Open decrypts a stored message body.
func (c *Chat) Open(_ context.Context, m domain.Message) (string, error) {
	body, err := c.cipher.Decrypt(m.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("open message %d: %w", m.ID, err)
	}
	return string(body), nil
}
