package app

import (
	"context"
	"fmt"

	"github.com/dkeye/Duet/internal/codec"
	"github.com/dkeye/Duet/internal/domain"
	"github.com/rs/zerolog/log"
)

// MarkRead applies a read mark by reader. Marks from anyone but the
// receiver and marks on already-read messages change nothing and report
// false. A receipt goes to the message's own room only on the transition.
func (c *Chat) MarkRead(ctx context.Context, reader domain.ParticipantID, id domain.MessageID) (bool, error) {
	storeCtx, cancel := context.WithTimeout(ctx, c.opts.StoreTimeout)
	defer cancel()

	m, err := c.store.GetMessage(storeCtx, id)
	if err != nil {
		return false, fmt.Errorf("get message %d: %w", id, err)
	}
	if m.ReceiverID != reader {
		log.Debug().Str("module", "app.chat").Str("participant", string(reader)).
			Int64("message_id", int64(id)).Msg("read mark from non-receiver ignored")
		return false, nil
	}

	m, transitioned, err := c.store.MarkRead(storeCtx, id)
	if err != nil {
		return false, fmt.Errorf("mark read %d: %w", id, err)
	}
	if !transitioned {
		return false, nil
	}

	key, err := m.Room()
	if err != nil {
		return true, err
	}
	frame, err := codec.Encode(codec.NewReadReceipt(m))
	if err != nil {
		return true, err
	}
	if _, err := c.fanout.Broadcast(ctx, key, frame); err != nil {
		return true, fmt.Errorf("broadcast receipt %d: %w", id, err)
	}
	return true, nil
}
