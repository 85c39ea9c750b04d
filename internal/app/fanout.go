package app

import (
	"context"

	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
)

// Fanout routes frames to every session joined to a room.
type Fanout interface {
	// Join is idempotent.
	Join(ctx context.Context, key domain.RoomKey, ms core.MemberSession) error
	// Leave is a no-op for a session that is not joined.
	Leave(ctx context.Context, key domain.RoomKey, sid core.SessionID)
	// Broadcast delivers to the membership as of the call, sender included.
	Broadcast(ctx context.Context, key domain.RoomKey, frame core.Frame) (core.PublishResult, error)
}
