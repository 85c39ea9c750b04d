// Package redisbus spreads room broadcasts across server processes over
// Redis pub/sub. Each process keeps its own sessions in a local registry
// and subscribes to a room's channel only while it has sessions there.
package redisbus

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dkeye/Duet/internal/app"
	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const channelPrefix = "duet:room:"

func channel(key domain.RoomKey) string {
	return channelPrefix + string(key)
}

type Bus struct {
	rdb    *redis.Client
	local  *app.Registry
	pubsub *redis.PubSub

	// mu keeps local membership and channel subscriptions in step.
	mu sync.Mutex
}

func New(ctx context.Context, rdb *redis.Client, local *app.Registry) *Bus {
	b := &Bus{
		rdb:    rdb,
		local:  local,
		pubsub: rdb.Subscribe(ctx),
	}
	local.OnRoomDropped(b.roomDropped)
	return b
}

func (b *Bus) Join(ctx context.Context, key domain.RoomKey, ms core.MemberSession) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.local.Attach(key, ms) {
		return nil
	}
	if err := b.pubsub.Subscribe(ctx, channel(key)); err != nil {
		b.local.Detach(key, ms.ID())
		return fmt.Errorf("subscribe %s: %w", key, err)
	}
	log.Debug().Str("module", "redisbus").Str("room", string(key)).Msg("subscribed")
	return nil
}

func (b *Bus) Leave(ctx context.Context, key domain.RoomKey, sid core.SessionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.local.Detach(key, sid) {
		return
	}
	b.unsubscribe(ctx, key)
}

// roomDropped runs when the local registry emptied a room on its own,
// e.g. after disconnecting a slow session.
func (b *Bus) roomDropped(key domain.RoomKey) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.local.Members(key)) > 0 {
		return
	}
	b.unsubscribe(context.Background(), key)
}

// unsubscribe must be called with b.mu held.
func (b *Bus) unsubscribe(ctx context.Context, key domain.RoomKey) {
	if err := b.pubsub.Unsubscribe(ctx, channel(key)); err != nil {
		log.Warn().Err(err).Str("module", "redisbus").Str("room", string(key)).Msg("unsubscribe")
		return
	}
	log.Debug().Str("module", "redisbus").Str("room", string(key)).Msg("unsubscribed")
}

// Broadcast publishes frame to every process holding sessions of key.
// SendTo in the result counts receiving processes, not sessions.
func (b *Bus) Broadcast(ctx context.Context, key domain.RoomKey, frame core.Frame) (core.PublishResult, error) {
	n, err := b.rdb.Publish(ctx, channel(key), []byte(frame)).Result()
	if err != nil {
		return core.PublishResult{}, fmt.Errorf("publish %s: %w", key, err)
	}
	return core.PublishResult{SendTo: int(n)}, nil
}

// Run delivers frames received from Redis to local sessions until ctx ends.
func (b *Bus) Run(ctx context.Context) error {
	ch := b.pubsub.Channel()
	log.Info().Str("module", "redisbus").Msg("subscriber loop started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			key, found := strings.CutPrefix(msg.Channel, channelPrefix)
			if !found {
				continue
			}
			b.local.Deliver(domain.RoomKey(key), core.Frame(msg.Payload))
		}
	}
}

func (b *Bus) Close() error {
	return b.pubsub.Close()
}
