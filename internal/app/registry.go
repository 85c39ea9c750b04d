package app

import (
	"context"
	"sync"

	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
	"github.com/dkeye/Duet/internal/observability"
	"github.com/rs/zerolog/log"
)

// Registry is the in-process Fanout. Rooms are created on first join and
// dropped when their last session leaves.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[domain.RoomKey]core.RoomService
	policy Policy

	onDrop func(domain.RoomKey)
}

func NewRegistry(policy Policy) *Registry {
	if policy == nil {
		policy = SimplePolicy{Action: Disconnect}
	}
	return &Registry{
		rooms:  make(map[domain.RoomKey]core.RoomService),
		policy: policy,
	}
}

// OnRoomDropped registers fn to run when backpressure handling removes the
// last session of a room. Detach and Leave callers learn that from the
// return value instead. fn runs without the registry lock held.
func (r *Registry) OnRoomDropped(fn func(domain.RoomKey)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDrop = fn
}

func (r *Registry) Join(_ context.Context, key domain.RoomKey, ms core.MemberSession) error {
	r.Attach(key, ms)
	return nil
}

func (r *Registry) Leave(_ context.Context, key domain.RoomKey, sid core.SessionID) {
	r.Detach(key, sid)
}

func (r *Registry) Broadcast(_ context.Context, key domain.RoomKey, frame core.Frame) (core.PublishResult, error) {
	return r.Deliver(key, frame), nil
}

// Attach adds ms to the room and reports whether the room was empty before.
func (r *Registry) Attach(key domain.RoomKey, ms core.MemberSession) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[key]
	if !ok {
		room = core.NewRoomService(key)
		r.rooms[key] = room
		log.Debug().Str("module", "app.registry").Str("room", string(key)).Msg("room created")
	}
	added := room.AddMember(ms)
	return added && room.MemberCount() == 1
}

// Detach removes sid from the room and reports whether the room is now gone.
func (r *Registry) Detach(key domain.RoomKey, sid core.SessionID) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[key]
	if !ok {
		return false
	}
	if !room.RemoveMember(sid) {
		return false
	}
	if room.MemberCount() == 0 {
		delete(r.rooms, key)
		log.Debug().Str("module", "app.registry").Str("room", string(key)).Msg("room dropped")
		return true
	}
	return false
}

// Deliver fans frame out to the local sessions of key and applies the
// backpressure policy to every session that could not take it.
func (r *Registry) Deliver(key domain.RoomKey, frame core.Frame) core.PublishResult {
	r.mu.RLock()
	room, ok := r.rooms[key]
	r.mu.RUnlock()
	if !ok {
		return core.PublishResult{}
	}

	res := room.Broadcast(frame)
	observability.CountBroadcast(res.SendTo, len(res.Dropped))

	dropped := false
	for _, slow := range res.Dropped {
		action := r.policy.OnBackPressure(room, slow)
		switch action {
		case Evict:
			dropped = r.Detach(key, slow.ID()) || dropped
			// The close frame write can block up to the write deadline.
			go closeWithCode(slow.Signal(), CloseTryAgainLater, "send queue full")
		case Disconnect:
			dropped = r.Detach(key, slow.ID()) || dropped
			slow.Signal().Close()
		case NoAction:
			continue
		}
		log.Info().Str("module", "app.registry").Str("room", string(key)).Str("sid", string(slow.ID())).
			Stringer("action", action).Msg("backpressure")
	}
	if dropped {
		r.mu.RLock()
		fn := r.onDrop
		r.mu.RUnlock()
		if fn != nil {
			fn(key)
		}
	}
	return res
}

type closeCoder interface {
	CloseWithCode(code int, text string)
}

func closeWithCode(conn core.SignalConnection, code int, text string) {
	if cc, ok := conn.(closeCoder); ok {
		cc.CloseWithCode(code, text)
		return
	}
	conn.Close()
}

func (r *Registry) Rooms() []core.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(r.rooms))
	for key, room := range r.rooms {
		out = append(out, core.RoomInfo{Key: key, MemberCount: room.MemberCount()})
	}
	return out
}

func (r *Registry) Members(key domain.RoomKey) []core.MemberDTO {
	r.mu.RLock()
	room, ok := r.rooms[key]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return room.MembersSnapshot()
}

func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, room := range r.rooms {
		n += room.MemberCount()
	}
	return n
}
