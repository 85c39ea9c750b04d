package core

import (
	"sync"

	"github.com/dkeye/Duet/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	key   domain.RoomKey
	mu    sync.RWMutex
	bySID map[SessionID]MemberSession

	// sendMu serializes broadcasts so every member sees them in call order.
	sendMu sync.Mutex
}

func NewRoomService(key domain.RoomKey) RoomService {
	return &roomImpl{
		key:   key,
		bySID: make(map[SessionID]MemberSession),
	}
}

func (r *roomImpl) Key() domain.RoomKey { return r.key }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

func (r *roomImpl) AddMember(ms MemberSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySID[ms.ID()]; ok {
		return false
	}
	r.bySID[ms.ID()] = ms
	log.Info().Str("module", "core.room").Str("room", string(r.key)).Str("sid", string(ms.ID())).
		Str("participant", string(ms.Meta().Principal.ID)).Msg("member added")
	return true
}

func (r *roomImpl) RemoveMember(sid SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySID[sid]; !ok {
		return false
	}
	delete(r.bySID, sid)
	log.Info().Str("module", "core.room").Str("room", string(r.key)).Str("sid", string(sid)).Msg("member removed")
	return true
}

// Broadcast delivers data to a snapshot of the members, sender's sessions included.
// A failed TrySend never blocks delivery to the others.
func (r *roomImpl) Broadcast(data Frame) PublishResult {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	r.mu.RLock()
	members := lo.Values(r.bySID)
	r.mu.RUnlock()

	res := PublishResult{}
	for _, m := range members {
		if err := m.Signal().TrySend(data); err != nil {
			log.Warn().Err(err).Str("module", "core.room").Str("room", string(r.key)).
				Str("sid", string(m.ID())).Msg("delivery failed")
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.key)).Int("sent_to", res.SendTo).
		Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) MembersSnapshot() []MemberDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.MapToSlice(r.bySID, func(sid SessionID, ms MemberSession) MemberDTO {
		return MemberDTO{SID: sid, Participant: ms.Meta().Principal.ID}
	})
}
