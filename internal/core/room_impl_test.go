package core

import (
	"sync"
	"testing"

	"github.com/dkeye/Duet/internal/domain"
	"github.com/stretchr/testify/require"
)

type sink struct {
	mu     sync.Mutex
	frames []Frame
	err    error
}

func (s *sink) TrySend(f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *sink) Close() {}

func (s *sink) received() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame(nil), s.frames...)
}

func newMember(t *testing.T, sid SessionID, who, peer domain.ParticipantID, conn SignalConnection) MemberSession {
	t.Helper()
	meta, err := domain.NewMember(domain.Participant{ID: who, DisplayName: string(who)}, peer)
	require.NoError(t, err)
	return NewMemberSession(sid, meta, conn)
}

func TestRoom_AddMember_IsIdempotent(t *testing.T) {
	req := require.New(t)
	room := NewRoomService("dm:alice|bob")
	ms := newMember(t, "s1", "alice", "bob", &sink{})

	req.True(room.AddMember(ms))
	req.False(room.AddMember(ms))
	req.Equal(1, room.MemberCount())

	req.True(room.RemoveMember("s1"))
	req.False(room.RemoveMember("s1"))
	req.Zero(room.MemberCount())
}

func TestRoom_Broadcast_ReachesEveryMemberIncludingSender(t *testing.T) {
	req := require.New(t)
	room := NewRoomService("dm:alice|bob")
	a1, a2, b1 := &sink{}, &sink{}, &sink{}
	room.AddMember(newMember(t, "a1", "alice", "bob", a1))
	room.AddMember(newMember(t, "a2", "alice", "bob", a2))
	room.AddMember(newMember(t, "b1", "bob", "alice", b1))

	res := room.Broadcast(Frame("hello"))

	req.Equal(3, res.SendTo)
	req.Empty(res.Dropped)
	for _, s := range []*sink{a1, a2, b1} {
		req.Equal([]Frame{Frame("hello")}, s.received())
	}
}

func TestRoom_Broadcast_FailureDoesNotBlockOthers(t *testing.T) {
	req := require.New(t)
	room := NewRoomService("dm:alice|bob")
	healthy, broken := &sink{}, &sink{err: ErrBackpressure}
	room.AddMember(newMember(t, "ok", "alice", "bob", healthy))
	bad := newMember(t, "bad", "bob", "alice", broken)
	room.AddMember(bad)

	res := room.Broadcast(Frame("x"))

	req.Equal(1, res.SendTo)
	req.Equal([]MemberSession{bad}, res.Dropped)
	req.Len(healthy.received(), 1)
}

func TestRoom_Broadcast_PreservesOrderPerMember(t *testing.T) {
	req := require.New(t)
	room := NewRoomService("dm:alice|bob")
	a, b := &sink{}, &sink{}
	room.AddMember(newMember(t, "a", "alice", "bob", a))
	room.AddMember(newMember(t, "b", "bob", "alice", b))

	// When two goroutines broadcast concurrently
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(tag byte) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				room.Broadcast(Frame{tag, byte(j)})
			}
		}(byte('A' + i))
	}
	wg.Wait()

	// Then both members observe the exact same sequence
	req.Len(a.received(), 200)
	req.Equal(a.received(), b.received())
}

func TestRoom_MembersSnapshot(t *testing.T) {
	req := require.New(t)
	room := NewRoomService("dm:alice|bob")
	room.AddMember(newMember(t, "a", "alice", "bob", &sink{}))

	req.Equal([]MemberDTO{{SID: "a", Participant: "alice"}}, room.MembersSnapshot())
}
