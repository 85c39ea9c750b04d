package app

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
	"github.com/stretchr/testify/require"
)

func member(t *testing.T, sid core.SessionID, who domain.Participant, peer domain.ParticipantID, conn core.SignalConnection) core.MemberSession {
	t.Helper()
	meta, err := domain.NewMember(who, peer)
	require.NoError(t, err)
	return core.NewMemberSession(sid, meta, conn)
}

func TestRegistry_JoinLeaveBroadcast(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	r := NewRegistry(nil)
	key := domain.RoomKey("dm:alice|bob")
	conn := newFakeConn()

	// Given a session that joined and left
	req.NoError(r.Join(ctx, key, member(t, "a1", alice, "bob", conn)))
	r.Leave(ctx, key, "a1")

	// When the room is broadcast to
	res, err := r.Broadcast(ctx, key, core.Frame(`{}`))

	// Then the departed session receives nothing
	req.NoError(err)
	req.Zero(res.SendTo)
	req.Empty(conn.events(t))
	req.Empty(r.Rooms())
}

func TestRegistry_BroadcastIsScopedToRoom(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	r := NewRegistry(nil)
	ab, ac := newFakeConn(), newFakeConn()
	req.NoError(r.Join(ctx, "dm:alice|bob", member(t, "a1", alice, "bob", ab)))
	req.NoError(r.Join(ctx, "dm:alice|carol", member(t, "a2", alice, "carol", ac)))

	res, err := r.Broadcast(ctx, "dm:alice|bob", core.Frame(`{"type":"x"}`))

	req.NoError(err)
	req.Equal(1, res.SendTo)
	req.Len(ab.events(t), 1)
	req.Empty(ac.events(t))
	req.Equal(2, r.SessionCount())
	req.Len(r.Rooms(), 2)
}

func TestRegistry_AttachDetachReportEdges(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(nil)
	key := domain.RoomKey("dm:alice|bob")
	a1 := member(t, "a1", alice, "bob", newFakeConn())
	b1 := member(t, "b1", bob, "alice", newFakeConn())

	req.True(r.Attach(key, a1))
	req.False(r.Attach(key, a1))
	req.False(r.Attach(key, b1))
	req.Len(r.Members(key), 2)

	req.False(r.Detach(key, "a1"))
	req.False(r.Detach(key, "a1"))
	req.True(r.Detach(key, "b1"))
	req.False(r.Detach(key, "b1"))
	req.Nil(r.Members(key))
}

func TestRegistry_BackpressurePolicy(t *testing.T) {
	tests := []struct {
		name       string
		action     BackpressureAction
		wantJoined int
		wantClosed bool
		wantCode   int
	}{
		{"disconnect", Disconnect, 1, true, 0},
		{"evict", Evict, 1, true, CloseTryAgainLater},
		{"none", NoAction, 2, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			r := NewRegistry(SimplePolicy{Action: tt.action})
			key := domain.RoomKey("dm:alice|bob")
			healthy, slow := newFakeConn(), newFakeConn()
			slow.full = true
			req.NoError(r.Join(ctx, key, member(t, "ok", alice, "bob", healthy)))
			req.NoError(r.Join(ctx, key, member(t, "slow", bob, "alice", slow)))

			res, err := r.Broadcast(ctx, key, core.Frame(`{}`))

			req.NoError(err)
			req.Equal(1, res.SendTo)
			req.Len(res.Dropped, 1)
			req.Len(healthy.events(t), 1)
			req.Equal(tt.wantJoined, r.SessionCount())
			req.Eventually(func() bool {
				return slow.isClosed() == tt.wantClosed && slow.code() == tt.wantCode
			}, time.Second, 5*time.Millisecond)
		})
	}
}

func TestRegistry_OnRoomDroppedFiresWhenPolicyEmptiesRoom(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	r := NewRegistry(nil)
	key := domain.RoomKey("dm:alice|bob")
	var dropped []domain.RoomKey
	r.OnRoomDropped(func(k domain.RoomKey) { dropped = append(dropped, k) })

	// Given a room whose only session cannot keep up
	slow := newFakeConn()
	slow.full = true
	req.NoError(r.Join(ctx, key, member(t, "slow", alice, "bob", slow)))

	// When a broadcast trips the disconnect policy
	_, err := r.Broadcast(ctx, key, core.Frame(`{}`))
	req.NoError(err)

	// Then the room is gone and the hook saw it once
	req.Equal([]domain.RoomKey{key}, dropped)
	req.Empty(r.Rooms())

	// And an ordinary leave does not fire it
	req.NoError(r.Join(ctx, key, member(t, "a2", alice, "bob", newFakeConn())))
	r.Leave(ctx, key, "a2")
	req.Len(dropped, 1)
}

func TestParseBackpressureAction(t *testing.T) {
	req := require.New(t)
	for in, want := range map[string]BackpressureAction{"": Disconnect, "disconnect": Disconnect, "evict": Evict, "none": NoAction} {
		got, err := ParseBackpressureAction(in)
		req.NoError(err)
		req.Equal(want, got)
	}
	_, err := ParseBackpressureAction("kick")
	req.Error(err)
}
