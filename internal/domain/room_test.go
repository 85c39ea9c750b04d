package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveRoom_IsCommutative(t *testing.T) {
	req := require.New(t)
	ids := []ParticipantID{"alice", "bob", "carol", "a", "ab", "b", "42", "7f3c"}

	for _, a := range ids {
		for _, b := range ids {
			if a == b {
				continue
			}
			k1, err := ResolveRoom(a, b)
			req.NoError(err)
			k2, err := ResolveRoom(b, a)
			req.NoError(err)
			req.Equal(k1, k2, "pair %s/%s", a, b)
		}
	}
}

func TestResolveRoom_DistinctPairsNeverCollide(t *testing.T) {
	req := require.New(t)
	// Given ids that would collide under naive concatenation
	ids := []ParticipantID{"a", "ab", "b", "bc", "abc", "c", "a_b", "b_c", "1", "11", "111"}
	seen := make(map[RoomKey]string)

	for i, a := range ids {
		for _, b := range ids[i+1:] {
			key, err := ResolveRoom(a, b)
			req.NoError(err)
			pair := fmt.Sprintf("%s/%s", a, b)
			if prev, ok := seen[key]; ok {
				req.Failf("collision", "%s and %s share %s", prev, pair, key)
			}
			seen[key] = pair
		}
	}
	req.Len(seen, len(ids)*(len(ids)-1)/2)
}

func TestResolveRoom_SelfPairingFails(t *testing.T) {
	req := require.New(t)
	_, err := ResolveRoom("alice", "alice")
	req.ErrorIs(err, ErrInvalidPairing)
}

func TestResolveRoom_InvalidIDs(t *testing.T) {
	tests := []struct {
		name string
		a, b ParticipantID
	}{
		{"empty first", "", "bob"},
		{"empty second", "alice", ""},
		{"separator inside id", "al|ice", "bob"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveRoom(tt.a, tt.b)
			require.ErrorIs(t, err, ErrInvalidPairing)
		})
	}
}

func TestRoomKey_Participants(t *testing.T) {
	req := require.New(t)
	key, err := ResolveRoom("zoe", "adam")
	req.NoError(err)
	req.Equal(RoomKey("dm:adam|zoe"), key)

	a, b, ok := key.Participants()
	req.True(ok)
	req.Equal(ParticipantID("adam"), a)
	req.Equal(ParticipantID("zoe"), b)
	req.True(key.Has("zoe"))
	req.False(key.Has("eve"))

	_, _, ok = RoomKey("garbage").Participants()
	req.False(ok)
}
