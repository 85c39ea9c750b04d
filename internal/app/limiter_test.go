package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMalformedLimiter_SlidingWindow(t *testing.T) {
	req := require.New(t)
	l := NewMalformedLimiter(2, time.Minute)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	req.True(l.Strike("s1"))
	req.True(l.Strike("s1"))
	req.False(l.Strike("s1"))

	// other sessions are counted separately
	req.True(l.Strike("s2"))

	// strikes age out of the window
	clock = clock.Add(2 * time.Minute)
	req.True(l.Strike("s1"))

	l.Forget("s1")
	req.True(l.Strike("s1"))
	req.True(l.Strike("s1"))
}

func TestMalformedLimiter_Disabled(t *testing.T) {
	req := require.New(t)
	l := NewMalformedLimiter(0, time.Minute)
	req.Nil(l)
	for i := 0; i < 100; i++ {
		req.True(l.Strike("s1"))
	}
	l.Forget("s1")
}
