package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/dkeye/Duet/internal/adapters/cipher"
	"github.com/dkeye/Duet/internal/adapters/storage/badgerstore"
	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
	"github.com/stretchr/testify/require"
)

var (
	alice = domain.Participant{ID: "alice", DisplayName: "Alice"}
	bob   = domain.Participant{ID: "bob", DisplayName: "Bob"}
	carol = domain.Participant{ID: "carol", DisplayName: "Carol"}
)

// fakeConn is an in-memory core.Connection.
type fakeConn struct {
	inbound chan []byte
	done    chan struct{}

	mu        sync.Mutex
	frames    []core.Frame
	closed    bool
	full      bool
	closeCode int
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 16), done: make(chan struct{})}
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnClosed
	}
	if c.full {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) ReadFrame() ([]byte, error) {
	select {
	case data, ok := <-c.inbound:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	case <-c.done:
		return nil, core.ErrConnClosed
	}
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

func (c *fakeConn) CloseWithCode(code int, _ string) {
	c.mu.Lock()
	c.closeCode = code
	c.mu.Unlock()
	c.Close()
}

func (c *fakeConn) code() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) events(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var ev map[string]any
		require.NoError(t, json.Unmarshal(f, &ev))
		out = append(out, ev)
	}
	return out
}

func (c *fakeConn) eventsOfType(t *testing.T, typ string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, ev := range c.events(t) {
		if ev["type"] == typ {
			out = append(out, ev)
		}
	}
	return out
}

type identityFunc func(r *http.Request) (domain.Participant, error)

func (f identityFunc) Authenticate(r *http.Request) (domain.Participant, error) { return f(r) }

func as(p domain.Participant) core.IdentityProvider {
	return identityFunc(func(*http.Request) (domain.Participant, error) { return p, nil })
}

type fixture struct {
	store    *badgerstore.Store
	registry *Registry
	chat     *Chat
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	req := require.New(t)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	store, err := badgerstore.New(db)
	req.NoError(err)
	t.Cleanup(func() { _ = store.Close() })

	for _, p := range []domain.Participant{alice, bob, carol} {
		req.NoError(store.PutParticipant(context.Background(), p))
	}

	aead, err := cipher.New(bytes.Repeat([]byte{9}, cipher.KeySize))
	req.NoError(err)

	registry := NewRegistry(nil)
	return &fixture{
		store:    store,
		registry: registry,
		chat:     NewChat(store, store, aead, registry, ChatOptions{}),
	}
}

// join registers a fake connection for who talking to peer.
func (f *fixture) join(t *testing.T, sid core.SessionID, who domain.Participant, peer domain.ParticipantID) *fakeConn {
	t.Helper()
	meta, err := domain.NewMember(who, peer)
	require.NoError(t, err)
	conn := newFakeConn()
	f.registry.Attach(meta.Room, core.NewMemberSession(sid, meta, conn))
	return conn
}

func coreSession(sid core.SessionID, meta *domain.Member, conn core.SignalConnection) core.MemberSession {
	return core.NewMemberSession(sid, meta, conn)
}
