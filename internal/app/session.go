package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/dkeye/Duet/internal/codec"
	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
	"github.com/dkeye/Duet/internal/observability"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ClosePolicyViolation is the websocket close code sent to a session
// that exceeded the malformed frame limit.
const ClosePolicyViolation = 1008

// CloseTryAgainLater is sent to a session evicted for falling behind.
const CloseTryAgainLater = 1013

const leaveTimeout = 5 * time.Second

type SessionState int32

const (
	StateConnecting SessionState = iota
	StateJoined
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("SessionState(%d)", int32(s))
	}
}

var transitions = map[SessionState][]SessionState{
	StateConnecting: {StateJoined, StateClosed},
	StateJoined:     {StateClosing},
	StateClosing:    {StateClosed},
}

type SessionDeps struct {
	Identity core.IdentityProvider
	Fanout   Fanout
	Chat     *Chat
	Limiter  *MalformedLimiter
}

// Session drives one client connection from authentication to close.
type Session struct {
	id     core.SessionID
	deps   SessionDeps
	state  atomic.Int32
	member *domain.Member
	logger zerolog.Logger
}

func NewSession(id core.SessionID, deps SessionDeps) *Session {
	s := &Session{
		id:     id,
		deps:   deps,
		logger: log.With().Str("module", "app.session").Str("sid", string(id)).Logger(),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

func (s *Session) ID() core.SessionID     { return s.id }
func (s *Session) State() SessionState    { return SessionState(s.state.Load()) }
func (s *Session) Member() *domain.Member { return s.member }

func (s *Session) transition(to SessionState) bool {
	for {
		from := s.State()
		if !slices.Contains(transitions[from], to) {
			s.logger.Error().Stringer("from", from).Stringer("to", to).Msg("illegal session transition")
			return false
		}
		if s.state.CompareAndSwap(int32(from), int32(to)) {
			s.logger.Debug().Stringer("from", from).Stringer("to", to).Msg("session transition")
			return true
		}
	}
}

// Admit authenticates the upgrade request and binds the session to the
// room shared with peer. Any error leaves the session Closed.
func (s *Session) Admit(r *http.Request, peer domain.ParticipantID) (*domain.Member, error) {
	principal, err := s.deps.Identity.Authenticate(r)
	if err != nil {
		s.transition(StateClosed)
		if !errors.Is(err, domain.ErrUnauthenticated) {
			err = fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
		}
		return nil, err
	}
	member, err := domain.NewMember(principal, peer)
	if err != nil {
		s.transition(StateClosed)
		return nil, err
	}
	s.member = member
	s.logger = s.logger.With().Str("room", string(member.Room)).Str("participant", string(principal.ID)).Logger()
	return member, nil
}

// Abort closes a session that never reached Run.
func (s *Session) Abort() {
	s.transition(StateClosed)
}

// Run joins the room and processes inbound frames until the transport
// fails or ctx is cancelled. The session always leaves its room before
// Run returns.
func (s *Session) Run(ctx context.Context, conn core.Connection) error {
	if s.member == nil || s.State() != StateConnecting {
		conn.Close()
		return fmt.Errorf("session %s not admitted", s.id)
	}
	key := s.member.Room
	ms := core.NewMemberSession(s.id, s.member, conn)

	if err := s.deps.Fanout.Join(ctx, key, ms); err != nil {
		s.transition(StateClosed)
		conn.Close()
		return fmt.Errorf("join %s: %w", key, err)
	}
	s.transition(StateJoined)
	observability.SessionsLive.Inc()
	defer s.shutdown(ctx, key, conn)

	if frame, err := codec.Encode(codec.NewAccepted(key)); err == nil {
		_ = conn.TrySend(frame)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		data, err := conn.ReadFrame()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Debug().Err(err).Msg("read ended")
			}
			return nil
		}
		if !s.handle(ctx, conn, data) {
			return nil
		}
	}
}

func (s *Session) shutdown(ctx context.Context, key domain.RoomKey, conn core.Connection) {
	s.transition(StateClosing)

	leaveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), leaveTimeout)
	defer cancel()
	s.deps.Fanout.Leave(leaveCtx, key, s.id)
	s.deps.Limiter.Forget(s.id)
	conn.Close()
	observability.SessionsLive.Dec()

	s.transition(StateClosed)
	s.logger.Info().Msg("session closed")
}

// handle reports false when the session must stop.
func (s *Session) handle(ctx context.Context, conn core.Connection, data []byte) bool {
	ev, err := codec.Decode(data)
	if err != nil {
		return s.reject(conn, "unknown", err)
	}

	principal := s.member.Principal
	switch ev := ev.(type) {
	case *codec.ChatSend:
		_, err = s.deps.Chat.Send(ctx, principal, s.member.Peer, ev.Body)
		return s.record(conn, string(codec.TypeChatSend), err)
	case *codec.ReadMark:
		_, err = s.deps.Chat.MarkRead(ctx, principal.ID, ev.MessageID)
		return s.record(conn, string(codec.TypeReadMark), err)
	}
	return true
}

func (s *Session) record(conn core.Connection, eventType string, err error) bool {
	switch {
	case err == nil:
		observability.CountEvent(eventType, observability.OutcomeOK)
	case errors.Is(err, domain.ErrMalformedPayload):
		return s.reject(conn, eventType, err)
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrUnknownParticipant):
		observability.CountEvent(eventType, observability.OutcomeDropped)
		s.logger.Debug().Err(err).Str("type", eventType).Msg("event dropped")
	default:
		observability.CountEvent(eventType, observability.OutcomeFailed)
		s.logger.Warn().Err(err).Str("type", eventType).Msg("event failed")
	}
	return true
}

func (s *Session) reject(conn core.Connection, eventType string, err error) bool {
	observability.CountEvent(eventType, observability.OutcomeMalformed)
	s.logger.Debug().Err(err).Str("type", eventType).Msg("malformed frame dropped")
	if s.deps.Limiter.Strike(s.id) {
		return true
	}
	s.logger.Warn().Msg("malformed frame limit exceeded")
	conn.CloseWithCode(ClosePolicyViolation, "too many malformed frames")
	return false
}
