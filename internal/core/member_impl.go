package core

import "github.com/dkeye/Duet/internal/domain"

// memberSession implements MemberSession by pairing meta + transport.
type memberSession struct {
	id   SessionID
	meta *domain.Member
	conn SignalConnection
}

func NewMemberSession(id SessionID, meta *domain.Member, conn SignalConnection) MemberSession {
	return &memberSession{id: id, meta: meta, conn: conn}
}

func (m *memberSession) ID() SessionID            { return m.id }
func (m *memberSession) Meta() *domain.Member     { return m.meta }
func (m *memberSession) Signal() SignalConnection { return m.conn }
