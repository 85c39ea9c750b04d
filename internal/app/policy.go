package app

import (
	"fmt"

	"github.com/dkeye/Duet/internal/core"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	// Evict removes the session and closes its transport with
	// CloseTryAgainLater so the client knows to reconnect.
	Evict
	// Disconnect removes the session and closes its transport.
	Disconnect
)

func (a BackpressureAction) String() string {
	switch a {
	case NoAction:
		return "none"
	case Evict:
		return "evict"
	case Disconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("BackpressureAction(%d)", int(a))
	}
}

func ParseBackpressureAction(s string) (BackpressureAction, error) {
	switch s {
	case "none":
		return NoAction, nil
	case "evict":
		return Evict, nil
	case "", "disconnect":
		return Disconnect, nil
	default:
		return NoAction, fmt.Errorf("unknown backpressure action %q", s)
	}
}

type Policy interface {
	OnBackPressure(room core.RoomService, member core.MemberSession) BackpressureAction
}

type SimplePolicy struct {
	Action BackpressureAction
}

func (p SimplePolicy) OnBackPressure(room core.RoomService, member core.MemberSession) BackpressureAction {
	return p.Action
}
