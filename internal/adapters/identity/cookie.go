package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
)

const (
	SessionName     = "DuetSessions"
	ParticipantKey  = "participant_id"
	directoryLookup = 3 * time.Second
)

// Cookie trusts a participant id that the login flow stored in the
// signed session cookie and resolves its display name in the directory.
type Cookie struct {
	store     sessions.Store
	directory core.Directory
}

func NewCookieStore(secret string) (sessions.Store, error) {
	if secret == "" {
		return nil, errors.New("cookie secret is empty")
	}
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 7 * 24 * 3600, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	return store, nil
}

func NewCookie(store sessions.Store, directory core.Directory) *Cookie {
	return &Cookie{store: store, directory: directory}
}

func (c *Cookie) Authenticate(r *http.Request) (domain.Participant, error) {
	sess, err := c.store.Get(r, SessionName)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("%w: session cookie: %v", domain.ErrUnauthenticated, err)
	}
	raw, _ := sess.Values[ParticipantKey].(string)
	id := domain.ParticipantID(raw)
	if err := id.Validate(); err != nil {
		return domain.Participant{}, fmt.Errorf("%w: no participant in session", domain.ErrUnauthenticated)
	}

	ctx, cancel := context.WithTimeout(r.Context(), directoryLookup)
	defer cancel()
	p, err := c.directory.FindByID(ctx, id)
	if errors.Is(err, domain.ErrUnknownParticipant) {
		return domain.Participant{}, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	if err != nil {
		return domain.Participant{}, err
	}
	return p, nil
}
