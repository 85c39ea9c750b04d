package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dkeye/Duet/internal/domain"
	"github.com/dkeye/Duet/internal/mocks"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// loginCookie plays the external login flow: it stores id in the session
// and returns the resulting cookie.
func loginCookie(t *testing.T, store sessions.Store, id string) *http.Cookie {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(sessions.Sessions(SessionName, store))
	r.GET("/login", func(c *gin.Context) {
		s := sessions.Default(c)
		s.Set(ParticipantKey, id)
		require.NoError(t, s.Save())
		c.Status(http.StatusNoContent)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login", nil))
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func TestCookie_Authenticate(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	dir := mocks.NewMockDirectory(ctrl)
	store, err := NewCookieStore("cookie-secret")
	req.NoError(err)
	provider := NewCookie(store, dir)

	// Given alice logged in
	dir.EXPECT().FindByID(gomock.Any(), domain.ParticipantID("alice")).
		Return(domain.Participant{ID: "alice", DisplayName: "Alice"}, nil)
	r := httptest.NewRequest(http.MethodGet, "/api/ws/chat/bob", nil)
	r.AddCookie(loginCookie(t, store, "alice"))

	// When the upgrade request is authenticated
	p, err := provider.Authenticate(r)

	// Then the directory supplies her display name
	req.NoError(err)
	req.Equal("Alice", p.DisplayName)
}

func TestCookie_Rejects(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	dir := mocks.NewMockDirectory(ctrl)
	store, err := NewCookieStore("cookie-secret")
	req.NoError(err)
	provider := NewCookie(store, dir)

	// no cookie
	_, err = provider.Authenticate(httptest.NewRequest(http.MethodGet, "/", nil))
	req.ErrorIs(err, domain.ErrUnauthenticated)

	// cookie signed by someone else
	foreign, err := NewCookieStore("other-secret")
	req.NoError(err)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(loginCookie(t, foreign, "alice"))
	_, err = provider.Authenticate(r)
	req.ErrorIs(err, domain.ErrUnauthenticated)

	// participant no longer known
	dir.EXPECT().FindByID(gomock.Any(), domain.ParticipantID("ghost")).
		Return(domain.Participant{}, domain.ErrUnknownParticipant)
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(loginCookie(t, store, "ghost"))
	_, err = provider.Authenticate(r)
	req.ErrorIs(err, domain.ErrUnauthenticated)
}
