package core

import (
	"net/http"

	"github.com/dkeye/Duet/internal/domain"
)

// IdentityProvider authenticates the request that opens a connection.
type IdentityProvider interface {
	Authenticate(r *http.Request) (domain.Participant, error)
}
