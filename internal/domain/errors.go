package domain

import "errors"

var (
	// Connection-fatal.
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidPairing  = errors.New("invalid pairing")

	// Event-local: the triggering event is dropped, the session stays up.
	ErrUnknownParticipant = errors.New("unknown participant")
	ErrMalformedPayload   = errors.New("malformed payload")
	ErrNotFound           = errors.New("message not found")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrCipherFailure      = errors.New("cipher failure")
)

// Reason is the code sent to the client when a connection is rejected.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrInvalidPairing):
		return "invalid_pairing"
	default:
		return "internal"
	}
}
