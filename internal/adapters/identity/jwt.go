// Package identity authenticates websocket upgrade requests.
package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dkeye/Duet/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// TokenQueryParam carries the token for browsers, which cannot set
// headers on a websocket upgrade.
const TokenQueryParam = "access_token"

// Claims is the token payload: sub is the participant id.
type Claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// JWT accepts HS256 tokens signed with a shared secret.
type JWT struct {
	key    []byte
	issuer string
	parser *jwt.Parser
}

func NewJWT(secret, issuer string) (*JWT, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5 * time.Second),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &JWT{key: []byte(secret), issuer: issuer, parser: jwt.NewParser(opts...)}, nil
}

// Issue signs a token for p. The login flow that normally does this lives
// outside this service; Issue serves tests and local tooling.
func (j *JWT) Issue(p domain.Participant, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Name: p.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(p.ID),
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.key)
}

func (j *JWT) Authenticate(r *http.Request) (domain.Participant, error) {
	raw := bearerToken(r)
	if raw == "" {
		return domain.Participant{}, fmt.Errorf("%w: no token", domain.ErrUnauthenticated)
	}
	claims := &Claims{}
	token, err := j.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return j.key, nil
	})
	if err != nil || !token.Valid {
		return domain.Participant{}, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	p, err := domain.NewParticipant(domain.ParticipantID(claims.Subject), claims.Name)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("%w: subject: %v", domain.ErrUnauthenticated, err)
	}
	return p, nil
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get(TokenQueryParam)
}
