package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gongzi-quiz-service/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned for a bearer token that does not verify.
var ErrUnauthorized = errors.New("invalid credentials")

type claims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// IdentityResolver turns a request into the signed-in user. Sign-in itself happens
// elsewhere; this only verifies the HMAC token it issued.
type IdentityResolver struct {
	signingKey []byte
	issuer     string
	allowQuery bool
}

// NewIdentityResolver builds a resolver. With allowQuery, userId/name query parameters
// are trusted when no token is sent, which suits local development.
func NewIdentityResolver(signingKey, issuer string, allowQuery bool) *IdentityResolver {
	return &IdentityResolver{signingKey: []byte(signingKey), issuer: issuer, allowQuery: allowQuery}
}

// Resolve returns nil for anonymous requests.
func (r *IdentityResolver) Resolve(req *http.Request) (*domain.Identity, error) {
	token := bearerToken(req)
	if token != "" {
		return r.parse(token)
	}
	if r.allowQuery {
		q := req.URL.Query()
		if id := q.Get("userId"); id != "" {
			return &domain.Identity{ID: id, DisplayName: q.Get("name"), Email: q.Get("email")}, nil
		}
	}
	return nil, nil
}

// Sign issues a token for ident; used by tests and the dev tooling.
func (r *IdentityResolver) Sign(ident domain.Identity, c jwt.RegisteredClaims) (string, error) {
	c.Subject = ident.ID
	if c.Issuer == "" {
		c.Issuer = r.issuer
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims{Name: ident.DisplayName, Email: ident.Email, RegisteredClaims: c})
	return token.SignedString(r.signingKey)
}

func (r *IdentityResolver) parse(raw string) (*domain.Identity, error) {
	if len(r.signingKey) == 0 {
		return nil, fmt.Errorf("token auth not configured: %w", ErrUnauthorized)
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}
	token, err := jwt.ParseWithClaims(raw, &claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return r.signingKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrUnauthorized)
	}
	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid || c.Subject == "" {
		return nil, fmt.Errorf("invalid token claims: %w", ErrUnauthorized)
	}
	return &domain.Identity{ID: c.Subject, DisplayName: c.Name, Email: c.Email}, nil
}

// bearerToken reads the Authorization header, or the token query parameter that
// browsers must use for websockets.
func bearerToken(req *http.Request) string {
	if h := req.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return req.URL.Query().Get("token")
}

// deviceID identifies the browser or app instance the request belongs to.
func deviceID(req *http.Request) string {
	if id := req.URL.Query().Get("deviceId"); id != "" {
		return id
	}
	return req.Header.Get("X-Device-ID")
}
