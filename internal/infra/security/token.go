package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"octopus/internal/app/session"
	"octopus/internal/domain/chat"
)

var (
	ErrMissingToken = errors.New("security: missing bearer token")
	ErrInvalidToken = errors.New("security: invalid token")
)

// Metadata is the profile block Supabase stores next to the user. The
// marketplace role lives under "role".
type Metadata struct {
	Role string `json:"role,omitempty"`
}

// Claims are the Supabase access token claims the service relies on.
type Claims struct {
	Email        string   `json:"email,omitempty"`
	UserMetadata Metadata `json:"user_metadata"`
	AppMetadata  Metadata `json:"app_metadata"`
	jwt.RegisteredClaims
}

// Principal maps the claims to a viewer. user_metadata wins over app_metadata.
func (c Claims) Principal(token string) (session.Principal, error) {
	raw := c.UserMetadata.Role
	if strings.TrimSpace(raw) == "" {
		raw = c.AppMetadata.Role
	}
	role, err := chat.ParseRole(raw)
	if err != nil {
		return session.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	p := session.Principal{UserID: c.Subject, Role: role, Token: token}
	if err := p.Validate(); err != nil {
		return session.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return p, nil
}

// TokenVerifier checks HS256 access tokens signed with the project secret.
// With AllowUnverified set and no secret, signatures are not checked; this is
// only meant for local development.
type TokenVerifier struct {
	Secret          []byte
	AllowUnverified bool
	Leeway          time.Duration
	Now             func() time.Time
}

func (v TokenVerifier) Verify(token string) (session.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return session.Principal{}, ErrMissingToken
	}
	if len(v.Secret) == 0 {
		if !v.AllowUnverified {
			return session.Principal{}, fmt.Errorf("%w: verifier has no secret", ErrInvalidToken)
		}
		return ParseUnverified(token)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.Leeway),
	}
	if v.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(v.Now))
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.Secret, nil
	}, opts...)
	if err != nil {
		return session.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims.Principal(token)
}

// ParseUnverified reads the principal from a token without checking its
// signature. The terminal client uses it to learn who signed in; servers must
// use TokenVerifier.
func ParseUnverified(token string) (session.Principal, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return session.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims.Principal(token)
}

// Issue signs a token for userID. Used by tests and the dev fixtures.
func Issue(secret []byte, userID string, role chat.Role, ttl time.Duration, now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now()
	}
	claims := Claims{
		UserMetadata: Metadata{Role: string(role)},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// BearerToken extracts the token of an "Authorization: Bearer" header value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}
