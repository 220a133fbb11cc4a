package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"octopus/internal/domain/chat"
)

var secret = []byte("test-secret")

func TestVerifyIssuedToken(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	token, err := Issue(secret, "user-1", chat.RoleCompany, time.Hour, now)
	require.NoError(t, err)

	v := TokenVerifier{Secret: secret, Now: func() time.Time { return now.Add(time.Minute) }}
	p, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", p.UserID)
	require.Equal(t, chat.RoleCompany, p.Role)
	require.Equal(t, token, p.Token)
}

func TestVerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	token, err := Issue(secret, "user-1", chat.RoleCreator, time.Minute, now)
	require.NoError(t, err)

	v := TokenVerifier{Secret: secret, Now: func() time.Time { return now.Add(time.Hour) }}
	_, err = v.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	other := TokenVerifier{Secret: []byte("other"), Now: func() time.Time { return now }}
	_, err = other.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = TokenVerifier{}.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify("  ")
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestVerifyRequiresMarketplaceRole(t *testing.T) {
	token, err := Issue(secret, "user-1", chat.Role("admin"), time.Hour, time.Now())
	require.NoError(t, err)
	_, err = TokenVerifier{Secret: secret}.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseUnverified(t *testing.T) {
	token, err := Issue([]byte("unknown"), "user-2", chat.RoleCreator, time.Hour, time.Now())
	require.NoError(t, err)
	p, err := ParseUnverified(token)
	require.NoError(t, err)
	require.Equal(t, "user-2", p.UserID)

	p, err = TokenVerifier{AllowUnverified: true}.Verify(token)
	require.NoError(t, err)
	require.Equal(t, chat.RoleCreator, p.Role)

	_, err = ParseUnverified("garbage")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestBearerToken(t *testing.T) {
	tok, err := BearerToken("Bearer abc")
	require.NoError(t, err)
	require.Equal(t, "abc", tok)

	tok, err = BearerToken("bearer   xyz ")
	require.NoError(t, err)
	require.Equal(t, "xyz", tok)

	_, err = BearerToken("Basic abc")
	require.ErrorIs(t, err, ErrMissingToken)
	_, err = BearerToken("")
	require.ErrorIs(t, err, ErrMissingToken)
}
