package session

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextProvider(t *testing.T) {
	var p ContextProvider

	_, ok := p.Current(context.Background())
	assert.False(t, ok)

	_, ok = p.Current(WithSession(context.Background(), &Session{}))
	assert.False(t, ok, "empty owner is not a session")

	s, ok := p.Current(WithSession(context.Background(), &Session{OwnerID: "owner-1"}))
	require.True(t, ok)
	assert.Equal(t, "owner-1", s.OwnerID)
}

func TestStatic(t *testing.T) {
	_, ok := Static{}.Current(context.Background())
	assert.False(t, ok)

	s, ok := Static{OwnerID: "cli-user"}.Current(context.Background())
	require.True(t, ok)
	assert.Equal(t, "cli-user", s.OwnerID)
}

func TestVerifier_RoundTrip(t *testing.T) {
	v := NewVerifier([]byte("test-secret"))

	token, err := v.Generate("owner-1", time.Hour)
	require.NoError(t, err)

	owner, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", owner)
}

func TestVerifier_Rejects(t *testing.T) {
	v := NewVerifier([]byte("test-secret"))

	expired, err := v.Generate("owner-1", -time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, ErrExpiredToken)

	other, err := NewVerifier([]byte("other-secret")).Generate("owner-1", time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noSub := signClaims(t, jwt.MapClaims{"aud": Audience, "exp": time.Now().Add(time.Hour).Unix()})
	_, err = v.Verify(noSub)
	assert.ErrorIs(t, err, ErrMissingClaim)

	_, err = v.Verify("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifier_RequiresExpiry(t *testing.T) {
	v := NewVerifier([]byte("test-secret"))

	noExp := signClaims(t, jwt.MapClaims{"sub": "owner-1", "aud": Audience})
	_, err := v.Verify(noExp)
	assert.ErrorIs(t, err, ErrMissingClaim)

	farFuture := signClaims(t, jwt.MapClaims{
		"sub": "owner-1",
		"aud": Audience,
		"exp": time.Now().Add(10 * MaxTokenLifetime).Unix(),
	})
	_, err = v.Verify(farFuture)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Generate("owner-1", 2*MaxTokenLifetime)
	assert.Error(t, err)
}

func TestVerifier_RequiresSessionAudience(t *testing.T) {
	v := NewVerifier([]byte("test-secret"))

	// shaped like a signed object URL token under the same secret
	objectToken := signClaims(t, jwt.MapClaims{
		"sub": "owner-1/conv-1/1700000000000.webm",
		"aud": "coven-sync/object",
		"bkt": "audio",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	_, err := v.Verify(objectToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noAud := signClaims(t, jwt.MapClaims{"sub": "owner-1", "exp": time.Now().Add(time.Hour).Unix()})
	_, err = v.Verify(noAud)
	assert.ErrorIs(t, err, ErrMissingClaim)
}

func TestVerifier_RejectsOtherAlgorithms(t *testing.T) {
	v := NewVerifier([]byte("test-secret"))

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub": "owner-1",
		"aud": Audience,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = v.Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func signClaims(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		token   string
		wantErr bool
	}{
		{"", "", true},
		{"Basic abc", "", true},
		{"Bearer ", "", true},
		{"Bearer abc.def", "abc.def", false},
	}
	for _, tt := range tests {
		token, msg := BearerToken(tt.header)
		assert.Equal(t, tt.token, token, tt.header)
		assert.Equal(t, tt.wantErr, msg != "", tt.header)
	}
}
