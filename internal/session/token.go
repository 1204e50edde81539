// ABOUTME: JWT bearer tokens identifying a session owner
// ABOUTME: HS256 tokens scoped by audience and always carrying an expiry

package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// Audience is the "aud" claim carried by session tokens. Tokens minted for
// other purposes, such as signed object URLs, never carry it.
const Audience = "coven-sync/session"

// MaxTokenLifetime bounds how far in the future a session token may expire.
const MaxTokenLifetime = 365 * 24 * time.Hour

// Verifier validates and mints HS256 session tokens.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier creates a verifier with the given secret.
func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret, now: time.Now}
}

// Verify validates the token and returns the owner from the "sub" claim.
// The token must be a session token with an expiry no further out than
// MaxTokenLifetime.
func (v *Verifier) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", ErrExpiredToken
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return "", fmt.Errorf("%w: %v", ErrMissingClaim, err)
	case err != nil:
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	case !token.Valid:
		return "", ErrInvalidToken
	}

	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return "", fmt.Errorf("%w: exp", ErrMissingClaim)
	}
	if exp.Sub(v.now()) > MaxTokenLifetime {
		return "", fmt.Errorf("%w: expiry too far in the future", ErrInvalidToken)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	return sub, nil
}

// Generate mints a session token for ownerID valid for expiresIn.
func (v *Verifier) Generate(ownerID string, expiresIn time.Duration) (string, error) {
	if ownerID == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	if expiresIn > MaxTokenLifetime {
		return "", fmt.Errorf("token lifetime %s exceeds %s", expiresIn, MaxTokenLifetime)
	}
	now := v.now()
	claims := jwt.RegisteredClaims{
		Subject:   ownerID,
		Audience:  jwt.ClaimStrings{Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// BearerToken extracts the token from an Authorization header value.
// Returns the token and an error message (empty if successful).
func BearerToken(header string) (string, string) {
	if header == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}
