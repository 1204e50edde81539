// ABOUTME: Opaque current-session provider carrying the authenticated owner through context
// ABOUTME: Absence of a session is a valid state reported as (nil, false)

package session

import (
	"context"
)

// Session identifies the authenticated owner.
type Session struct {
	OwnerID string
}

// Provider exposes the current session, if any.
type Provider interface {
	Current(ctx context.Context) (*Session, bool)
}

type sessionKey struct{}

// WithSession returns a new context carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext retrieves the session from ctx, returning nil if not present.
func FromContext(ctx context.Context) *Session {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	if !ok {
		return nil
	}
	return s
}

// ContextProvider reads the session attached by WithSession.
type ContextProvider struct{}

// Current implements Provider.
func (ContextProvider) Current(ctx context.Context) (*Session, bool) {
	s := FromContext(ctx)
	if s == nil || s.OwnerID == "" {
		return nil, false
	}
	return s, true
}

// Static always reports the same owner. An empty OwnerID means signed out.
type Static struct {
	OwnerID string
}

// Current implements Provider.
func (p Static) Current(ctx context.Context) (*Session, bool) {
	if p.OwnerID == "" {
		return nil, false
	}
	return &Session{OwnerID: p.OwnerID}, true
}
