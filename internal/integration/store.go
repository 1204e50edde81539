// ABOUTME: Integration secret store keeping one webhook/auth record per owner in keyed local storage
// ABOUTME: Writes replace the record wholesale and clear credentials of inactive auth modes

package integration

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-sync/internal/kv"
)

// DefaultKeyPrefix namespaces integration records in the keyed store.
const DefaultKeyPrefix = "integration-secrets"

// Record is the stored, flattened form of an owner's integration secret.
type Record struct {
	ID            string   `json:"id"`
	ProfileID     string   `json:"profile_id"`
	WebhookURL    string   `json:"webhook_url"`
	AuthType      AuthMode `json:"auth_type"`
	APIKey        *string  `json:"api_key"`
	BasicUsername *string  `json:"basic_username"`
	BasicPassword *string  `json:"basic_password"`
	OAuthToken    *string  `json:"oauth_token"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at"`
}

// Auth rebuilds the tagged union from the flattened columns.
func (r *Record) Auth() Auth {
	return unflatten(ParseAuthMode(string(r.AuthType)), credentials{
		APIKey:        r.APIKey,
		BasicUsername: r.BasicUsername,
		BasicPassword: r.BasicPassword,
		OAuthToken:    r.OAuthToken,
	})
}

// Payload is what a settings form submits. Every credential field may be
// filled in; only those of AuthType are kept.
type Payload struct {
	WebhookURL        string `json:"webhook_url"`
	AuthType          string `json:"auth_type"`
	APIKey            string `json:"api_key"`
	BasicAuthUsername string `json:"basic_auth_username"`
	BasicAuthPassword string `json:"basic_auth_password"`
	OAuthToken        string `json:"oauth_token"`
}

// Auth selects the credentials of the payload's auth type.
func (p Payload) Auth() Auth {
	switch ParseAuthMode(p.AuthType) {
	case AuthAPIKey:
		return APIKeyAuth{Key: p.APIKey}
	case AuthBasic:
		return BasicAuth{Username: p.BasicAuthUsername, Password: p.BasicAuthPassword}
	case AuthOAuth:
		return OAuthAuth{Token: p.OAuthToken}
	default:
		return NoAuth{}
	}
}

// Store reads and writes integration records.
type Store struct {
	kv     kv.Store
	prefix string
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewStore creates a Store over a keyed local store.
func NewStore(store kv.Store, prefix string, logger *slog.Logger) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		kv:     store,
		prefix: prefix,
		logger: logger.With("component", "integration"),
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// Read returns the owner's record, or nil when there is none. Stored data
// that cannot be read or parsed is logged and treated as absent.
func (s *Store) Read(ownerID string) *Record {
	raw, ok, err := s.kv.Get(kv.Key(s.prefix, ownerID))
	if err != nil {
		s.logger.Warn("reading integration secret failed", "profile_id", ownerID, "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		s.logger.Warn("discarding unparseable integration secret", "profile_id", ownerID, "error", err)
		return nil
	}
	return &rec
}

// Write replaces the owner's record with payload. An existing record keeps
// its id and created_at.
func (s *Store) Write(ownerID string, payload Payload) (*Record, error) {
	now := s.now().UTC().Format(time.RFC3339Nano)
	auth := payload.Auth()
	creds := flatten(auth)

	rec := &Record{
		ID:            s.newID(),
		ProfileID:     ownerID,
		WebhookURL:    strings.TrimSpace(payload.WebhookURL),
		AuthType:      auth.Mode(),
		APIKey:        creds.APIKey,
		BasicUsername: creds.BasicUsername,
		BasicPassword: creds.BasicPassword,
		OAuthToken:    creds.OAuthToken,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if existing := s.Read(ownerID); existing != nil {
		if existing.ID != "" {
			rec.ID = existing.ID
		}
		if existing.CreatedAt != "" {
			rec.CreatedAt = existing.CreatedAt
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding integration secret: %w", err)
	}
	if err := s.kv.Set(kv.Key(s.prefix, ownerID), string(data)); err != nil {
		return nil, fmt.Errorf("saving integration secret: %w", err)
	}

	s.logger.Debug("saved integration secret", "profile_id", ownerID, "auth_type", rec.AuthType)
	return rec, nil
}

// Settings is the agent settings form state.
type Settings struct {
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	AvatarURL         *string  `json:"avatar_url"`
	Tools             []string `json:"tools"`
	WebhookURL        string   `json:"webhook_url"`
	AuthType          AuthMode `json:"auth_type"`
	APIKey            string   `json:"api_key"`
	BasicAuthUsername string   `json:"basic_auth_username"`
	BasicAuthPassword string   `json:"basic_auth_password"`
	OAuthToken        string   `json:"oauth_token"`
}

// MergeIntoSettings overlays rec onto settings. Only the credentials of the
// record's auth mode are exposed; a nil record resets the integration fields.
func MergeIntoSettings(settings Settings, rec *Record) Settings {
	settings.WebhookURL = ""
	settings.AuthType = AuthNone
	settings.APIKey = ""
	settings.BasicAuthUsername = ""
	settings.BasicAuthPassword = ""
	settings.OAuthToken = ""

	if rec == nil {
		return settings
	}

	settings.WebhookURL = rec.WebhookURL
	switch auth := rec.Auth().(type) {
	case APIKeyAuth:
		settings.AuthType = AuthAPIKey
		settings.APIKey = auth.Key
	case BasicAuth:
		settings.AuthType = AuthBasic
		settings.BasicAuthUsername = auth.Username
		settings.BasicAuthPassword = auth.Password
	case OAuthAuth:
		settings.AuthType = AuthOAuth
		settings.OAuthToken = auth.Token
	}
	return settings
}
