// ABOUTME: Webhook authentication modeled as a tagged union of none, API key, basic and OAuth
// ABOUTME: Flattened into nullable columns only at the storage boundary

package integration

// AuthMode names the active authentication scheme.
type AuthMode string

const (
	AuthNone   AuthMode = "none"
	AuthAPIKey AuthMode = "apiKey"
	AuthBasic  AuthMode = "basic"
	AuthOAuth  AuthMode = "oauth"
)

// ParseAuthMode maps unknown or empty values to AuthNone.
func ParseAuthMode(s string) AuthMode {
	switch m := AuthMode(s); m {
	case AuthAPIKey, AuthBasic, AuthOAuth:
		return m
	default:
		return AuthNone
	}
}

// Auth is one of NoAuth, APIKeyAuth, BasicAuth or OAuthAuth.
type Auth interface {
	Mode() AuthMode
	isAuth()
}

// NoAuth sends webhook requests without credentials.
type NoAuth struct{}

// APIKeyAuth sends an API key.
type APIKeyAuth struct{ Key string }

// BasicAuth sends HTTP basic credentials.
type BasicAuth struct{ Username, Password string }

// OAuthAuth sends a bearer token.
type OAuthAuth struct{ Token string }

func (NoAuth) Mode() AuthMode     { return AuthNone }
func (APIKeyAuth) Mode() AuthMode { return AuthAPIKey }
func (BasicAuth) Mode() AuthMode  { return AuthBasic }
func (OAuthAuth) Mode() AuthMode  { return AuthOAuth }

func (NoAuth) isAuth()     {}
func (APIKeyAuth) isAuth() {}
func (BasicAuth) isAuth()  {}
func (OAuthAuth) isAuth()  {}

// credentials is the flattened column form of an Auth. Fields not owned by
// the active mode are always nil.
type credentials struct {
	APIKey        *string
	BasicUsername *string
	BasicPassword *string
	OAuthToken    *string
}

func flatten(a Auth) credentials {
	switch v := a.(type) {
	case APIKeyAuth:
		return credentials{APIKey: &v.Key}
	case BasicAuth:
		return credentials{BasicUsername: &v.Username, BasicPassword: &v.Password}
	case OAuthAuth:
		return credentials{OAuthToken: &v.Token}
	default:
		return credentials{}
	}
}

func unflatten(mode AuthMode, c credentials) Auth {
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	switch mode {
	case AuthAPIKey:
		return APIKeyAuth{Key: deref(c.APIKey)}
	case AuthBasic:
		return BasicAuth{Username: deref(c.BasicUsername), Password: deref(c.BasicPassword)}
	case AuthOAuth:
		return OAuthAuth{Token: deref(c.OAuthToken)}
	default:
		return NoAuth{}
	}
}
