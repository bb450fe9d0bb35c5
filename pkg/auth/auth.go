// Package auth applies repository mirror credentials to HTTP requests.
package auth

import (
	"fmt"
	"net/http"
)

// ErrAuthType is returned for an unknown authentication type.
var ErrAuthType = fmt.Errorf("unknown authentication type")

// Authenticator defines the interface for applying authentication to HTTP requests.
type Authenticator interface {
	Apply(req *http.Request) error
	Type() Type
}

// Type represents the type of authentication.
type Type string

// Authentication types.
const (
	// NoAuthType sends requests without credentials.
	NoAuthType Type = ""
	// BasicAuthType represents HTTP Basic Authentication.
	BasicAuthType Type = "basic"
	// HeaderAuthType represents custom header-based authentication.
	HeaderAuthType Type = "header"
	// BearerAuthType represents Bearer token authentication.
	BearerAuthType Type = "bearer"
)

// Config is the credentials section of the repository config.
type Config struct {
	Type     Type              `yaml:"type,omitempty"`
	Username string            `yaml:"username,omitempty"`
	Password string            `yaml:"password,omitempty"`
	Token    string            `yaml:"token,omitempty"`
	Headers  map[string]string `yaml:"headers,omitempty"`
}

// New returns the Authenticator for cfg, or nil when cfg has no type.
func New(cfg Config) (Authenticator, error) {
	switch cfg.Type {
	case NoAuthType:
		return nil, nil
	case BasicAuthType:
		return BasicAuth{Username: cfg.Username, Password: cfg.Password}, nil
	case BearerAuthType:
		if cfg.Token == "" {
			return nil, fmt.Errorf("bearer authentication requires a token")
		}
		return BearerAuth{Token: cfg.Token}, nil
	case HeaderAuthType:
		if len(cfg.Headers) == 0 {
			return nil, fmt.Errorf("header authentication requires headers")
		}
		return HeaderAuth{Headers: cfg.Headers}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrAuthType, cfg.Type)
	}
}

// BasicAuth represents HTTP Basic Authentication credentials.
type BasicAuth struct {
	Username string
	Password string
}

// Apply adds Basic Authentication headers to the HTTP request.
func (b BasicAuth) Apply(req *http.Request) error {
	req.SetBasicAuth(b.Username, b.Password)
	return nil
}

// Type returns BasicAuthType.
func (b BasicAuth) Type() Type { return BasicAuthType }

// HeaderAuth sets fixed headers, for mirrors keyed by an API token.
type HeaderAuth struct {
	Headers map[string]string
}

// Apply adds the headers to the HTTP request.
func (h HeaderAuth) Apply(req *http.Request) error {
	for k, v := range h.Headers {
		req.Header.Set(k, v)
	}
	return nil
}

// Type returns HeaderAuthType.
func (h HeaderAuth) Type() Type { return HeaderAuthType }

// BearerAuth represents Bearer token authentication.
type BearerAuth struct {
	Token string
}

// Apply sets the Authorization header.
func (b BearerAuth) Apply(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+b.Token)
	return nil
}

// Type returns BearerAuthType.
func (b BearerAuth) Type() Type { return BearerAuthType }
