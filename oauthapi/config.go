// Package oauthapi talks to the Box OAuth2 token, revoke and user-info
// endpoints.
package oauthapi

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Default Box endpoints.
const (
	DefaultAuthURL   = "https://account.box.com/api/oauth2/authorize"
	DefaultTokenURL  = "https://api.box.com/oauth2/token"
	DefaultRevokeURL = "https://api.box.com/oauth2/revoke"
	DefaultAPIURL    = "https://api.box.com/2.0"
)

var validate = validator.New()

// Endpoints holds the URLs the client talks to.
type Endpoints struct {
	AuthURL   string `yaml:"auth_url"   validate:"required,url"`
	TokenURL  string `yaml:"token_url"  validate:"required,url"`
	RevokeURL string `yaml:"revoke_url" validate:"required,url"`
	APIURL    string `yaml:"api_url"    validate:"required,url"`
}

// DefaultEndpoints returns the production Box endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		AuthURL:   DefaultAuthURL,
		TokenURL:  DefaultTokenURL,
		RevokeURL: DefaultRevokeURL,
		APIURL:    DefaultAPIURL,
	}
}

// EndpointsFromBase derives the token, revoke and API endpoints from a single
// server base URL, which is what test servers and proxies expose.
func EndpointsFromBase(baseURL string) Endpoints {
	base := strings.TrimRight(baseURL, "/")
	return Endpoints{
		AuthURL:   base + "/oauth2/authorize",
		TokenURL:  base + "/oauth2/token",
		RevokeURL: base + "/oauth2/revoke",
		APIURL:    base + "/2.0",
	}
}

// Validate checks that every endpoint is an absolute URL.
func (e Endpoints) Validate() error {
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("invalid endpoints: %w", err)
	}
	return nil
}

// Credentials identify the OAuth client application.
type Credentials struct {
	ClientID     string `yaml:"client_id"     validate:"required"`
	ClientSecret string `yaml:"client_secret" validate:"required"`
	RedirectURL  string `yaml:"redirect_url"  validate:"omitempty,url"`
}

// Validate reports missing client id or secret.
func (c Credentials) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid client credentials: %w", err)
	}
	return nil
}

// Or returns c with empty fields filled from fallback.
func (c Credentials) Or(fallback Credentials) Credentials {
	if c.ClientID == "" {
		c.ClientID = fallback.ClientID
	}
	if c.ClientSecret == "" {
		c.ClientSecret = fallback.ClientSecret
	}
	if c.RedirectURL == "" {
		c.RedirectURL = fallback.RedirectURL
	}
	return c
}
