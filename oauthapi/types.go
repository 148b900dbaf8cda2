package oauthapi

import (
	"errors"
	"fmt"
	"strings"
)

// Grant types accepted by the token endpoint.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
)

// TokenResponse is the JSON body of a successful token endpoint call.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// User is the identity returned by GET /users/me.
type User struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Name  string `json:"name"`
	Login string `json:"login"`
}

// ErrorResponse is the OAuth2 error body.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// validateTokenResponse validates the OAuth token response
func validateTokenResponse(resp *TokenResponse) error {
	if resp.AccessToken == "" {
		return errors.New("access_token is empty")
	}

	if resp.ExpiresIn <= 0 {
		return fmt.Errorf("expires_in must be positive, got: %d", resp.ExpiresIn)
	}

	// Box answers "bearer"; the type is optional in OAuth 2.0.
	if resp.TokenType != "" && !strings.EqualFold(resp.TokenType, "bearer") {
		return fmt.Errorf("unexpected token_type: %s (expected Bearer)", resp.TokenType)
	}

	return nil
}
