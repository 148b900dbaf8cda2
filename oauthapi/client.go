package oauthapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/go-authgate/boxsession/boxerr"
)

// Timeout configuration for different operations
const (
	tokenExchangeTimeout = 10 * time.Second
	refreshTokenTimeout  = 10 * time.Second
	revokeTimeout        = 5 * time.Second
	userInfoTimeout      = 10 * time.Second
)

// Client issues the OAuth2 grant, revoke and user-info calls. Only the
// user-info GET is retried; grant and revoke POSTs are sent once because a
// refresh token must not be replayed.
type Client struct {
	endpoints Endpoints
	http      *retry.Client
	grant     *retry.Client
	base      *http.Client
	log       zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRetryClient replaces the default retrying HTTP client used for
// user-info requests.
func WithRetryClient(rc *retry.Client) Option {
	return func(c *Client) {
		c.http = rc
	}
}

// WithHTTPClient sets the transport for every request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.base = hc
	}
}

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// NewClient validates the endpoints and builds a client.
func NewClient(endpoints Endpoints, opts ...Option) (*Client, error) {
	if err := endpoints.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		endpoints: endpoints,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		rc, err := retry.NewClient(retry.WithHTTPClient(c.base))
		if err != nil {
			return nil, fmt.Errorf("failed to create retry client: %w", err)
		}
		c.http = rc
	}

	grant, err := retry.NewClient(
		retry.WithHTTPClient(c.base),
		retry.WithMaxRetries(0),
		retry.WithRetryableChecker(noRetry),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create grant client: %w", err)
	}
	c.grant = grant
	return c, nil
}

func noRetry(error, *http.Response) bool { return false }

// Endpoints returns the configured endpoints.
func (c *Client) Endpoints() Endpoints {
	return c.endpoints
}

// AuthorizeURL builds the interactive login URL the user has to visit to
// obtain an authorization code.
func (c *Client) AuthorizeURL(creds Credentials, state string) string {
	return c.oauthConfig(creds).AuthCodeURL(state)
}

func (c *Client) oauthConfig(creds Credentials) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.endpoints.AuthURL,
			TokenURL:  c.endpoints.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// ExchangeCode trades a one-time authorization code for a token pair.
func (c *Client) ExchangeCode(
	ctx context.Context,
	creds Credentials,
	code string,
) (*TokenResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, tokenExchangeTimeout)
	defer cancel()

	data := url.Values{}
	data.Set("grant_type", GrantAuthorizationCode)
	data.Set("code", code)
	data.Set("client_id", creds.ClientID)
	data.Set("client_secret", creds.ClientSecret)
	if creds.RedirectURL != "" {
		data.Set("redirect_uri", creds.RedirectURL)
	}

	resp, err := c.postToken(reqCtx, c.endpoints.TokenURL, data)
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}
	return resp, nil
}

// Refresh runs the refresh_token grant. When the server does not rotate the
// refresh token, the one passed in is kept.
func (c *Client) Refresh(
	ctx context.Context,
	creds Credentials,
	refreshToken string,
) (*TokenResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, refreshTokenTimeout)
	defer cancel()

	data := url.Values{}
	data.Set("grant_type", GrantRefreshToken)
	data.Set("refresh_token", refreshToken)
	data.Set("client_id", creds.ClientID)
	data.Set("client_secret", creds.ClientSecret)

	resp, err := c.postToken(reqCtx, c.endpoints.TokenURL, data)
	if err != nil {
		return nil, fmt.Errorf("refresh failed: %w", err)
	}

	if resp.RefreshToken == "" {
		resp.RefreshToken = refreshToken
	}
	return resp, nil
}

// Revoke invalidates token server side.
func (c *Client) Revoke(ctx context.Context, creds Credentials, token string) error {
	reqCtx, cancel := context.WithTimeout(ctx, revokeTimeout)
	defer cancel()

	data := url.Values{}
	data.Set("token", token)
	data.Set("client_id", creds.ClientID)
	data.Set("client_secret", creds.ClientSecret)

	resp, body, err := c.postForm(reqCtx, c.endpoints.RevokeURL, data)
	if err != nil {
		return fmt.Errorf("revoke request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke failed: %w", retrieveError(resp, body))
	}
	return nil
}

// CurrentUser fetches the identity that owns accessToken.
func (c *Client) CurrentUser(ctx context.Context, accessToken string) (*User, error) {
	reqCtx, cancel := context.WithTimeout(ctx, userInfoTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(
		reqCtx,
		http.MethodGet,
		strings.TrimRight(c.endpoints.APIURL, "/")+"/users/me",
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.DoWithContext(reqCtx, req)
	if err != nil {
		return nil, fmt.Errorf("user info request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &boxerr.APIError{}
		if jsonErr := json.Unmarshal(body, apiErr); jsonErr != nil {
			apiErr = &boxerr.APIError{Message: string(body)}
		}
		apiErr.StatusCode = resp.StatusCode
		return nil, fmt.Errorf("user info failed: %w", apiErr)
	}

	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to parse user response: %w", err)
	}
	return &user, nil
}

func (c *Client) postToken(
	ctx context.Context,
	endpoint string,
	data url.Values,
) (*TokenResponse, error) {
	resp, body, err := c.postForm(ctx, endpoint, data)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		rerr := retrieveError(resp, body)
		c.log.Debug().
			Int("status", resp.StatusCode).
			Str("error", rerr.ErrorCode).
			Str("grant_type", data.Get("grant_type")).
			Msg("token endpoint rejected request")
		return nil, rerr
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if err := validateTokenResponse(&tokenResp); err != nil {
		return nil, fmt.Errorf("invalid token response: %w", err)
	}
	return &tokenResp, nil
}

func (c *Client) postForm(
	ctx context.Context,
	endpoint string,
	data url.Values,
) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		endpoint,
		strings.NewReader(data.Encode()),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.grant.DoWithContext(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp, body, nil
}

// retrieveError wraps a non-200 OAuth response the way golang.org/x/oauth2
// reports it, so callers can classify it with errors.As.
func retrieveError(resp *http.Response, body []byte) *oauth2.RetrieveError {
	rerr := &oauth2.RetrieveError{
		Response: resp,
		Body:     body,
	}
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		rerr.ErrorCode = errResp.Error
		rerr.ErrorDescription = errResp.ErrorDescription
	}
	return rerr
}
