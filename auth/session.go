package auth

import (
	"context"
	"net/http"
	"sync"

	"golang.org/x/oauth2"

	"github.com/go-authgate/boxsession/oauthapi"
)

// Session is a caller's handle on one user's credentials. Its AuthInfo is a
// private copy that the manager updates in place on refresh.
type Session struct {
	mgr *Manager

	mu       sync.RWMutex
	info     *AuthInfo
	userID   string
	creds    oauthapi.Credentials
	provider RefreshProvider
	err      error
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithCredentials sets session-level client credentials. Empty fields fall
// back to the manager defaults.
func WithCredentials(c oauthapi.Credentials) SessionOption {
	return func(s *Session) {
		s.creds = c
	}
}

// WithRefreshProvider replaces the refresh-token grant for this session.
func WithRefreshProvider(p RefreshProvider) SessionOption {
	return func(s *Session) {
		s.provider = p
	}
}

// NewSession returns an unauthenticated session.
func NewSession(m *Manager, opts ...SessionOption) *Session {
	s := &Session{mgr: m, info: &AuthInfo{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSessionFromAccessToken wraps a bare access token whose owner is not
// known yet. The first refresh or user-info fetch resolves the identity.
func NewSessionFromAccessToken(m *Manager, accessToken string, opts ...SessionOption) *Session {
	s := NewSession(m, opts...)
	s.info.AccessToken = accessToken
	return s
}

// UserID returns the user the session is bound to, or "".
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.userID != "" {
		return s.userID
	}
	return s.info.UserID()
}

// AuthInfo returns a copy of the session credentials.
func (s *Session) AuthInfo() *AuthInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info.Clone()
}

// Err returns the failure the session was left in, if any. An identity
// mismatch during refresh is reported here.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Authenticate exchanges an authorization code and binds the session to the
// user that owns the resulting credentials.
func (s *Session) Authenticate(ctx context.Context, code string) (*AuthInfo, error) {
	return s.mgr.Create(s, code).Wait(ctx)
}

// Refresh refreshes the session credentials through the manager.
func (s *Session) Refresh(ctx context.Context) (*AuthInfo, error) {
	return s.mgr.Refresh(s).Wait(ctx)
}

// ValidToken returns an access token that does not expire within the
// manager's skew, refreshing first if needed.
func (s *Session) ValidToken(ctx context.Context) (string, error) {
	info := s.AuthInfo()
	if info.AccessToken == "" {
		return "", ErrNotAuthenticated
	}
	if !info.Expired(s.mgr.now(), s.mgr.skew) {
		return info.AccessToken, nil
	}
	next, err := s.Refresh(ctx)
	if err != nil {
		return "", err
	}
	return next.AccessToken, nil
}

// Token implements oauth2.TokenSource.
func (s *Session) Token() (*oauth2.Token, error) {
	if _, err := s.ValidToken(context.Background()); err != nil {
		return nil, err
	}
	return s.AuthInfo().Token(), nil
}

// Logout revokes and forgets the session credentials.
func (s *Session) Logout(ctx context.Context) error {
	_, err := s.mgr.Logout(s).Wait(ctx)
	return err
}

// ReAuthenticate asks the refresh provider to start an interactive login.
// It reports false when no provider is set or the provider declined.
func (s *Session) ReAuthenticate() bool {
	s.mu.RLock()
	p, userID := s.provider, s.userID
	s.mu.RUnlock()
	if p == nil {
		return false
	}
	return p.LaunchInteractiveAuth(userID, s)
}

// Client returns an HTTP client that authenticates requests with the
// session and refreshes once on 401.
func (s *Session) Client() *http.Client {
	return &http.Client{Transport: &Transport{Session: s}}
}

var _ oauth2.TokenSource = (*Session)(nil)

// snapshot returns what a task needs: a copy of the credentials, the
// expected user id, and the effective client credentials and provider.
func (s *Session) snapshot() (*AuthInfo, string, oauthapi.Credentials, RefreshProvider) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info.Clone(), s.userID, s.creds.Or(s.mgr.creds), s.provider
}

// apply copies refreshed credentials into the live AuthInfo.
func (s *Session) apply(info *AuthInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info.copyFrom(info)
	if s.userID == "" {
		s.userID = info.UserID()
	}
}

// bind sets the credentials of a freshly authenticated session and clears
// any previous failure.
func (s *Session) bind(info *AuthInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info.copyFrom(info)
	s.userID = info.UserID()
	s.err = nil
}

func (s *Session) wipe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info.wipe()
	s.userID = ""
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

