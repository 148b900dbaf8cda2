// Package auth manages the OAuth2 credential lifecycle of Box users: initial
// authorization-code exchange, refresh, revoke, multi-account storage and
// failure classification.
//
// A single Manager is created at process start and shared by every Session.
// All token-endpoint calls go through one serial executor, concurrent
// refreshes of the same user are joined into one call, and fatal refresh
// failures purge the stored credentials before they are reported.
package auth

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/go-authgate/boxsession/boxerr"
	"github.com/go-authgate/boxsession/executor"
	"github.com/go-authgate/boxsession/oauthapi"
)

const (
	// DefaultGraceWindow is how recently cached credentials must have been
	// refreshed for a stale session to adopt them instead of refreshing again.
	DefaultGraceWindow = 15 * time.Second

	// DefaultExpirySkew is how early a session refreshes before expiry.
	DefaultExpirySkew = 60 * time.Second
)

// TokenService is the OAuth endpoint collaborator. *oauthapi.Client
// implements it.
type TokenService interface {
	ExchangeCode(ctx context.Context, creds oauthapi.Credentials, code string) (*oauthapi.TokenResponse, error)
	Refresh(ctx context.Context, creds oauthapi.Credentials, refreshToken string) (*oauthapi.TokenResponse, error)
	Revoke(ctx context.Context, creds oauthapi.Credentials, token string) error
	CurrentUser(ctx context.Context, accessToken string) (*oauthapi.User, error)
}

var _ TokenService = (*oauthapi.Client)(nil)

// Manager is the authority over cached credentials.
type Manager struct {
	svc     TokenService
	storage Storage
	exec    *executor.Serial
	ownExec bool
	creds   oauthapi.Credentials
	log     zerolog.Logger
	now     func() time.Time
	grace   time.Duration
	skew    time.Duration

	// mu guards infos, lastUserID and the load state, and serializes
	// storage calls.
	mu         sync.Mutex
	infos      map[string]*AuthInfo
	lastUserID string
	loaded     bool
	loadErr    error
	dirty      bool
	// removals is a sequence bumped on every removal; removedAt holds the
	// value at each user's last removal. A refresh that started before a
	// user was removed must not bring the user back.
	removals  uint64
	removedAt map[string]uint64

	// inflight holds one refresh per key: the user id, or the raw access
	// token while the identity is unknown.
	inflight singleflight.Group

	lmu       sync.RWMutex
	listeners map[uuid.UUID]Listener
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithGraceWindow overrides DefaultGraceWindow.
func WithGraceWindow(d time.Duration) Option {
	return func(m *Manager) {
		m.grace = d
	}
}

// WithExpirySkew overrides DefaultExpirySkew.
func WithExpirySkew(d time.Duration) Option {
	return func(m *Manager) {
		m.skew = d
	}
}

// WithDefaultCredentials sets the client id and secret used by sessions
// that do not carry their own.
func WithDefaultCredentials(c oauthapi.Credentials) Option {
	return func(m *Manager) {
		m.creds = c
	}
}

// WithExecutor shares an existing executor instead of starting one. The
// manager does not close a shared executor.
func WithExecutor(e *executor.Serial) Option {
	return func(m *Manager) {
		m.exec = e
	}
}

// NewManager builds a manager. Stored credentials are loaded lazily on first
// use.
func NewManager(svc TokenService, storage Storage, opts ...Option) *Manager {
	m := &Manager{
		svc:       svc,
		storage:   storage,
		log:       zerolog.Nop(),
		now:       time.Now,
		grace:     DefaultGraceWindow,
		skew:      DefaultExpirySkew,
		infos:     make(map[string]*AuthInfo),
		removedAt: make(map[string]uint64),
		listeners: make(map[uuid.UUID]Listener),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.exec == nil {
		m.exec = executor.NewSerial(executor.WithLogger(m.log))
		m.ownExec = true
	}
	return m
}

// Close stops the executor after queued work drained and flushes in-memory
// changes that could not be persisted earlier.
func (m *Manager) Close(ctx context.Context) error {
	var errs []error
	if m.ownExec {
		if err := m.exec.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to drain auth executor: %w", err))
		}
	}

	m.mu.Lock()
	if m.loaded && m.dirty {
		if err := m.persistLocked(); err != nil {
			errs = append(errs, err)
		}
	}
	m.mu.Unlock()
	return errors.Join(errs...)
}

// Create exchanges an authorization code obtained from the interactive login
// for credentials, resolves the owning user and stores the result.
func (m *Manager) Create(s *Session, code string) *Task {
	_, _, creds, _ := s.snapshot()
	log := m.taskLogger("create")
	t := newTask(s)

	fut, err := executor.Submit(m.exec, func(ctx context.Context) (*AuthInfo, error) {
		return m.exchangeCode(ctx, creds, code)
	})

	go func() {
		if err != nil {
			t.complete(nil, m.authenticationFailed(log, &AuthInfo{}, err))
			return
		}
		info, err := fut.Wait(context.Background())
		if err != nil {
			t.complete(nil, m.authenticationFailed(log, &AuthInfo{}, err))
			return
		}
		info, err = m.onAuthenticated(log, s, info)
		t.complete(info, err)
	}()
	return t
}

// Authenticated registers credentials obtained outside the manager, for
// example by a host-provided login flow. A missing user identity is fetched
// before the credentials are stored.
func (m *Manager) Authenticated(s *Session, info *AuthInfo) *Task {
	log := m.taskLogger("create")
	t := newTask(s)
	info = info.Clone()
	go func() {
		info, err := m.onAuthenticated(log, s, info)
		t.complete(info, err)
	}()
	return t
}

func (m *Manager) exchangeCode(
	ctx context.Context,
	creds oauthapi.Credentials,
	code string,
) (*AuthInfo, error) {
	if err := creds.Validate(); err != nil {
		return nil, misconfigured("create", err)
	}

	resp, err := m.svc.ExchangeCode(ctx, creds, code)
	if err != nil {
		return nil, err
	}

	info := &AuthInfo{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    int64(resp.ExpiresIn),
		ClientID:     creds.ClientID,
		RefreshedAt:  m.now(),
	}

	user, err := m.svc.CurrentUser(ctx, info.AccessToken)
	if err != nil {
		return nil, err
	}
	if user.ID != "" {
		info.User = &User{ID: user.ID, Name: user.Name, Login: user.Login}
	}
	return info, nil
}

// onAuthenticated completes a login. Credentials without a known user are an
// intermediate state and trigger one more user-info fetch.
func (m *Manager) onAuthenticated(log zerolog.Logger, s *Session, info *AuthInfo) (*AuthInfo, error) {
	if info == nil || info.AccessToken == "" {
		return nil, m.authenticationFailed(log, info, ErrNotAuthenticated)
	}

	if info.UserID() == "" {
		fut, err := executor.Submit(m.exec, func(ctx context.Context) (*User, error) {
			return m.fetchUser(ctx, info.AccessToken)
		})
		var user *User
		if err == nil {
			user, err = fut.Wait(context.Background())
		}
		if err != nil {
			return nil, m.authenticationFailed(log, info, err)
		}
		info.User = user
	}

	userID := info.UserID()
	s.bind(info)

	m.mu.Lock()
	_ = m.loadLocked() // reported by persistLocked
	m.infos[userID] = info.Clone()
	m.lastUserID = userID
	perr := m.persistLocked()
	m.mu.Unlock()
	if perr != nil {
		log.Warn().Err(perr).Msg("credentials not persisted")
	}

	log.Info().Str("user", userID).Msg("user authenticated")
	m.notifyCreated(info)
	return info, nil
}

func (m *Manager) authenticationFailed(log zerolog.Logger, info *AuthInfo, err error) error {
	ae := classify("create", info.UserID(), err)
	log.Warn().Err(err).Str("kind", ae.Kind.String()).Msg("authentication failed")
	m.notifyFailure(info, ae)
	return ae
}

// Refresh returns fresh credentials for the session's user. If the cached
// credentials were refreshed within the grace window the session adopts them
// without a network call; if a refresh for the same user is already running
// the caller joins it.
func (m *Manager) Refresh(s *Session) *Task {
	cur, expected, creds, provider := s.snapshot()
	userID := expected
	if userID == "" {
		userID = cur.UserID()
	}

	if userID != "" {
		m.mu.Lock()
		_ = m.loadLocked()
		cached := m.infos[userID].Clone()
		m.mu.Unlock()

		if cached != nil &&
			cached.AccessToken != cur.AccessToken &&
			m.now().Sub(cached.RefreshedAt) < m.grace {
			m.log.Debug().Str("user", userID).Msg("reusing credentials refreshed moments ago")
			s.apply(cached)
			return completedTask(s, cached, nil)
		}
	}

	key := userID
	if key == "" {
		key = cur.AccessToken
	}
	m.mu.Lock()
	started := m.removals
	m.mu.Unlock()

	ch := m.inflight.DoChan(key, func() (any, error) {
		return m.runRefresh(s, cur, userID, expected, creds, provider, started)
	})
	return joinTask(s, ch)
}

// runRefresh executes one refresh cycle. Returning removes the key from the
// in-flight registry, so everything visible to listeners happens first.
func (m *Manager) runRefresh(
	s *Session,
	cur *AuthInfo,
	userID, expected string,
	creds oauthapi.Credentials,
	provider RefreshProvider,
	started uint64,
) (any, error) {
	log := m.taskLogger("refresh")
	if userID != "" {
		log = log.With().Str("user", userID).Logger()
	}

	fut, err := executor.Submit(m.exec, func(ctx context.Context) (*AuthInfo, error) {
		return m.refreshCredentials(ctx, cur, creds, provider)
	})
	var next *AuthInfo
	if err == nil {
		next, err = fut.Wait(context.Background())
	}
	if err != nil {
		return nil, m.refreshFailed(log, cur, userID, err)
	}

	m.mu.Lock()
	_ = m.loadLocked()
	if id := next.UserID(); m.removedAt[id] > started {
		m.mu.Unlock()
		log.Info().Str("user", id).Msg("user logged out during refresh, dropping credentials")
		loggedOut := &AuthError{Op: "refresh", UserID: id, Kind: boxerr.KindOther, Err: ErrUnknownUser}
		s.fail(loggedOut)
		return nil, loggedOut
	}
	s.apply(next)
	m.infos[next.UserID()] = next.Clone()
	perr := m.persistLocked()
	m.mu.Unlock()
	if perr != nil {
		log.Warn().Err(perr).Msg("refreshed credentials not persisted")
	}

	log.Info().Time("expires_at", next.ExpiresAt()).Msg("credentials refreshed")
	m.notifyRefreshed(next)

	if expected != "" && next.UserID() != expected {
		mismatch := &AuthError{
			Op:     "refresh",
			UserID: expected,
			Kind:   boxerr.KindOther,
			Err:    fmt.Errorf("%w: expected %s, got %s", ErrIdentityMismatch, expected, next.UserID()),
		}
		log.Error().Str("actual_user", next.UserID()).Msg("refresh returned a different user")
		s.fail(mismatch)
		return next, mismatch
	}
	return next, nil
}

// refreshCredentials runs on the executor and performs all network I/O of a
// refresh.
func (m *Manager) refreshCredentials(
	ctx context.Context,
	cur *AuthInfo,
	creds oauthapi.Credentials,
	provider RefreshProvider,
) (*AuthInfo, error) {
	var next *AuthInfo
	if provider != nil {
		info, err := provider.RefreshAuthInfo(ctx, cur.Clone())
		if err != nil {
			return nil, err
		}
		if info == nil {
			return nil, &AuthError{
				Op:   "refresh",
				Kind: boxerr.KindOther,
				Err:  errors.New("refresh provider returned no credentials"),
			}
		}
		next = info.Clone()
	} else {
		if err := creds.Validate(); err != nil {
			return nil, misconfigured("refresh", err)
		}
		if cur.RefreshToken == "" {
			return nil, &AuthError{Op: "refresh", Kind: boxerr.KindInvalidGrant, Err: ErrNoRefreshToken}
		}

		resp, err := m.svc.Refresh(ctx, creds, cur.RefreshToken)
		if err != nil {
			return nil, err
		}
		next = cur.Clone()
		next.AccessToken = resp.AccessToken
		next.RefreshToken = resp.RefreshToken
		next.ExpiresIn = int64(resp.ExpiresIn)
		next.ClientID = creds.ClientID
	}
	next.RefreshedAt = m.now()

	if next.UserID() == "" || provider != nil {
		user, err := m.fetchUser(ctx, next.AccessToken)
		if err != nil {
			return nil, err
		}
		next.User = user
	}
	return next, nil
}

// refreshFailed classifies err, purges the user's credentials when the
// failure forces a new login, and notifies listeners.
func (m *Manager) refreshFailed(log zerolog.Logger, cur *AuthInfo, userID string, err error) error {
	ae := classify("refresh", userID, err)

	if ae.Fatal && userID != "" {
		m.mu.Lock()
		_ = m.loadLocked()
		m.removeLocked(userID)
		perr := m.persistLocked()
		m.mu.Unlock()
		if perr != nil {
			log.Warn().Err(perr).Msg("purge not persisted")
		}
		log.Warn().Err(err).Str("kind", ae.Kind.String()).Msg("fatal refresh failure, credentials purged")
	} else {
		log.Warn().Err(err).Str("kind", ae.Kind.String()).Msg("refresh failed")
	}

	m.notifyFailure(cur, ae)
	return ae
}

// Logout revokes the session's token (best effort) and removes the user's
// credentials locally. A failed revoke is passed to listeners but does not
// fail the logout.
func (m *Manager) Logout(s *Session) *Task {
	cur, expected, creds, _ := s.snapshot()
	userID := expected
	if userID == "" {
		userID = cur.UserID()
	}
	log := m.taskLogger("logout").With().Str("user", userID).Logger()
	t := newTask(nil)

	fut, err := executor.Submit(m.exec, func(ctx context.Context) (struct{}, error) {
		if cur.AccessToken == "" {
			return struct{}{}, nil
		}
		if err := creds.Validate(); err != nil {
			return struct{}{}, misconfigured("logout", err)
		}
		return struct{}{}, m.svc.Revoke(ctx, creds, cur.AccessToken)
	})

	go func() {
		revokeErr := err
		if revokeErr == nil {
			_, revokeErr = fut.Wait(context.Background())
		}
		if revokeErr != nil {
			log.Warn().Err(revokeErr).Msg("token revoke failed, removing local credentials anyway")
		}

		m.mu.Lock()
		_ = m.loadLocked()
		if userID != "" {
			m.removeLocked(userID)
		}
		perr := m.persistLocked()
		m.mu.Unlock()

		s.wipe()
		log.Info().Msg("user logged out")
		m.notifyLoggedOut(cur, revokeErr)

		if perr != nil {
			t.complete(cur, &AuthError{Op: "logout", UserID: userID, Kind: boxerr.KindOther, Err: perr})
			return
		}
		t.complete(cur, nil)
	}()
	return t
}

// LogoutAll logs every stored user out one by one, then clears storage.
func (m *Manager) LogoutAll(ctx context.Context) error {
	m.mu.Lock()
	if err := m.loadLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	ids := slices.Sorted(maps.Keys(m.infos))
	m.mu.Unlock()

	var errs []error
	for _, id := range ids {
		s, err := m.Session(id)
		if err != nil {
			continue
		}
		if _, err := m.Logout(s).Wait(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	m.mu.Lock()
	for id := range m.infos {
		m.removeLocked(id)
	}
	m.lastUserID = ""
	m.dirty = false
	if err := m.storage.Clear(); err != nil {
		errs = append(errs, fmt.Errorf("failed to clear credential storage: %w", err))
	}
	m.mu.Unlock()

	return errors.Join(errs...)
}

// Session returns a session bound to a stored user.
func (m *Manager) Session(userID string, opts ...SessionOption) (*Session, error) {
	m.mu.Lock()
	loadErr := m.loadLocked()
	info := m.infos[userID].Clone()
	m.mu.Unlock()

	if info == nil {
		if loadErr != nil {
			return nil, loadErr
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	s := NewSession(m, opts...)
	s.info = info
	s.userID = userID
	return s, nil
}

// LastSession returns a session for the last authenticated user.
func (m *Manager) LastSession(opts ...SessionOption) (*Session, error) {
	m.mu.Lock()
	loadErr := m.loadLocked()
	userID := m.lastUserID
	m.mu.Unlock()

	if userID == "" {
		if loadErr != nil {
			return nil, loadErr
		}
		return nil, ErrUnknownUser
	}
	return m.Session(userID, opts...)
}

// Load reads stored credentials if that has not happened yet. Every other
// method loads lazily; Load lets callers see why storage is unavailable
// before doing anything else. The error is sticky.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked()
}

// LastUserID returns the last authenticated user id, or "".
func (m *Manager) LastUserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.loadLocked()
	return m.lastUserID
}

// StoredAuthInfos returns clones of every stored credential set, keyed by
// user id.
func (m *Manager) StoredAuthInfos() map[string]*AuthInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.loadLocked()
	return cloneInfos(m.infos)
}

// DefaultCredentials returns the process-wide client credentials.
func (m *Manager) DefaultCredentials() oauthapi.Credentials {
	return m.creds
}

func (m *Manager) fetchUser(ctx context.Context, accessToken string) (*User, error) {
	u, err := m.svc.CurrentUser(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if u == nil || u.ID == "" {
		return nil, &AuthError{Op: "user_info", Kind: boxerr.KindOther, Err: ErrNoIdentity}
	}
	return &User{ID: u.ID, Name: u.Name, Login: u.Login}, nil
}

// loadLocked reads storage the first time state is touched. A failed load is
// remembered and storage is never written afterwards. The last user pointer
// is dropped when it names a user that is no longer stored.
func (m *Manager) loadLocked() error {
	if m.loaded {
		return nil
	}
	if m.loadErr != nil {
		return m.loadErr
	}

	infos, err := m.storage.Load()
	var last string
	if err == nil {
		last, err = m.storage.LastUserID()
	}
	if err != nil {
		m.loadErr = fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		m.log.Error().Err(err).Msg("failed to load stored credentials, storage will not be written")
		return m.loadErr
	}
	m.loaded = true

	for id, info := range infos {
		if id == "" || info == nil {
			continue
		}
		m.infos[id] = info.Clone()
	}
	if last == "" {
		return nil
	}
	if _, ok := m.infos[last]; ok {
		m.lastUserID = last
		return nil
	}
	if err := m.storage.ClearLastUserID(); err != nil {
		m.log.Warn().Err(err).Msg("failed to clear dangling last user id")
	}
	return nil
}

func (m *Manager) removeLocked(userID string) {
	delete(m.infos, userID)
	m.removals++
	m.removedAt[userID] = m.removals
	if m.lastUserID == userID {
		m.lastUserID = ""
	}
}

// persistLocked writes the full state. Until a load succeeded it refuses, so
// credentials that could not be read are never replaced.
func (m *Manager) persistLocked() error {
	if !m.loaded {
		m.dirty = true
		err := m.loadErr
		if err == nil {
			err = ErrStorageUnavailable
		}
		return fmt.Errorf("credentials kept in memory only: %w", err)
	}
	if err := m.storage.Store(cloneInfos(m.infos), m.lastUserID); err != nil {
		m.dirty = true
		return fmt.Errorf("failed to persist credentials: %w", err)
	}
	m.dirty = false
	return nil
}

func (m *Manager) taskLogger(op string) zerolog.Logger {
	return m.log.With().Str("op", op).Str("task", ulid.Make().String()).Logger()
}

func misconfigured(op string, cause error) *AuthError {
	return &AuthError{
		Op:   op,
		Kind: boxerr.KindBadRequest,
		Err:  fmt.Errorf("%w: %v", ErrMisconfiguredClient, cause),
	}
}

func cloneInfos(in map[string]*AuthInfo) map[string]*AuthInfo {
	out := make(map[string]*AuthInfo, len(in))
	for id, info := range in {
		out[id] = info.Clone()
	}
	return out
}
