package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/go-authgate/boxsession/auth"
	"github.com/go-authgate/boxsession/metrics"
	"github.com/go-authgate/boxsession/oauthapi"
	"github.com/go-authgate/boxsession/store"
	"github.com/go-authgate/boxsession/tui"
)

const tokenPreviewLen = 20

// app wires the manager, its collaborators and the displayer for one CLI run.
type app struct {
	cfg    *Config
	d      tui.Displayer
	log    zerolog.Logger
	client *oauthapi.Client
	mgr    *auth.Manager
	reg    *prometheus.Registry
}

func newApp(cfg *Config, d tui.Displayer, log zerolog.Logger, httpClient *http.Client) (*app, error) {
	rc, err := retry.NewBackgroundClient(retry.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create retry client: %w", err)
	}

	client, err := oauthapi.NewClient(
		cfg.Endpoints(),
		oauthapi.WithRetryClient(rc),
		oauthapi.WithHTTPClient(httpClient),
		oauthapi.WithLogger(log.With().Str("component", "oauth").Logger()),
	)
	if err != nil {
		return nil, err
	}

	storeOpts := []store.Option{store.WithLogger(log.With().Str("component", "store").Logger())}
	if cfg.Passphrase != "" {
		storeOpts = append(storeOpts, store.WithPassphrase(cfg.Passphrase))
	}

	a := &app{
		cfg:    cfg,
		d:      d,
		log:    log,
		client: client,
		reg:    prometheus.NewRegistry(),
	}
	a.mgr = auth.NewManager(
		client,
		store.NewFileStore(cfg.TokenFile, storeOpts...),
		auth.WithLogger(log.With().Str("component", "auth").Logger()),
		auth.WithDefaultCredentials(cfg.Credentials()),
	)

	collector, err := metrics.NewCollector(a.reg)
	if err != nil {
		return nil, err
	}
	a.mgr.Subscribe(collector)
	a.mgr.Subscribe(a.displayListener())
	return a, nil
}

// defaultHTTPClient is the transport for every outgoing request.
func defaultHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

// displayListener reports manager events on the displayer.
func (a *app) displayListener() auth.Listener {
	return auth.ListenerFuncs{
		Created: func(info *auth.AuthInfo) {
			a.d.AuthSuccess(displayName(info))
			a.d.TokenSaved(a.cfg.TokenFile)
		},
		Refreshed: func(*auth.AuthInfo) {
			a.d.RefreshOK()
		},
		Failure: func(_ *auth.AuthInfo, err error) {
			a.d.RefreshFailed(err)
		},
		LoggedOut: func(info *auth.AuthInfo, err error) {
			a.d.LoggedOut(displayName(info), err)
		},
	}
}

func (a *app) close(ctx context.Context) error {
	err := a.mgr.Close(ctx)
	a.logMetrics()
	return err
}

func run(ctx context.Context, cfg *Config, d tui.Displayer, log zerolog.Logger) error {
	a, err := newApp(cfg, d, log, defaultHTTPClient())
	if err != nil {
		d.Fatal(err)
		return err
	}
	defer func() {
		if err := a.close(context.Background()); err != nil {
			log.Warn().Err(err).Msg("shutdown")
		}
	}()

	// Stop before any command can write over credentials this run cannot read.
	if err := a.mgr.Load(); err != nil {
		d.Fatal(err)
		return err
	}

	switch cfg.Command {
	case cmdList:
		return a.list()
	case cmdLogout:
		return a.logout(ctx)
	case cmdLogoutAll:
		return a.logoutAll(ctx)
	default:
		return a.login(ctx)
	}
}

// login exchanges -code when given; otherwise it loads the stored session,
// refreshing it if needed, and verifies it against the API.
func (a *app) login(ctx context.Context) error {
	if a.cfg.Code != "" {
		a.d.Exchanging()
		s := auth.NewSession(a.mgr)
		if _, err := s.Authenticate(ctx, a.cfg.Code); err != nil {
			a.d.Fatal(err)
			return err
		}
		return a.showSession(ctx, s)
	}

	s, err := a.session()
	if errors.Is(err, auth.ErrUnknownUser) {
		a.d.SessionNotFound()
		return a.promptLogin()
	}
	if err != nil {
		a.d.Fatal(err)
		return err
	}

	a.d.SessionFound(displayName(s.AuthInfo()))
	if !s.AuthInfo().Expired(time.Now(), auth.DefaultExpirySkew) {
		a.d.TokenValid()
		return a.showSession(ctx, s)
	}

	a.d.TokenExpired()
	a.d.Refreshing()
	if _, err := s.Refresh(ctx); err != nil {
		if auth.IsFatal(err) {
			url, urlErr := a.authorizeURL()
			if urlErr != nil {
				a.d.Fatal(err)
				return err
			}
			a.d.ReAuthRequired(url)
			return err
		}
		a.d.Fatal(err)
		return err
	}
	return a.showSession(ctx, s)
}

func (a *app) promptLogin() error {
	url, err := a.authorizeURL()
	if err != nil {
		a.d.Fatal(err)
		return err
	}
	a.d.AuthorizeURL(url)
	return nil
}

func (a *app) authorizeURL() (string, error) {
	creds := a.cfg.Credentials()
	if err := creds.Validate(); err != nil {
		return "", fmt.Errorf("%w: set -client-id and -client-secret", auth.ErrMisconfiguredClient)
	}
	return a.client.AuthorizeURL(creds, uuid.NewString()), nil
}

func (a *app) showSession(ctx context.Context, s *auth.Session) error {
	info := s.AuthInfo()
	preview := info.AccessToken
	if len(preview) > tokenPreviewLen {
		preview = preview[:tokenPreviewLen]
	}
	var expiresIn time.Duration
	if exp := info.ExpiresAt(); !exp.IsZero() {
		expiresIn = time.Until(exp).Round(time.Second)
	}
	a.d.Done(preview, displayName(info), expiresIn)

	a.d.Verifying()
	body, err := a.verify(ctx, s)
	if err != nil {
		a.d.VerifyFailed(err)
		return nil
	}
	a.d.VerifyOK(body)
	return nil
}

// verify calls GET /users/me through the session's refreshing transport.
func (a *app) verify(ctx context.Context, s *auth.Session) (string, error) {
	apiURL := strings.TrimRight(a.client.Endpoints().APIURL, "/") + "/users/me?fields=id,name,login"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := s.Client().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("users/me returned %s", resp.Status)
	}
	return string(body), nil
}

func (a *app) list() error {
	infos := a.mgr.StoredAuthInfos()
	if len(infos) == 0 {
		a.d.SessionNotFound()
		return nil
	}

	last := a.mgr.LastUserID()
	ids := make([]string, 0, len(infos))
	for id := range infos {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		name := ""
		if u := infos[id].User; u != nil {
			name = u.Name
		}
		a.d.UserListed(id, name, id == last)
	}
	return nil
}

func (a *app) logout(ctx context.Context) error {
	s, err := a.session()
	if errors.Is(err, auth.ErrUnknownUser) {
		a.d.SessionNotFound()
		return nil
	}
	if err != nil {
		a.d.Fatal(err)
		return err
	}
	if err := s.Logout(ctx); err != nil {
		a.d.Fatal(err)
		return err
	}
	return nil
}

func (a *app) logoutAll(ctx context.Context) error {
	if err := a.mgr.LogoutAll(ctx); err != nil {
		a.d.Fatal(err)
		return err
	}
	return nil
}

// session returns the session for -user, or for the last authenticated user.
func (a *app) session() (*auth.Session, error) {
	if a.cfg.User != "" {
		return a.mgr.Session(a.cfg.User)
	}
	return a.mgr.LastSession()
}

// logMetrics writes the event counters at debug level.
func (a *app) logMetrics() {
	families, err := a.reg.Gather()
	if err != nil {
		a.log.Debug().Err(err).Msg("gather metrics")
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			ev := a.log.Debug().Str("metric", mf.GetName())
			for _, lp := range m.GetLabel() {
				ev = ev.Str(lp.GetName(), lp.GetValue())
			}
			ev.Float64("value", m.GetCounter().GetValue()).Msg("auth metric")
		}
	}
}

func displayName(info *auth.AuthInfo) string {
	if info == nil || info.User == nil {
		return "unknown user"
	}
	if info.User.Name != "" {
		return fmt.Sprintf("%s (%s)", info.User.Name, info.User.ID)
	}
	return info.User.ID
}
