package auth_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/go-authgate/boxsession/auth"
)

// apiServer accepts only the refreshed token and records request bodies.
func apiServer(t *testing.T, validToken string) (*httptest.Server, func() []string) {
	t.Helper()
	var (
		mu     sync.Mutex
		bodies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(body))
		mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer "+validToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"id":"42"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), bodies...)
	}
}

func TestTransportRefreshesOnUnauthorized(t *testing.T) {
	f := newFixture(t)
	f.seed(t, time.Minute)
	srv, bodies := apiServer(t, "at-refreshed-1")

	s, err := f.mgr.Session("42")
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(
		context.Background(), http.MethodPost, srv.URL+"/files", strings.NewReader("payload"))
	require.NoError(t, err)

	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, f.svc.refreshCalls.Load())
	assert.Equal(t, []string{"payload", "payload"}, bodies())
	assert.Equal(t, "at-refreshed-1", s.AuthInfo().AccessToken)
}

func TestTransportGivesUpAfterOneRefresh(t *testing.T) {
	f := newFixture(t)
	f.seed(t, time.Minute)
	srv, _ := apiServer(t, "never-valid")

	s, err := f.mgr.Session("42")
	require.NoError(t, err)

	resp, err := s.Client().Get(srv.URL + "/users/me")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.EqualValues(t, 1, f.svc.refreshCalls.Load())
}

func TestTransportReturnsFatalRefreshFailure(t *testing.T) {
	f := newFixture(t)
	f.seed(t, time.Minute)
	f.svc.refreshErr = &oauth2.RetrieveError{
		Response:  &http.Response{StatusCode: http.StatusBadRequest},
		ErrorCode: "invalid_grant",
	}
	srv, bodies := apiServer(t, "never-valid")

	s, err := f.mgr.Session("42")
	require.NoError(t, err)

	resp, err := s.Client().Get(srv.URL + "/users/me")
	if resp != nil {
		resp.Body.Close()
	}
	require.Error(t, err)
	assert.True(t, auth.IsFatal(err))
	assert.Len(t, bodies(), 1)
	assert.NotContains(t, f.mgr.StoredAuthInfos(), "42")
}

func TestTransportWithoutCredentials(t *testing.T) {
	f := newFixture(t)
	srv, bodies := apiServer(t, "at1")

	resp, err := auth.NewSession(f.mgr).Client().Get(srv.URL)
	if resp != nil {
		resp.Body.Close()
	}
	require.Error(t, err)
	assert.Empty(t, bodies())
}
