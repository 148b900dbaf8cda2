package tui

import (
	"time"
)

// MsgBanner signals that the banner/title should be displayed.
type MsgBanner struct{}

// MsgSessionFound signals that stored credentials were found for a user.
type MsgSessionFound struct{ User string }

// MsgSessionNotFound signals that no stored credentials exist.
type MsgSessionNotFound struct{}

// MsgTokenValid signals that the stored access token is still valid.
type MsgTokenValid struct{}

// MsgTokenExpired signals that the stored access token has expired.
type MsgTokenExpired struct{}

// MsgRefreshing signals that a token refresh is in progress.
type MsgRefreshing struct{}

// MsgRefreshOK signals that the token was refreshed successfully.
type MsgRefreshOK struct{}

// MsgRefreshFailed signals that token refresh failed.
type MsgRefreshFailed struct{ Err error }

// MsgAuthorizeURL signals that the user has to sign in in a browser.
type MsgAuthorizeURL struct{ URL string }

// MsgExchanging signals that the authorization code is being exchanged.
type MsgExchanging struct{}

// MsgAuthSuccess signals that a user signed in.
type MsgAuthSuccess struct{ User string }

// MsgTokenSaved signals that credentials were written to disk.
type MsgTokenSaved struct{ Path string }

// MsgVerifying signals that the token is being checked against the API.
type MsgVerifying struct{}

// MsgVerifyOK signals that the API accepted the token.
type MsgVerifyOK struct{ Body string }

// MsgVerifyFailed signals that the API call failed.
type MsgVerifyFailed struct{ Err error }

// MsgReAuthRequired signals that the stored credentials were revoked and the
// user has to sign in again.
type MsgReAuthRequired struct{ URL string }

// MsgLoggedOut signals that a user's credentials were removed.
type MsgLoggedOut struct {
	User string
	Err  error
}

// MsgUserListed is one stored user.
type MsgUserListed struct {
	ID      string
	Name    string
	Current bool
}

// MsgDone signals successful completion.
type MsgDone struct {
	Preview   string
	User      string
	ExpiresIn time.Duration
}

// MsgFatal signals a fatal error that should terminate the flow.
type MsgFatal struct{ Err error }
