package auth

import (
	"errors"
	"fmt"

	"github.com/go-authgate/boxsession/boxerr"
)

var (
	// ErrMisconfiguredClient means neither the session nor the manager has a
	// client id and secret.
	ErrMisconfiguredClient = errors.New("client id and client secret are required")

	// ErrIdentityMismatch means a refresh returned credentials for a different
	// user than the session was bound to.
	ErrIdentityMismatch = errors.New("refreshed credentials belong to a different user")

	// ErrNoRefreshToken means the session has nothing to refresh with.
	ErrNoRefreshToken = errors.New("no refresh token available")

	// ErrUnknownUser means no credentials are stored for the requested user.
	ErrUnknownUser = errors.New("no stored credentials for user")

	// ErrNotAuthenticated means the session holds no access token.
	ErrNotAuthenticated = errors.New("session is not authenticated")

	// ErrNoIdentity means the user-info endpoint did not return a user id.
	ErrNoIdentity = errors.New("user info response has no user id")

	// ErrStorageUnavailable means stored credentials could not be read. The
	// manager keeps working in memory and never writes storage for the rest
	// of its life, so unreadable credentials are not overwritten.
	ErrStorageUnavailable = errors.New("stored credentials could not be loaded")
)

// AuthError is returned by every manager operation that failed. Fatal is set
// when the stored credentials were purged and the user has to sign in again.
type AuthError struct {
	Op     string
	UserID string
	Kind   boxerr.Kind
	Fatal  bool
	Err    error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("auth %s", e.Op)
	if e.UserID != "" {
		msg += fmt.Sprintf(" (user %s)", e.UserID)
	}
	msg += fmt.Sprintf(": %s", e.Kind)
	if e.Fatal {
		msg += ", re-authentication required"
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err requires a fresh interactive login.
func IsFatal(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Fatal
}

// KindOf returns the classified kind of err.
func KindOf(err error) boxerr.Kind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return boxerr.ClassifyError(err)
}

// classify turns a task failure into an AuthError. Failures that are already
// structured (a misconfigured client, or a custom provider's own AuthError)
// keep their kind.
func classify(op, userID string, err error) *AuthError {
	var ae *AuthError
	if errors.As(err, &ae) {
		out := *ae
		out.Op = op
		if out.UserID == "" {
			out.UserID = userID
		}
		out.Fatal = out.Fatal || out.Kind.ForcesLogout()
		return &out
	}

	kind := boxerr.ClassifyError(err)
	return &AuthError{
		Op:     op,
		UserID: userID,
		Kind:   kind,
		Fatal:  kind.ForcesLogout(),
		Err:    err,
	}
}
