package auth

import "context"

// RefreshProvider replaces the built-in refresh_token grant. Host
// applications that mint Box tokens some other way (a backend token broker,
// app users) plug in here.
type RefreshProvider interface {
	// RefreshAuthInfo returns fresh credentials for info. Returning an
	// *AuthError keeps its kind; any other error is classified.
	RefreshAuthInfo(ctx context.Context, info *AuthInfo) (*AuthInfo, error)

	// LaunchInteractiveAuth starts the provider's own login UI. It reports
	// whether it handled the request.
	LaunchInteractiveAuth(userID string, s *Session) bool
}
