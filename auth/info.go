package auth

import (
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// User is the identity that owns a set of credentials.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Login string `json:"login,omitempty"`
}

// AuthInfo holds the credentials of one user. A manager never shares an
// AuthInfo with a session; it always hands out clones.
type AuthInfo struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in,omitempty"` // seconds, 0 when unknown
	RefreshedAt  time.Time `json:"refreshed_at"`
	ClientID     string    `json:"client_id,omitempty"`
	User         *User     `json:"user,omitempty"`
}

// Clone returns a deep copy. Clone of nil is nil.
func (a *AuthInfo) Clone() *AuthInfo {
	if a == nil {
		return nil
	}
	c := *a
	if a.User != nil {
		u := *a.User
		c.User = &u
	}
	return &c
}

// UserID returns the owning user's id, or "" while the identity is unknown.
func (a *AuthInfo) UserID() string {
	if a == nil || a.User == nil {
		return ""
	}
	return a.User.ID
}

// HasIdentity reports whether the token is usable: a token is present and
// the owning user is known.
func (a *AuthInfo) HasIdentity() bool {
	return a != nil && a.AccessToken != "" && a.UserID() != ""
}

// ExpiresAt returns when the access token expires, or the zero time when the
// lifetime is unknown.
func (a *AuthInfo) ExpiresAt() time.Time {
	if a == nil || a.ExpiresIn <= 0 || a.RefreshedAt.IsZero() {
		return time.Time{}
	}
	return a.RefreshedAt.Add(time.Duration(a.ExpiresIn) * time.Second)
}

// Expired reports whether the token expires within skew of now.
func (a *AuthInfo) Expired(now time.Time, skew time.Duration) bool {
	exp := a.ExpiresAt()
	if exp.IsZero() {
		return false
	}
	return !now.Add(skew).Before(exp)
}

// Token converts the credentials for use with golang.org/x/oauth2.
func (a *AuthInfo) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  a.AccessToken,
		RefreshToken: a.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       a.ExpiresAt(),
	}
}

// String masks the secrets.
func (a *AuthInfo) String() string {
	if a == nil {
		return "AuthInfo<nil>"
	}
	return fmt.Sprintf("AuthInfo{user=%q access=%s refresh=%s refreshed=%s}",
		a.UserID(), maskToken(a.AccessToken), maskToken(a.RefreshToken),
		a.RefreshedAt.Format(time.RFC3339))
}

// copyFrom overwrites a in place so existing references observe src.
func (a *AuthInfo) copyFrom(src *AuthInfo) {
	*a = *src.Clone()
}

func (a *AuthInfo) wipe() {
	*a = AuthInfo{}
}

func maskToken(tok string) string {
	if len(tok) <= 4 {
		return "****"
	}
	return tok[:4] + "****"
}
