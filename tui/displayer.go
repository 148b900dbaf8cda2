package tui

import (
	"fmt"
	"io"
	"time"

	tea "charm.land/bubbletea/v2"
)

// Displayer abstracts all output of the CLI.
type Displayer interface {
	Banner()
	SessionFound(user string)
	SessionNotFound()
	TokenValid()
	TokenExpired()
	Refreshing()
	RefreshOK()
	RefreshFailed(err error)
	AuthorizeURL(url string)
	Exchanging()
	AuthSuccess(user string)
	TokenSaved(path string)
	Verifying()
	VerifyOK(body string)
	VerifyFailed(err error)
	ReAuthRequired(url string)
	LoggedOut(user string, err error)
	UserListed(id, name string, current bool)
	Done(preview, user string, expiresIn time.Duration)
	Fatal(err error)
}

// PlainDisplayer writes plain text output to w.
// Used when stderr is not a TTY (pipes, CI, SSH without pty).
type PlainDisplayer struct {
	w io.Writer
}

// NewPlainDisplayer creates a PlainDisplayer that writes to w.
func NewPlainDisplayer(w io.Writer) *PlainDisplayer {
	return &PlainDisplayer{w: w}
}

func (p *PlainDisplayer) Banner() {
	fmt.Fprintln(p.w, "=== Box Session CLI ===")
	fmt.Fprintln(p.w)
}

func (p *PlainDisplayer) SessionFound(user string) {
	fmt.Fprintf(p.w, "Found stored session for user %s\n", user)
}

func (p *PlainDisplayer) SessionNotFound() {
	fmt.Fprintln(p.w, "No stored session found")
}

func (p *PlainDisplayer) TokenValid() {
	fmt.Fprintln(p.w, "Access token is still valid, using it...")
}

func (p *PlainDisplayer) TokenExpired() {
	fmt.Fprintln(p.w, "Access token expired")
}

func (p *PlainDisplayer) Refreshing() {
	fmt.Fprintln(p.w, "Refreshing access token...")
}

func (p *PlainDisplayer) RefreshOK() {
	fmt.Fprintln(p.w, "Token refreshed successfully!")
}

func (p *PlainDisplayer) RefreshFailed(err error) {
	fmt.Fprintf(p.w, "Refresh failed: %v\n", err)
}

func (p *PlainDisplayer) AuthorizeURL(url string) {
	fmt.Fprintln(p.w, "----------------------------------------")
	fmt.Fprintf(p.w, "Please open this link to authorize:\n%s\n", url)
	fmt.Fprintln(p.w, "\nThen run again with -code=<authorization code>")
	fmt.Fprintln(p.w, "----------------------------------------")
}

func (p *PlainDisplayer) Exchanging() {
	fmt.Fprintln(p.w, "Exchanging authorization code...")
}

func (p *PlainDisplayer) AuthSuccess(user string) {
	fmt.Fprintf(p.w, "\nSigned in as %s\n", user)
}

func (p *PlainDisplayer) TokenSaved(path string) {
	fmt.Fprintf(p.w, "Credentials saved to %s\n", path)
}

func (p *PlainDisplayer) Verifying() {
	fmt.Fprintln(p.w, "\nVerifying token...")
}

func (p *PlainDisplayer) VerifyOK(body string) {
	if body != "" {
		fmt.Fprintf(p.w, "User Info: %s\n", body)
	}
	fmt.Fprintln(p.w, "Token verified successfully!")
}

func (p *PlainDisplayer) VerifyFailed(err error) {
	fmt.Fprintf(p.w, "Token verification failed: %v\n", err)
}

func (p *PlainDisplayer) ReAuthRequired(url string) {
	fmt.Fprintln(p.w, "Stored credentials are no longer valid, sign in again:")
	fmt.Fprintln(p.w, url)
}

func (p *PlainDisplayer) LoggedOut(user string, err error) {
	if err != nil {
		fmt.Fprintf(p.w, "Logged out %s (token revoke failed: %v)\n", user, err)
		return
	}
	fmt.Fprintf(p.w, "Logged out %s\n", user)
}

func (p *PlainDisplayer) UserListed(id, name string, current bool) {
	marker := " "
	if current {
		marker = "*"
	}
	fmt.Fprintf(p.w, "%s %s\t%s\n", marker, id, name)
}

func (p *PlainDisplayer) Done(preview, user string, expiresIn time.Duration) {
	fmt.Fprintln(p.w, "\n========================================")
	fmt.Fprintln(p.w, "Current Session:")
	fmt.Fprintf(p.w, "User: %s\n", user)
	fmt.Fprintf(p.w, "Access Token: %s...\n", preview)
	fmt.Fprintf(p.w, "Expires In: %s\n", expiresIn.Round(time.Second))
	fmt.Fprintln(p.w, "========================================")
}

func (p *PlainDisplayer) Fatal(err error) {
	fmt.Fprintf(p.w, "Error: %v\n", err)
}

// NoopDisplayer is a no-op implementation used in tests.
type NoopDisplayer struct{}

func (NoopDisplayer) Banner()                           {}
func (NoopDisplayer) SessionFound(_ string)             {}
func (NoopDisplayer) SessionNotFound()                  {}
func (NoopDisplayer) TokenValid()                       {}
func (NoopDisplayer) TokenExpired()                     {}
func (NoopDisplayer) Refreshing()                       {}
func (NoopDisplayer) RefreshOK()                        {}
func (NoopDisplayer) RefreshFailed(_ error)             {}
func (NoopDisplayer) AuthorizeURL(_ string)             {}
func (NoopDisplayer) Exchanging()                       {}
func (NoopDisplayer) AuthSuccess(_ string)              {}
func (NoopDisplayer) TokenSaved(_ string)               {}
func (NoopDisplayer) Verifying()                        {}
func (NoopDisplayer) VerifyOK(_ string)                 {}
func (NoopDisplayer) VerifyFailed(_ error)              {}
func (NoopDisplayer) ReAuthRequired(_ string)           {}
func (NoopDisplayer) LoggedOut(_ string, _ error)       {}
func (NoopDisplayer) UserListed(_, _ string, _ bool)    {}
func (NoopDisplayer) Done(_, _ string, _ time.Duration) {}
func (NoopDisplayer) Fatal(_ error)                     {}

// ProgramDisplayer sends BubbleTea messages to a running tea.Program.
type ProgramDisplayer struct {
	p *tea.Program
}

// NewProgramDisplayer creates a ProgramDisplayer that sends messages to p.
func NewProgramDisplayer(p *tea.Program) *ProgramDisplayer {
	return &ProgramDisplayer{p: p}
}

func (t *ProgramDisplayer) Banner() {
	t.p.Send(MsgBanner{})
}

func (t *ProgramDisplayer) SessionFound(user string) {
	t.p.Send(MsgSessionFound{User: user})
}

func (t *ProgramDisplayer) SessionNotFound() {
	t.p.Send(MsgSessionNotFound{})
}

func (t *ProgramDisplayer) TokenValid() {
	t.p.Send(MsgTokenValid{})
}

func (t *ProgramDisplayer) TokenExpired() {
	t.p.Send(MsgTokenExpired{})
}

func (t *ProgramDisplayer) Refreshing() {
	t.p.Send(MsgRefreshing{})
}

func (t *ProgramDisplayer) RefreshOK() {
	t.p.Send(MsgRefreshOK{})
}

func (t *ProgramDisplayer) RefreshFailed(err error) {
	t.p.Send(MsgRefreshFailed{Err: err})
}

func (t *ProgramDisplayer) AuthorizeURL(url string) {
	t.p.Send(MsgAuthorizeURL{URL: url})
}

func (t *ProgramDisplayer) Exchanging() {
	t.p.Send(MsgExchanging{})
}

func (t *ProgramDisplayer) AuthSuccess(user string) {
	t.p.Send(MsgAuthSuccess{User: user})
}

func (t *ProgramDisplayer) TokenSaved(path string) {
	t.p.Send(MsgTokenSaved{Path: path})
}

func (t *ProgramDisplayer) Verifying() {
	t.p.Send(MsgVerifying{})
}

func (t *ProgramDisplayer) VerifyOK(body string) {
	t.p.Send(MsgVerifyOK{Body: body})
}

func (t *ProgramDisplayer) VerifyFailed(err error) {
	t.p.Send(MsgVerifyFailed{Err: err})
}

func (t *ProgramDisplayer) ReAuthRequired(url string) {
	t.p.Send(MsgReAuthRequired{URL: url})
}

func (t *ProgramDisplayer) LoggedOut(user string, err error) {
	t.p.Send(MsgLoggedOut{User: user, Err: err})
}

func (t *ProgramDisplayer) UserListed(id, name string, current bool) {
	t.p.Send(MsgUserListed{ID: id, Name: name, Current: current})
}

func (t *ProgramDisplayer) Done(preview, user string, expiresIn time.Duration) {
	t.p.Send(MsgDone{Preview: preview, User: user, ExpiresIn: expiresIn})
}

func (t *ProgramDisplayer) Fatal(err error) {
	t.p.Send(MsgFatal{Err: err})
}
