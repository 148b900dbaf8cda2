package tui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
)

func feed(m Model, msgs ...tea.Msg) Model {
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestModelRefreshThenSuccess(t *testing.T) {
	m := feed(NewModel(),
		MsgSessionFound{User: "Alice (42)"},
		MsgTokenExpired{},
		MsgRefreshing{},
	)
	if m.state != stateRefreshing {
		t.Fatalf("state = %d, want refreshing", m.state)
	}

	m = feed(m, MsgRefreshOK{}, MsgDone{Preview: "at-1", User: "Alice (42)", ExpiresIn: 90 * time.Second})
	if m.state != stateSuccess {
		t.Fatalf("state = %d, want success", m.state)
	}
	out := m.viewSuccess()
	for _, want := range []string{"Alice (42)", "at-1...", "1m 30s", "Token refreshed successfully"} {
		if !strings.Contains(out, want) {
			t.Errorf("success view missing %q:\n%s", want, out)
		}
	}
}

func TestModelReAuthShowsURL(t *testing.T) {
	m := feed(NewModel(), MsgReAuthRequired{URL: "https://account.box.com/api/oauth2/authorize?x=1"})
	if m.state != stateAuthorize {
		t.Fatalf("state = %d, want authorize", m.state)
	}
	out := m.viewMain()
	if !strings.Contains(out, "-code=") {
		t.Errorf("authorize view should explain -code:\n%s", out)
	}
	if !strings.Contains(out, "no longer valid") {
		t.Errorf("authorize view should explain why:\n%s", out)
	}
}

func TestModelListsUsers(t *testing.T) {
	m := feed(NewModel(),
		MsgUserListed{ID: "42", Name: "Alice", Current: true},
		MsgUserListed{ID: "7", Name: "Bob"},
	)
	out := m.viewUsers()
	if !strings.Contains(out, "* ") || !strings.Contains(out, "Alice") || !strings.Contains(out, "Bob") {
		t.Errorf("unexpected user list:\n%s", out)
	}
}

func TestModelLogoutWithRevokeFailure(t *testing.T) {
	m := feed(NewModel(), MsgLoggedOut{User: "Alice (42)", Err: errors.New("revoke: 503")})
	if len(m.statusLines) != 1 || m.statusLines[0].kind != statusWarn {
		t.Fatalf("status lines = %+v", m.statusLines)
	}
	if !strings.Contains(m.statusLines[0].text, "revoke failed") {
		t.Errorf("status = %q", m.statusLines[0].text)
	}
}

func TestModelFatal(t *testing.T) {
	m := feed(NewModel(), MsgFatal{Err: errors.New("boom")})
	if m.state != stateError {
		t.Fatalf("state = %d, want error", m.state)
	}
	if !strings.Contains(m.viewError(), "boom") {
		t.Errorf("error view missing message")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{-time.Second, "0s"},
		{45 * time.Second, "45s"},
		{61 * time.Second, "1m 1s"},
		{time.Hour, "60m 0s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPlainDisplayerLoggedOut(t *testing.T) {
	var buf bytes.Buffer
	d := NewPlainDisplayer(&buf)
	d.LoggedOut("Alice (42)", nil)
	d.UserListed("42", "Alice", true)
	out := buf.String()
	if !strings.Contains(out, "Alice (42)") || !strings.Contains(out, "42") {
		t.Errorf("unexpected output:\n%s", out)
	}
}
