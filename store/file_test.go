package store

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-authgate/boxsession/auth"
)

func sampleInfos() map[string]*auth.AuthInfo {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return map[string]*auth.AuthInfo{
		"42": {
			AccessToken: "at-42", RefreshToken: "rt-42", ExpiresIn: 3600,
			RefreshedAt: at, ClientID: "cid",
			User: &auth.User{ID: "42", Name: "Alice", Login: "alice@example.com"},
		},
		"43": {
			AccessToken: "at-43", RefreshToken: "rt-43", ExpiresIn: 3600,
			RefreshedAt: at, ClientID: "cid",
			User: &auth.User{ID: "43", Name: "Bob"},
		},
		"44": {
			AccessToken: "at-44", RefreshToken: "rt-44",
			RefreshedAt: at,
			User:        &auth.User{ID: "44"},
		},
	}
}

func assertSameInfos(t *testing.T, want, got map[string]*auth.AuthInfo) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d users, want %d", len(got), len(want))
	}
	for id, w := range want {
		g, ok := got[id]
		if !ok {
			t.Errorf("user %s missing", id)
			continue
		}
		if g.AccessToken != w.AccessToken || g.RefreshToken != w.RefreshToken ||
			g.ExpiresIn != w.ExpiresIn || !g.RefreshedAt.Equal(w.RefreshedAt) ||
			g.UserID() != w.UserID() {
			t.Errorf("user %s = %v, want %v", id, g, w)
		}
		if w.User != nil && g.User.Name != w.User.Name {
			t.Errorf("user %s name = %q, want %q", id, g.User.Name, w.User.Name)
		}
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	s := NewFileStore(path)

	want := sampleInfos()
	if err := s.Store(want, "43"); err != nil {
		t.Fatalf("Store: %v", err)
	}

	// A second instance sees what the first wrote.
	other := NewFileStore(path)
	got, err := other.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertSameInfos(t, want, got)

	last, err := other.LastUserID()
	if err != nil {
		t.Fatalf("LastUserID: %v", err)
	}
	if last != "43" {
		t.Errorf("LastUserID = %q, want 43", last)
	}

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := fi.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 600", perm)
	}
	if _, err := os.Stat(path + ".lock"); !os.IsNotExist(err) {
		t.Errorf("lock file left behind")
	}
}

func TestFileStoreMissingFile(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "nested", "auth.json"))

	infos, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("Load = %v, want empty", infos)
	}
	if last, _ := s.LastUserID(); last != "" {
		t.Errorf("LastUserID = %q, want empty", last)
	}

	if err := s.Store(sampleInfos(), "42"); err != nil {
		t.Fatalf("Store into missing directory: %v", err)
	}
}

func TestFileStoreClearLastUserID(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "auth.json"))
	if err := s.Store(sampleInfos(), "42"); err != nil {
		t.Fatalf("Store: %v", err)
	}

	if err := s.ClearLastUserID(); err != nil {
		t.Fatalf("ClearLastUserID: %v", err)
	}
	if last, _ := s.LastUserID(); last != "" {
		t.Errorf("LastUserID = %q, want empty", last)
	}
	infos, _ := s.Load()
	if len(infos) != 3 {
		t.Errorf("ClearLastUserID dropped credentials: %d left", len(infos))
	}
}

func TestFileStoreClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	s := NewFileStore(path)
	if err := s.Store(sampleInfos(), "42"); err != nil {
		t.Fatalf("Store: %v", err)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("credential file still exists")
	}
	if err := s.Clear(); err != nil {
		t.Errorf("Clear on missing file: %v", err)
	}
}

func TestFileStoreCorrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	s := NewFileStore(path)

	if _, err := s.Load(); !errors.Is(err, ErrCorrupted) {
		t.Errorf("Load error = %v, want ErrCorrupted", err)
	}

	// Writes recover from a corrupted file.
	if err := s.Store(sampleInfos(), "44"); err != nil {
		t.Fatalf("Store: %v", err)
	}
	infos, err := s.Load()
	if err != nil {
		t.Fatalf("Load after Store: %v", err)
	}
	assertSameInfos(t, sampleInfos(), infos)
}

func TestFileStoreSealed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	s := NewFileStore(path, WithPassphrase("correct horse"))

	if err := s.Store(sampleInfos(), "42"); err != nil {
		t.Fatalf("Store: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(raw, sealMagic) {
		t.Errorf("file is not sealed")
	}
	if bytes.Contains(raw, []byte("at-42")) {
		t.Errorf("sealed file contains a plaintext token")
	}

	got, err := NewFileStore(path, WithPassphrase("correct horse")).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertSameInfos(t, sampleInfos(), got)

	if _, err := NewFileStore(path, WithPassphrase("wrong")).Load(); !errors.Is(err, ErrCorrupted) {
		t.Errorf("wrong passphrase error = %v, want ErrCorrupted", err)
	}
	if _, err := NewFileStore(path).Load(); !errors.Is(err, ErrPassphraseRequired) {
		t.Errorf("missing passphrase error = %v, want ErrPassphraseRequired", err)
	}
}

func TestFileStoreRefusesToOverwriteUnreadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	if err := NewFileStore(path, WithPassphrase("right")).Store(sampleInfos(), "42"); err != nil {
		t.Fatalf("Store: %v", err)
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	wrong := NewFileStore(path, WithPassphrase("wrong"))
	if err := wrong.Store(map[string]*auth.AuthInfo{}, ""); !errors.Is(err, ErrCorrupted) {
		t.Errorf("Store with wrong passphrase = %v, want ErrCorrupted", err)
	}
	if err := wrong.ClearLastUserID(); !errors.Is(err, ErrCorrupted) {
		t.Errorf("ClearLastUserID with wrong passphrase = %v, want ErrCorrupted", err)
	}
	if err := NewFileStore(path).Store(map[string]*auth.AuthInfo{}, ""); !errors.Is(err, ErrPassphraseRequired) {
		t.Errorf("Store without passphrase = %v, want ErrPassphraseRequired", err)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Errorf("credential file was rewritten by a store that cannot read it")
	}
	got, err := NewFileStore(path, WithPassphrase("right")).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertSameInfos(t, sampleInfos(), got)
}

func TestFileStoreSealsPlainFileOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	if err := NewFileStore(path).Store(sampleInfos(), "42"); err != nil {
		t.Fatalf("plain Store: %v", err)
	}

	sealed := NewFileStore(path, WithPassphrase("pw"))
	if err := sealed.ClearLastUserID(); err != nil {
		t.Fatalf("ClearLastUserID: %v", err)
	}

	raw, _ := os.ReadFile(path)
	if !isSealed(raw) {
		t.Errorf("file not sealed after write with passphrase")
	}
	infos, err := sealed.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(infos) != 3 {
		t.Errorf("got %d users, want 3", len(infos))
	}
}
