package store

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFileLockAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	lockPath := path + ".lock"

	lock, err := acquireFileLock(path)
	if err != nil {
		t.Fatalf("acquireFileLock: %v", err)
	}
	if _, err := os.Stat(lockPath); err != nil {
		t.Errorf("lock file not created: %v", err)
	}

	if err := lock.release(); err != nil {
		t.Errorf("release: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Errorf("lock file still present after release")
	}
}

func TestFileLockMutualExclusion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")

	const workers = 8
	var (
		holders atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)

	wg.Add(workers)
	for i := range workers {
		go func() {
			defer wg.Done()
			for j := range 3 {
				lock, err := acquireFileLock(path)
				if err != nil {
					t.Errorf("worker %d round %d: %v", i, j, err)
					return
				}
				n := holders.Add(1)
				if n > maxSeen.Load() {
					maxSeen.Store(n)
				}
				time.Sleep(5 * time.Millisecond)
				holders.Add(-1)
				if err := lock.release(); err != nil {
					t.Errorf("worker %d round %d release: %v", i, j, err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := maxSeen.Load(); got != 1 {
		t.Errorf("max concurrent holders = %d, want 1", got)
	}
}

func TestFileLockStaleLockIsBroken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	lockPath := path + ".lock"

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("create stale lock: %v", err)
	}
	f.Close()

	old := time.Now().Add(-lockStaleAfter - 5*time.Second)
	if err := os.Chtimes(lockPath, old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	lock, err := acquireFileLock(path)
	if err != nil {
		t.Fatalf("acquire after stale lock: %v", err)
	}
	defer lock.release()
}

func TestFileLockWaitsForHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")

	first, err := acquireFileLock(path)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	acquired := make(chan error, 1)
	go func() {
		second, err := acquireFileLock(path)
		if err == nil {
			second.release()
		}
		acquired <- err
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first was held")
	case <-time.After(200 * time.Millisecond):
	}

	first.release()

	select {
	case err := <-acquired:
		if err != nil {
			t.Errorf("second acquire: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("second lock not acquired after release")
	}
}
