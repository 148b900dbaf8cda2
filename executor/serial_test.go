package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSerial_FIFOOrder(t *testing.T) {
	s := NewSerial()
	defer s.Close(context.Background())

	const tasks = 20
	var (
		mu    sync.Mutex
		order []int
	)

	futures := make([]*Future[int], 0, tasks)
	for i := 0; i < tasks; i++ {
		f, err := Submit(s, func(context.Context) (int, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return i, nil
		})
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		futures = append(futures, f)
	}

	for i, f := range futures {
		got, err := f.Wait(context.Background())
		if err != nil {
			t.Fatalf("task %d: unexpected error %v", i, err)
		}
		if got != i {
			t.Errorf("task %d returned %d", i, got)
		}
	}

	for i, v := range order {
		if v != i {
			t.Fatalf("tasks ran out of order: %v", order)
		}
	}
}

func TestSerial_OneAtATime(t *testing.T) {
	s := NewSerial()
	defer s.Close(context.Background())

	var (
		running atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)

	const goroutines = 8
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			f, err := Submit(s, func(context.Context) (struct{}, error) {
				n := running.Add(1)
				for {
					m := maxSeen.Load()
					if n <= m || maxSeen.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				running.Add(-1)
				return struct{}{}, nil
			})
			if err != nil {
				t.Errorf("Submit() error = %v", err)
				return
			}
			if _, err := f.Wait(context.Background()); err != nil {
				t.Errorf("Wait() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if maxSeen.Load() != 1 {
		t.Errorf("Expected at most one running task, saw %d", maxSeen.Load())
	}
}

func TestSerial_ErrorAndPanic(t *testing.T) {
	s := NewSerial()
	defer s.Close(context.Background())

	wantErr := errors.New("token endpoint down")
	f1, _ := Submit(s, func(context.Context) (string, error) {
		return "", wantErr
	})
	if _, err := f1.Wait(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("Expected %v, got %v", wantErr, err)
	}

	f2, _ := Submit(s, func(context.Context) (string, error) {
		panic("boom")
	})
	if _, err := f2.Wait(context.Background()); err == nil {
		t.Errorf("Expected error from panicking task")
	}

	// Worker must survive the panic.
	f3, _ := Submit(s, func(context.Context) (string, error) {
		return "ok", nil
	})
	if got, err := f3.Wait(context.Background()); err != nil || got != "ok" {
		t.Errorf("Expected ok after panic, got %q, %v", got, err)
	}
}

func TestSerial_WaitAbandonDoesNotCancel(t *testing.T) {
	s := NewSerial()
	defer s.Close(context.Background())

	release := make(chan struct{})
	var finished atomic.Bool
	f, _ := Submit(s, func(context.Context) (int, error) {
		<-release
		finished.Store(true)
		return 1, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}

	close(release)
	<-f.Done()
	if !finished.Load() {
		t.Errorf("Task should complete after caller gave up")
	}
}

func TestSerial_CloseDrainsQueue(t *testing.T) {
	s := NewSerial()

	var count atomic.Int32
	for i := 0; i < 5; i++ {
		if _, err := Submit(s, func(context.Context) (struct{}, error) {
			time.Sleep(time.Millisecond)
			count.Add(1)
			return struct{}{}, nil
		}); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if count.Load() != 5 {
		t.Errorf("Expected 5 drained tasks, got %d", count.Load())
	}

	if _, err := Submit(s, func(context.Context) (int, error) { return 0, nil }); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed after Close, got %v", err)
	}
}
