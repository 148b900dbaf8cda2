package auth

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Task is the handle of an asynchronous create, refresh or logout. Several
// callers refreshing the same user concurrently share one underlying
// operation and each get their own Task.
type Task struct {
	done    chan struct{}
	session *Session
	info    *AuthInfo
	err     error
	shared  bool
}

func newTask(s *Session) *Task {
	return &Task{done: make(chan struct{}), session: s}
}

func completedTask(s *Session, info *AuthInfo, err error) *Task {
	t := newTask(s)
	t.complete(info, err)
	return t
}

// joinTask adapts a singleflight result. The caller's own session is brought
// up to date too, so joiners observe the same credentials as the caller that
// started the refresh.
func joinTask(s *Session, ch <-chan singleflight.Result) *Task {
	t := newTask(s)
	go func() {
		r := <-ch
		info, _ := r.Val.(*AuthInfo)
		if r.Err == nil && info != nil && s != nil {
			s.apply(info)
		}
		t.shared = r.Shared
		t.complete(info, r.Err)
	}()
	return t
}

func (t *Task) complete(info *AuthInfo, err error) {
	t.info = info.Clone()
	t.err = err
	close(t.done)
}

// Done is closed when the result is available.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Shared reports whether the result came from an operation shared with other
// callers. Only meaningful after Done.
func (t *Task) Shared() bool {
	select {
	case <-t.done:
		return t.shared
	default:
		return false
	}
}

// Wait blocks until the task completes or ctx ends. Abandoning the wait does
// not cancel the operation; it still completes and updates shared state.
func (t *Task) Wait(ctx context.Context) (*AuthInfo, error) {
	select {
	case <-t.done:
		return t.info.Clone(), t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
