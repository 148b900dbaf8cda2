// Package executor runs authentication work on a single dedicated worker so
// that token-endpoint calls are strictly serialized and never compete with
// bulk request traffic.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ErrClosed is returned when submitting to an executor that has been closed.
var ErrClosed = errors.New("executor: closed")

// Future is the pending result of a submitted task.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Done is closed once the task has produced its result.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task finishes or ctx ends. Giving up through ctx does
// not stop the task.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Serial executes tasks one at a time in FIFO submission order. The queue is
// unbounded.
type Serial struct {
	mu      sync.Mutex
	queue   []func(context.Context)
	wake    chan struct{}
	closed  bool
	stopped chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger
}

// Option configures a Serial executor.
type Option func(*Serial)

// WithLogger sets the logger used for recovered task panics.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Serial) {
		s.log = l
	}
}

// NewSerial starts the worker goroutine.
func NewSerial(opts ...Option) *Serial {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Serial{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.loop()
	return s
}

// Submit queues fn and returns its future. fn receives the executor's
// context, which is only canceled when Close gives up waiting.
func Submit[T any](s *Serial, fn func(ctx context.Context) (T, error)) (*Future[T], error) {
	f := &Future[T]{done: make(chan struct{})}
	job := func(ctx context.Context) {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				s.log.Error().Interface("panic", r).Msg("auth task panicked")
				f.err = fmt.Errorf("executor: task panicked: %v", r)
			}
		}()
		f.val, f.err = fn(ctx)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.queue = append(s.queue, job)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return f, nil
}

// Len returns the number of queued tasks not yet started.
func (s *Serial) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close stops accepting tasks, lets the queued ones drain and waits for the
// worker to exit. If ctx ends first the running task's context is canceled.
func (s *Serial) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
	s.mu.Unlock()

	select {
	case <-s.stopped:
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

func (s *Serial) loop() {
	defer close(s.stopped)
	defer s.cancel()

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			<-s.wake
			continue
		}
		job := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		job(s.ctx)
	}
}
