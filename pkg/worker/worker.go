// Package worker serializes every store operation through one goroutine.
//
// The worker is the only code that ever touches the *store.Conn. Producers
// (CLI commands, the MCP server, background tasks) submit typed operations;
// each operation runs exactly once, in acceptance order, and its result is
// delivered to the submitter alone. Errors from one operation never stop the
// queue. A fault that leaves the connection unusable shuts the worker down,
// and every queued and future submission receives ErrWorkerUnavailable.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/forest6511/vaultkeeper/pkg/store"
)

// DefaultQueueSize is the submission buffer used when Options.QueueSize is 0.
const DefaultQueueSize = 64

// Errors
var (
	ErrWorkerUnavailable = errors.New("worker: store worker is gone")
	ErrQueueFull         = errors.New("worker: submission queue is full")
	ErrPanic             = errors.New("worker: operation panicked")
)

// Op is an operation over the worker-owned connection.
type Op[T any] func(ctx context.Context, conn *store.Conn) (T, error)

// command is the type-erased form of a submitted Op.
type command interface {
	run(conn *store.Conn) error
	fail(err error)
	context() context.Context
}

// Options configures a Worker.
type Options struct {
	// QueueSize bounds the submission buffer. Producers block (Submit) or
	// fail fast (TrySubmit) when it is full.
	QueueSize int

	// Logger receives lifecycle and per-command debug records.
	Logger logrus.FieldLogger
}

// Worker exclusively owns one store connection.
type Worker struct {
	conn  *store.Conn
	queue chan command
	log   logrus.FieldLogger

	// mu guards stopped. Producers hold the read lock while sending so
	// queue is never closed under an in-flight send.
	mu      sync.RWMutex
	stopped bool

	halt     chan struct{} // closed when the worker stops accepting
	haltOnce sync.Once
	exited   chan struct{} // closed when the goroutine returns

	fault    error // set by the worker goroutine only
	closeErr error // conn.Close result, set before exited is closed
	seq   uint64
}

// New starts a worker that owns conn until Close.
func New(conn *store.Conn, opts *Options) *Worker {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		o.Logger = l
	}

	w := &Worker{
		conn:   conn,
		queue:  make(chan command, o.QueueSize),
		log:    o.Logger.WithField("component", "worker"),
		halt:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	defer close(w.exited)
	w.log.WithField("store", w.conn.Path()).Debug("worker started")

	for cmd := range w.queue {
		if w.fault != nil {
			cmd.fail(ErrWorkerUnavailable)
			continue
		}

		// A submitter that gave up before its turn is skipped; a command
		// that starts always runs to completion.
		if err := cmd.context().Err(); err != nil {
			cmd.fail(err)
			continue
		}

		w.seq++
		start := time.Now()
		err := cmd.run(w.conn)
		entry := w.log.WithFields(logrus.Fields{
			"seq":      w.seq,
			"duration": time.Since(start),
		})
		if err != nil {
			entry.WithError(err).Debug("command failed")
		} else {
			entry.Debug("command done")
		}

		if store.IsUnusable(err) {
			w.fault = err
			w.log.WithError(err).Error("store connection unusable, stopping worker")
			w.stop()
		}
	}

	if err := w.conn.Close(); err != nil {
		w.closeErr = err
		w.log.WithError(err).Warn("failed to close store connection")
	}
	w.log.Debug("worker stopped")
}

// stop closes the submission side. Blocked producers are released through
// halt before the write lock is taken, so stop never waits on a full queue.
func (w *Worker) stop() {
	w.haltOnce.Do(func() {
		close(w.halt)
		w.mu.Lock()
		w.stopped = true
		close(w.queue)
		w.mu.Unlock()
	})
}

// Close stops accepting commands, lets every accepted command finish, closes
// the connection and waits for the worker goroutine to exit. It returns the
// error from closing the connection; later calls return the same error.
func (w *Worker) Close() error {
	w.stop()
	<-w.exited
	return w.closeErr
}

// Done is closed once the worker goroutine has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.exited
}

// Err returns the fault that stopped the worker, if any. It is only
// meaningful after Done is closed.
func (w *Worker) Err() error {
	select {
	case <-w.exited:
		return w.fault
	default:
		return nil
	}
}

func (w *Worker) enqueue(ctx context.Context, cmd command, wait bool) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		return ErrWorkerUnavailable
	}

	if !wait {
		select {
		case w.queue <- cmd:
			return nil
		case <-w.halt:
			return ErrWorkerUnavailable
		default:
			return ErrQueueFull
		}
	}

	select {
	case w.queue <- cmd:
		return nil
	case <-w.halt:
		return ErrWorkerUnavailable
	case <-ctx.Done():
		return ctx.Err()
	}
}

// task binds an Op to its single-use result slot.
type task[T any] struct {
	ctx  context.Context
	op   Op[T]
	done chan struct{}
	val  T
	err  error
}

func (t *task[T]) context() context.Context { return t.ctx }

func (t *task[T]) run(conn *store.Conn) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
			t.err = err
		}
		close(t.done)
	}()
	// Started commands run to completion: the op never sees the
	// submitter's cancellation.
	t.val, t.err = t.op(context.WithoutCancel(t.ctx), conn)
	return t.err
}

func (t *task[T]) fail(err error) {
	t.err = err
	close(t.done)
}

// Pending is the eventual result of a submitted Op.
type Pending[T any] struct {
	t *task[T]
}

// Done is closed when the result is available. Event loops select on it
// instead of blocking in Wait.
func (p *Pending[T]) Done() <-chan struct{} {
	return p.t.done
}

// Wait blocks until the result is available or ctx ends. Abandoning the
// wait does not cancel a command that has already started.
func (p *Pending[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.t.done:
		return p.t.val, p.t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit queues op, blocking while the queue is full. ctx bounds the wait
// for a queue slot and its values are handed to op; a command whose ctx is
// already done when its turn comes is skipped.
func Submit[T any](ctx context.Context, w *Worker, op Op[T]) (*Pending[T], error) {
	return submit(ctx, w, op, true)
}

// TrySubmit is Submit without blocking: a full queue yields ErrQueueFull.
func TrySubmit[T any](ctx context.Context, w *Worker, op Op[T]) (*Pending[T], error) {
	return submit(ctx, w, op, false)
}

func submit[T any](ctx context.Context, w *Worker, op Op[T], wait bool) (*Pending[T], error) {
	t := &task[T]{ctx: ctx, op: op, done: make(chan struct{})}
	if err := w.enqueue(ctx, t, wait); err != nil {
		return nil, err
	}
	return &Pending[T]{t: t}, nil
}

// Do submits op and waits for its result.
func Do[T any](ctx context.Context, w *Worker, op Op[T]) (T, error) {
	p, err := Submit(ctx, w, op)
	if err != nil {
		var zero T
		return zero, err
	}
	return p.Wait(ctx)
}

// Exec is Do for operations without a result value.
func Exec(ctx context.Context, w *Worker, op func(ctx context.Context, conn *store.Conn) error) error {
	_, err := Do(ctx, w, func(ctx context.Context, conn *store.Conn) (struct{}, error) {
		return struct{}{}, op(ctx, conn)
	})
	return err
}
