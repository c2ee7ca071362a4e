// Package session drives the unlock/bootstrap sequence for the store.
//
// Controller is the single per-process state machine that decides between
// the first-run flow (create a store with a confirmed password) and the
// existing-store flow (unlock with the saved password). It is the only path
// by which the worker's connection goes from unkeyed to keyed. Orchestrator
// layers the credential store and user prompting on top of it.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/forest6511/vaultkeeper/pkg/store"
	"github.com/forest6511/vaultkeeper/pkg/worker"
)

// Errors
var (
	ErrEmptyPassword    = errors.New("session: password must not be empty")
	ErrPasswordMismatch = errors.New("session: password and confirmation do not match")
	ErrWrongPassword    = errors.New("session: wrong password")
	ErrStoreIO          = errors.New("session: store file could not be opened or read")
	ErrWrongFlow        = errors.New("session: request does not match the store state")
	ErrUnlockInProgress = errors.New("session: an unlock attempt is already running")
	ErrAlreadyUnlocked  = errors.New("session: store is already unlocked")
	ErrNotUnlocked      = errors.New("session: store is not unlocked")

	// ErrWorkerUnavailable is the worker's sentinel, re-exported so callers
	// of this package can match it without importing worker.
	ErrWorkerUnavailable = worker.ErrWorkerUnavailable
)

// State is the controller's position in the unlock sequence.
type State int

const (
	StateNoStoreFile State = iota
	StateAwaitingNewPassword
	StateAwaitingExistingPassword
	StateValidating
	StateUnlocked
	StateFailed
)

// String returns a human-readable representation of the state
func (s State) String() string {
	switch s {
	case StateNoStoreFile:
		return "no-store-file"
	case StateAwaitingNewPassword:
		return "awaiting-new-password"
	case StateAwaitingExistingPassword:
		return "awaiting-existing-password"
	case StateValidating:
		return "validating"
	case StateUnlocked:
		return "unlocked"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Unlocked describes a successful unlock. It is returned by AttemptUnlock
// and delivered once on Events.
type Unlocked struct {
	StorePath string
	Created   bool // a new store was created by this unlock
	At        time.Time
}

// Controller owns the unlock state of the process. There is one per store.
type Controller struct {
	path string
	w    *worker.Worker
	log  logrus.FieldLogger

	mu       sync.Mutex
	state    State
	reason   error
	newStore bool // flow detected at startup
	fatal    bool // a store I/O failure ends the session
	events   chan Unlocked
}

// NewController inspects storePath once and picks the initial state. A
// missing store file and a zero-length one both start the first-run flow: an
// earlier run aborted before the first password was confirmed can leave an
// empty file behind.
func NewController(storePath string, w *worker.Worker, log logrus.FieldLogger) (*Controller, error) {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}

	c := &Controller{
		path:   storePath,
		w:      w,
		log:    log.WithField("component", "session"),
		events: make(chan Unlocked, 1),
	}

	info, err := os.Stat(storePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		c.state = StateNoStoreFile
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrStoreIO, err)
	case info.IsDir():
		return nil, fmt.Errorf("%w: %s is a directory", ErrStoreIO, storePath)
	case info.Size() == 0:
		c.state = StateNoStoreFile
	default:
		c.state = StateAwaitingExistingPassword
	}

	if c.state == StateNoStoreFile {
		c.newStore = true
		c.transition(StateAwaitingNewPassword, nil)
	}
	c.log.WithField("state", c.state).Debug("session initialized")
	return c, nil
}

// State returns the current state and, in StateFailed, the failure reason.
func (c *Controller) State() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.reason
}

// NeedsNewPassword reports whether this run is the first-run flow.
func (c *Controller) NeedsNewPassword() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.newStore
}

// StorePath returns the store file path.
func (c *Controller) StorePath() string {
	return c.path
}

// Events delivers the Unlocked event once, when the store is unlocked.
func (c *Controller) Events() <-chan Unlocked {
	return c.events
}

// transition must be called with mu held (or before the controller is shared).
func (c *Controller) transition(to State, reason error) {
	c.log.WithFields(logrus.Fields{"from": c.state, "to": to}).Debug("state transition")
	c.state = to
	c.reason = reason
}

func (c *Controller) awaitingState() State {
	if c.newStore {
		return StateAwaitingNewPassword
	}
	return StateAwaitingExistingPassword
}

// AttemptUnlock validates password locally and, when it passes, installs it
// as the store key through the worker and verifies it with a read.
//
// For a new store confirmation must be non-nil and equal to password. Local
// validation failures (ErrEmptyPassword, ErrPasswordMismatch) leave the
// state unchanged and never reach the worker. ErrWrongPassword leaves the
// store file untouched; the caller may retry indefinitely.
func (c *Controller) AttemptUnlock(ctx context.Context, password string, isNewStore bool, confirmation *string) (*Unlocked, error) {
	c.mu.Lock()
	switch c.state {
	case StateUnlocked:
		c.mu.Unlock()
		return nil, ErrAlreadyUnlocked
	case StateValidating:
		c.mu.Unlock()
		return nil, ErrUnlockInProgress
	case StateFailed:
		if c.fatal {
			reason := c.reason
			c.mu.Unlock()
			return nil, reason
		}
		c.transition(c.awaitingState(), nil)
	}

	if isNewStore != c.newStore {
		c.mu.Unlock()
		return nil, ErrWrongFlow
	}
	if password == "" {
		c.mu.Unlock()
		return nil, ErrEmptyPassword
	}
	if isNewStore && (confirmation == nil || *confirmation != password) {
		c.mu.Unlock()
		return nil, ErrPasswordMismatch
	}

	c.transition(StateValidating, nil)
	create := c.newStore
	c.mu.Unlock()

	start := time.Now()
	err := c.keyAndVerify(ctx, password, create)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.log.WithFields(logrus.Fields{"create": create, "duration": time.Since(start)})
	if err != nil {
		err = c.classify(err)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			c.transition(c.awaitingState(), nil)
		case errors.Is(err, ErrStoreIO):
			c.fatal = true
			c.transition(StateFailed, err)
		default:
			c.transition(StateFailed, err)
		}
		entry.WithError(err).Info("unlock failed")
		return nil, err
	}

	u := Unlocked{StorePath: c.path, Created: create, At: time.Now()}
	c.transition(StateUnlocked, nil)
	entry.Info("store unlocked")

	select {
	case c.events <- u:
	default:
	}
	return &u, nil
}

// keyAndVerify runs the key-install-and-verify command. The submission
// honours ctx, but once the command is accepted it runs uncancelled and its
// outcome is awaited regardless, so the state never disagrees with the
// connection. A key that fails verification is dropped again.
func (c *Controller) keyAndVerify(ctx context.Context, password string, create bool) error {
	p, err := worker.Submit(ctx, c.w, func(ctx context.Context, conn *store.Conn) (struct{}, error) {
		if err := conn.Key(ctx, password, create); err != nil {
			return struct{}{}, err
		}
		if err := conn.Verify(ctx); err != nil {
			conn.Unkey()
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	if err != nil {
		return err
	}
	_, err = p.Wait(context.Background())
	return err
}

func (c *Controller) classify(err error) error {
	switch {
	case errors.Is(err, store.ErrWrongKey):
		return fmt.Errorf("%w: %v", ErrWrongPassword, err)
	case errors.Is(err, worker.ErrWorkerUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
}
