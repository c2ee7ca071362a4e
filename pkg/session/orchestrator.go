package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/forest6511/vaultkeeper/pkg/credential"
	"github.com/forest6511/vaultkeeper/pkg/store"
	"github.com/forest6511/vaultkeeper/pkg/worker"
)

// DefaultMaxAttempts bounds interactive retries in Orchestrator.Unlock.
const DefaultMaxAttempts = 3

// Prompter collects passwords from a user. The CLI implements it with the
// terminal; tests use canned answers.
type Prompter interface {
	// PromptPassword asks for the password of an existing store.
	PromptPassword(ctx context.Context) (string, error)

	// PromptNewPassword asks for a new password and its confirmation.
	PromptNewPassword(ctx context.Context) (password, confirmation string, err error)

	// Rejected tells the user why the last answer did not unlock the store.
	Rejected(err error)
}

// Warning is a non-fatal failure that happened after a successful unlock,
// such as failing to save the password to the credential store.
type Warning struct {
	Err error
}

func (w *Warning) Error() string { return "warning: " + w.Err.Error() }
func (w *Warning) Unwrap() error { return w.Err }

// Result is the outcome of Orchestrator.Unlock.
type Result struct {
	Unlocked
	// FromCredentialStore is set when the saved credential unlocked the store.
	FromCredentialStore bool
	// Password is the password the user typed. It is zero when the saved
	// credential was used.
	Password credential.Secret
}

// Orchestrator sequences credential lookup, prompting and the controller.
type Orchestrator struct {
	ctrl        *Controller
	creds       credential.Provider
	log         logrus.FieldLogger
	maxAttempts int
}

// NewOrchestrator wires ctrl to creds. creds may be nil to disable the
// credential store.
func NewOrchestrator(ctrl *Controller, creds credential.Provider, log logrus.FieldLogger) *Orchestrator {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}
	return &Orchestrator{
		ctrl:        ctrl,
		creds:       creds,
		log:         log.WithField("component", "orchestrator"),
		maxAttempts: DefaultMaxAttempts,
	}
}

// SetMaxAttempts changes the number of prompts Unlock makes before giving up.
func (o *Orchestrator) SetMaxAttempts(n int) {
	if n > 0 {
		o.maxAttempts = n
	}
}

// AttemptUnlock forwards a UI-originated unlock request to the controller.
func (o *Orchestrator) AttemptUnlock(ctx context.Context, password string, isNewStore bool, confirmation *string) (*Unlocked, error) {
	u, err := o.ctrl.AttemptUnlock(ctx, password, isNewStore, confirmation)
	if err != nil {
		o.log.WithError(err).Debug("unlock attempt rejected")
	}
	return u, err
}

// Unlock brings the store to Unlocked. For an existing store the saved
// credential is tried first; if it is missing, unavailable or stale, the
// user is prompted up to the attempt limit.
func (o *Orchestrator) Unlock(ctx context.Context, p Prompter) (*Result, error) {
	if !o.ctrl.NeedsNewPassword() {
		res, err := o.unlockFromCredentialStore(ctx)
		if res != nil || err != nil {
			return res, err
		}
	}

	var lastErr error
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		res, err := o.prompt(ctx, p)
		if err == nil {
			return res, nil
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
		p.Rejected(err)
		o.log.WithFields(logrus.Fields{"attempt": attempt, "max": o.maxAttempts}).
			WithError(err).Debug("password rejected")
	}
	return nil, lastErr
}

func (o *Orchestrator) prompt(ctx context.Context, p Prompter) (*Result, error) {
	if o.ctrl.NeedsNewPassword() {
		pw, confirm, err := p.PromptNewPassword(ctx)
		if err != nil {
			return nil, err
		}
		u, err := o.AttemptUnlock(ctx, pw, true, &confirm)
		if err != nil {
			return nil, err
		}
		return &Result{Unlocked: *u, Password: credential.NewSecret(pw)}, nil
	}

	pw, err := p.PromptPassword(ctx)
	if err != nil {
		return nil, err
	}
	u, err := o.AttemptUnlock(ctx, pw, false, nil)
	if err != nil {
		return nil, err
	}
	return &Result{Unlocked: *u, Password: credential.NewSecret(pw)}, nil
}

// unlockFromCredentialStore returns (nil, nil) when the caller should fall
// back to prompting.
func (o *Orchestrator) unlockFromCredentialStore(ctx context.Context) (*Result, error) {
	if o.creds == nil {
		return nil, nil
	}

	secret, err := o.creds.Resolve(ctx, credential.ServiceName)
	switch {
	case errors.Is(err, credential.ErrSecretNotFound):
		o.log.Debug("no saved credential")
		return nil, nil
	case err != nil:
		o.log.WithError(err).Warn("credential store unavailable, falling back to prompt")
		return nil, nil
	}
	defer secret.Wipe()

	u, err := o.AttemptUnlock(ctx, secret.Reveal(), false, nil)
	if err != nil {
		if errors.Is(err, ErrWrongPassword) {
			o.log.Warn("saved credential does not unlock the store, falling back to prompt")
			return nil, nil
		}
		return nil, err
	}
	o.log.WithField("source", o.creds.Source()).Debug("unlocked with saved credential")
	return &Result{Unlocked: *u, FromCredentialStore: true}, nil
}

// Remember saves password to the credential store. The unlock it follows
// is never undone: a failure comes back as a *Warning.
func (o *Orchestrator) Remember(ctx context.Context, password credential.Secret) error {
	if state, _ := o.ctrl.State(); state != StateUnlocked {
		return ErrNotUnlocked
	}
	if o.creds == nil {
		return &Warning{Err: credential.ErrCredentialUnavailable}
	}
	if err := o.creds.Save(ctx, credential.ServiceName, password); err != nil {
		o.log.WithError(err).Warn("failed to save credential")
		return &Warning{Err: err}
	}
	o.log.WithField("source", o.creds.Source()).Info("credential saved")
	return nil
}

// Forget deletes the saved credential. A missing entry is not an error.
func (o *Orchestrator) Forget(ctx context.Context) error {
	if o.creds == nil {
		return nil
	}
	err := o.creds.Delete(ctx, credential.ServiceName)
	if err != nil && !errors.Is(err, credential.ErrSecretNotFound) {
		return err
	}
	return nil
}

// ChangePassword rewraps the store key under newPassword. The store must be
// unlocked and current must be its present password.
func (o *Orchestrator) ChangePassword(ctx context.Context, w *worker.Worker, current, newPassword, confirmation string) error {
	if state, _ := o.ctrl.State(); state != StateUnlocked {
		return ErrNotUnlocked
	}
	if newPassword == "" {
		return ErrEmptyPassword
	}
	if newPassword != confirmation {
		return ErrPasswordMismatch
	}

	err := worker.Exec(ctx, w, func(ctx context.Context, conn *store.Conn) error {
		if err := conn.CheckPassphrase(ctx, current); err != nil {
			return err
		}
		return conn.Rekey(ctx, newPassword)
	})
	if errors.Is(err, store.ErrWrongKey) {
		return fmt.Errorf("%w: current password", ErrWrongPassword)
	}
	return err
}

func retryable(err error) bool {
	return errors.Is(err, ErrEmptyPassword) ||
		errors.Is(err, ErrPasswordMismatch) ||
		errors.Is(err, ErrWrongPassword)
}
