package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/forest6511/vaultkeeper/internal/cli"
	"github.com/forest6511/vaultkeeper/pkg/credential"
	"github.com/forest6511/vaultkeeper/pkg/security"
	"github.com/forest6511/vaultkeeper/pkg/session"
)

// newPrompter is replaced in tests.
var newPrompter = func() session.Prompter { return cli.NewPrompter() }

var unlockRemember bool

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(credentialCmd)
	credentialCmd.AddCommand(credentialStatusCmd)
	credentialCmd.AddCommand(credentialForgetCmd)

	initCmd.Flags().BoolVar(&unlockRemember, "remember", false, "Save the password in the OS credential store")
	unlockCmd.Flags().BoolVar(&unlockRemember, "remember", false, "Save the password in the OS credential store")
}

// initCmd creates a new store
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new encrypted store",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.ctrl.NeedsNewPassword() {
			return fmt.Errorf("a store already exists at %s", a.ctrl.StorePath())
		}

		fmt.Fprintln(os.Stderr, "Creating a new store...")
		res, err := a.unlock(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to create store: %w", err)
		}
		defer res.Password.Wipe()

		fmt.Printf("Store created at %s\n", res.StorePath)
		warnIfWeak(res.Password.Reveal())
		return rememberIfRequested(cmd, a, res)
	},
}

// unlockCmd checks the password and optionally saves it
var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Verify the store password, optionally saving it to the OS credential store",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if a.ctrl.NeedsNewPassword() {
			return errors.New("no store found: run 'vaultkeeper init' first")
		}
		res, err := a.unlock(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to unlock store: %w", err)
		}
		defer res.Password.Wipe()

		if res.FromCredentialStore {
			fmt.Println("Store unlocked with the saved credential")
			return nil
		}
		fmt.Println("Store unlocked")
		return rememberIfRequested(cmd, a, res)
	},
}

// rememberIfRequested saves the typed password when --remember is set and
// the controller has announced the unlock. A failure is reported but does
// not fail the command.
func rememberIfRequested(cmd *cobra.Command, a *app, res *session.Result) error {
	if !unlockRemember || res.FromCredentialStore {
		return nil
	}
	var u session.Unlocked
	select {
	case u = <-a.ctrl.Events():
	default:
		return errors.New("store was not unlocked by this command")
	}
	log.WithFields(logrus.Fields{"store": u.StorePath, "created": u.Created}).Debug("saving password after unlock")

	err := a.orch.Remember(cmd.Context(), res.Password)
	var warn *session.Warning
	if errors.As(err, &warn) {
		fmt.Fprintf(os.Stderr, "Warning: password not saved: %v\n", warn.Err)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Println("Password saved to the OS credential store")
	return nil
}

// warnIfWeak prints a warning for a short new password. Any password is
// accepted.
func warnIfWeak(password string) {
	if security.PasswordStrength(password) == security.Weak {
		fmt.Fprintf(os.Stderr, "Warning: password is weak; use at least %d characters\n", security.MinPasswordLength)
	}
}

// credentialCmd is the parent command for credential store operations
var credentialCmd = &cobra.Command{
	Use:   "credential",
	Short: "Manage the password saved in the OS credential store",
}

var credentialStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a password is saved",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.UseKeyring {
			fmt.Println("Credential store: disabled")
			return nil
		}
		r := credential.NewDefaultResolver(log)
		secret, err := r.Resolve(cmd.Context(), credential.ServiceName)
		switch {
		case errors.Is(err, credential.ErrSecretNotFound):
			fmt.Println("Credential store: no password saved")
		case err != nil:
			fmt.Printf("Credential store: unavailable (%v)\n", err)
		default:
			secret.Wipe()
			fmt.Printf("Credential store: password saved (%s)\n", r.Source())
		}
		return nil
	},
}

var credentialForgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Delete the saved password",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.UseKeyring {
			return errors.New("credential store is disabled")
		}
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.orch.Forget(cmd.Context()); err != nil {
			return fmt.Errorf("failed to delete saved password: %w", err)
		}
		fmt.Println("Saved password deleted")
		return nil
	},
}
