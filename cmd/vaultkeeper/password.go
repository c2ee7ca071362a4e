package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forest6511/vaultkeeper/internal/cli"
	"github.com/forest6511/vaultkeeper/pkg/credential"
	"github.com/forest6511/vaultkeeper/pkg/session"
)

func init() {
	rootCmd.AddCommand(passwordCmd)
	passwordCmd.AddCommand(passwordChangeCmd)
}

// passwordCmd is the parent command for password operations.
var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Store password operations",
}

// passwordChangeCmd changes the store password.
var passwordChangeCmd = &cobra.Command{
	Use:   "change",
	Short: "Change the store password",
	Long: `Change the store password by re-wrapping the data key.

Notes are not re-encrypted; only the key slot is rewritten. A password saved
in the OS credential store is updated when it was saved before.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openUnlocked(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		p := cli.NewPrompter()
		current, err := p.Prompt(ctx, "Enter current password: ")
		if err != nil {
			return err
		}
		newPassword, err := p.Prompt(ctx, "Enter new password: ")
		if err != nil {
			return err
		}
		confirm, err := p.Prompt(ctx, "Confirm new password: ")
		if err != nil {
			return err
		}

		err = a.orch.ChangePassword(ctx, a.worker, current, newPassword, confirm)
		switch {
		case errors.Is(err, session.ErrWrongPassword):
			return errors.New("current password is incorrect")
		case errors.Is(err, session.ErrPasswordMismatch):
			return errors.New("new passwords do not match")
		case errors.Is(err, session.ErrEmptyPassword):
			return errors.New("new password must not be empty")
		case err != nil:
			return fmt.Errorf("failed to change password: %w", err)
		}
		fmt.Println("Password changed successfully!")
		warnIfWeak(newPassword)

		if a.creds == nil {
			return nil
		}
		if saved, err := a.creds.Resolve(ctx, credential.ServiceName); err == nil {
			saved.Wipe()
			var warn *session.Warning
			if err := a.orch.Remember(ctx, credential.NewSecret(newPassword)); errors.As(err, &warn) {
				fmt.Printf("Warning: saved password not updated: %v\n", warn.Err)
			}
		}
		return nil
	},
}
