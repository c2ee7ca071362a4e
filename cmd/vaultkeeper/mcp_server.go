package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forest6511/vaultkeeper/internal/mcp"
	"github.com/forest6511/vaultkeeper/pkg/notes"
	"github.com/forest6511/vaultkeeper/pkg/session"
)

func init() {
	rootCmd.AddCommand(mcpServerCmd)
}

// errInteractiveUnlock is returned by noPrompter; the MCP server owns stdio
// and cannot ask for a password.
var errInteractiveUnlock = errors.New("password required: set VAULTKEEPER_PASSWORD or save one with 'vaultkeeper unlock --remember'")

// noPrompter fails every prompt.
type noPrompter struct{}

var _ session.Prompter = noPrompter{}

func (noPrompter) PromptPassword(context.Context) (string, error) { return "", errInteractiveUnlock }
func (noPrompter) PromptNewPassword(context.Context) (string, string, error) {
	return "", "", errInteractiveUnlock
}
func (noPrompter) Rejected(error) {}

// mcpServerCmd starts the MCP server for AI coding assistant integration
var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Start the MCP server for AI coding assistant integration",
	Long: `Start an MCP server over stdio that exposes note metadata to AI coding
assistants. Note bodies are never returned in plaintext.

Available tools:
  - store_status:     Store path, schema version and note count
  - note_list:        Note titles and tags, optionally filtered by tag
  - note_search:      Search note titles and tags
  - note_get_masked:  Masked note body (e.g., "****cdef")

Authentication:
  The store must already exist. The password is taken from
  VAULTKEEPER_PASSWORD (read once and cleared from the environment) or from
  the OS credential store. The server never prompts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if a.ctrl.NeedsNewPassword() {
			return errors.New("no store found: run 'vaultkeeper init' first")
		}
		if _, err := a.unlockWith(ctx, noPrompter{}); err != nil {
			return fmt.Errorf("failed to unlock store: %w", err)
		}

		ns, err := notes.Open(ctx, a.worker)
		if err != nil {
			return err
		}
		server, err := mcp.NewServer(mcp.ServerOptions{
			Notes:   ns,
			Session: a.ctrl,
			Worker:  a.worker,
			Version: version,
			Logger:  log,
		})
		if err != nil {
			return fmt.Errorf("failed to create MCP server: %w", err)
		}

		if err := server.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("MCP server error: %w", err)
		}
		return nil
	},
}
