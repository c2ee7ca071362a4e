package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/forest6511/vaultkeeper/internal/cli"
	"github.com/forest6511/vaultkeeper/internal/logger"
	"github.com/forest6511/vaultkeeper/pkg/config"
	"github.com/forest6511/vaultkeeper/pkg/notes"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate completion script for your shell",
	Long: `To load completions:

Bash:
  $ source <(vaultkeeper completion bash)

Zsh:
  $ vaultkeeper completion zsh > ~/.zsh/completions/_vaultkeeper

Fish:
  $ vaultkeeper completion fish > ~/.config/fish/completions/vaultkeeper.fish

PowerShell:
  PS> vaultkeeper completion powershell >> $PROFILE

Dynamic completion (note titles):
  Set VAULTKEEPER_COMPLETION_ENABLED=1 to complete note titles. Titles are
  only offered when the password is saved in the OS credential store;
  completion never prompts.
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(os.Stdout)
		case "zsh":
			return cmd.Root().GenZshCompletion(os.Stdout)
		case "fish":
			return cmd.Root().GenFishCompletion(os.Stdout, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)

	noteGetCmd.ValidArgsFunction = completeNoteTitles
	noteRmCmd.ValidArgsFunction = completeNoteTitles
}

func isDynamicCompletionEnabled() bool {
	return os.Getenv("VAULTKEEPER_COMPLETION_ENABLED") == "1"
}

// completeNoteTitles offers note titles starting with toComplete. The store
// is unlocked from the OS credential store only; anything else yields no
// suggestions.
func completeNoteTitles(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if !isDynamicCompletionEnabled() {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	titles, err := noteTitlesForCompletion(cmd.Context())
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return cli.FilterPrefix(titles, toComplete), cobra.ShellCompDirectiveNoFileComp
}

func noteTitlesForCompletion(ctx context.Context) ([]string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	// Unset when called outside a command run.
	if cfg == nil {
		c, err := config.Load(flagDir)
		if err != nil {
			return nil, err
		}
		cfg = c
	}
	if log == nil {
		l, err := logger.Setup(logger.Options{Level: "error"})
		if err != nil {
			return nil, err
		}
		log = l
	}
	if !cfg.UseKeyring {
		return nil, errInteractiveUnlock
	}

	a, err := openApp()
	if err != nil {
		return nil, err
	}
	defer a.Close()
	if a.ctrl.NeedsNewPassword() {
		return nil, nil
	}
	if _, err := a.orch.Unlock(ctx, noPrompter{}); err != nil {
		return nil, err
	}

	ns, err := notes.Open(ctx, a.worker)
	if err != nil {
		return nil, err
	}
	sums, err := ns.List(ctx)
	if err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(sums))
	for _, s := range sums {
		titles = append(titles, s.Title)
	}
	return titles, nil
}
