package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/forest6511/vaultkeeper/internal/cli"
	"github.com/forest6511/vaultkeeper/pkg/notes"
)

// Note flags
var (
	notePutTags string
	noteRmForce bool
)

func init() {
	rootCmd.AddCommand(noteCmd)
	noteCmd.AddCommand(notePutCmd)
	noteCmd.AddCommand(noteGetCmd)
	noteCmd.AddCommand(noteListCmd)
	noteCmd.AddCommand(noteRmCmd)
	noteCmd.AddCommand(noteSearchCmd)

	notePutCmd.Flags().StringVar(&notePutTags, "tags", "", "Comma-separated tags (e.g., dev,api)")
	noteRmCmd.Flags().BoolVarP(&noteRmForce, "force", "f", false, "Delete several notes without listing them first")
}

// noteCmd is the parent command for note operations
var noteCmd = &cobra.Command{
	Use:   "note",
	Short: "Encrypted note operations",
}

var notePutCmd = &cobra.Command{
	Use:   "put [title]",
	Short: "Save a note read from standard input",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Unlock first: a password prompt reads the first line of piped input.
		a, ns, err := openNotes(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if isTerminal(os.Stdin) {
			fmt.Fprint(os.Stderr, "Enter note (Ctrl+D to finish): ")
		}
		body, err := io.ReadAll(io.LimitReader(os.Stdin, notes.MaxBodySize+1))
		if err != nil {
			return fmt.Errorf("failed to read note: %w", err)
		}
		text := strings.TrimSuffix(strings.TrimSuffix(string(body), "\n"), "\r")

		var tags []string
		if notePutTags != "" {
			for _, t := range strings.Split(notePutTags, ",") {
				if t = strings.TrimSpace(t); t != "" {
					tags = append(tags, t)
				}
			}
		}

		if err := ns.Put(cmd.Context(), &notes.Note{Title: args[0], Body: text, Tags: tags}); err != nil {
			return fmt.Errorf("failed to save note: %w", err)
		}
		fmt.Printf("Note '%s' saved\n", args[0])
		return nil
	},
}

var noteGetCmd = &cobra.Command{
	Use:   "get [title]",
	Short: "Print a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ns, err := openNotes(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := ns.Get(cmd.Context(), args[0])
		if err != nil {
			if errors.Is(err, notes.ErrNoteNotFound) {
				return fmt.Errorf("note '%s' not found", args[0])
			}
			return err
		}
		fmt.Println(n.Body)
		return nil
	},
}

var noteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ns, err := openNotes(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := ns.List(cmd.Context())
		if err != nil {
			return err
		}
		printSummaries(os.Stdout, list)
		return nil
	},
}

var noteSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search note titles and tags",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ns, err := openNotes(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := ns.Search(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printSummaries(os.Stdout, list)
		return nil
	},
}

var noteRmCmd = &cobra.Command{
	Use:   "rm [title-or-pattern...]",
	Short: "Delete notes by title or glob pattern",
	Long: `Delete notes. Each argument is an exact title or a glob pattern
(e.g., 'tmp/*'). When a pattern selects more than one note they are listed
and nothing is deleted unless --force is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ns, err := openNotes(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := ns.List(cmd.Context())
		if err != nil {
			return err
		}
		titles := make([]string, 0, len(list))
		for _, n := range list {
			titles = append(titles, n.Title)
		}

		selected, err := cli.MatchTitles(args, titles)
		if err != nil {
			return err
		}
		if len(selected) > 1 && !noteRmForce {
			fmt.Println("The following notes would be deleted:")
			for _, t := range selected {
				fmt.Printf("  %s\n", t)
			}
			return errors.New("refusing to delete several notes without --force")
		}

		for _, t := range selected {
			if err := ns.Delete(cmd.Context(), t); err != nil {
				return fmt.Errorf("failed to delete note '%s': %w", t, err)
			}
			fmt.Printf("Note '%s' deleted\n", t)
		}
		return nil
	},
}

func printSummaries(w io.Writer, list []notes.Summary) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No notes found")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TITLE\tTAGS\tUPDATED")
	for _, n := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", n.Title, strings.Join(n.Tags, ","), n.UpdatedAt.Local().Format(time.DateTime))
	}
	tw.Flush()
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
