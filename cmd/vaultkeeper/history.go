package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var historyClear bool

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "Delete all history entries")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent vaultkeeper commands",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := cfg.AppDir()
		if err != nil {
			return err
		}
		h := dir.History(cfg.HistoryMax)

		if historyClear {
			if err := h.Save(); err != nil {
				return err
			}
			fmt.Println("History cleared")
			return nil
		}

		if err := h.Load(); err != nil {
			return err
		}
		for i, e := range h.Entries() {
			fmt.Printf("%5d  %s\n", i+1, e)
		}
		return nil
	},
}
