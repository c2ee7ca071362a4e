package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var versionMarkChecked bool

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionMarkChecked, "mark-checked", false, "Record that an update check was done now")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and the last update check",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("vaultkeeper %s\n", version)

		dir, err := cfg.AppDir()
		if err != nil {
			return err
		}
		if versionMarkChecked {
			if err := dir.RecordUpdateCheck(time.Now()); err != nil {
				return err
			}
		}

		last, err := dir.LastUpdateCheck()
		if err != nil {
			return err
		}
		if last.IsZero() {
			fmt.Println("Last update check: never")
		} else {
			fmt.Printf("Last update check: %s\n", last.Local().Format(time.RFC3339))
		}
		return nil
	},
}
