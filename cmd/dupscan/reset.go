package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var flagYes bool

var errNotConfirmed = errors.New("refusing to delete the index without --yes")

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every workspace from the index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !flagYes {
			return errNotConfirmed
		}

		ctx := cmd.Context()
		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.DeleteDatabase(ctx); err != nil {
			return err
		}
		a.logger.Info("index deleted", "backend", a.cfg.Backend)

		if flagJSON {
			return writeJSON(os.Stdout, map[string]bool{"deleted": true})
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Fprintf(os.Stdout, "%s index deleted\n", green("✓"))
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&flagYes, "yes", false, "confirm deletion")
	rootCmd.AddCommand(resetCmd)
}
