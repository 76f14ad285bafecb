package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var flagStatusWorkspace string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index statistics",
	Long:  `Show statistics for one workspace, or for the whole index when --workspace is omitted.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		workspace := ""
		if flagStatusWorkspace != "" {
			abs, err := filepath.Abs(flagStatusWorkspace)
			if err != nil {
				return err
			}
			workspace = abs
		}

		ctx := cmd.Context()
		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		status, err := a.store.GetStatus(ctx, workspace)
		if err != nil {
			return err
		}

		var workspaces []string
		if workspace == "" {
			workspaces, err = a.store.ListWorkspaces(ctx)
			if err != nil {
				return err
			}
		}

		if flagJSON {
			return writeJSON(os.Stdout, newStatusOutput(status, workspaces))
		}
		printStatus(os.Stdout, status, workspaces)
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVarP(&flagStatusWorkspace, "workspace", "w", "", "limit statistics to one workspace")
	rootCmd.AddCommand(statusCmd)
}
