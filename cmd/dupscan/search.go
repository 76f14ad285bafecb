package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dshills/dupscan/internal/searcher"
)

var flagWorkspace string

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Report duplicate code from the existing index without reanalysing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		workspace, err := workspaceFlag()
		if err != nil {
			return err
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
		if status.FilesCount == 0 {
			return fmt.Errorf("workspace %s is not indexed, run 'dupscan analyze %s' first", workspace, workspace)
		}

		cfg, err := a.cfg.ForWorkspace(workspace)
		if err != nil {
			return err
		}

		result, err := searcher.NewSearcher(a.store).FindDuplicates(ctx, searchOptions(cfg, workspace))
		if err != nil {
			return err
		}

		if flagJSON {
			return writeJSON(os.Stdout, newDuplicatesOutput(result, flagPreview))
		}
		printGroups(os.Stdout, result, flagPreview)
		return nil
	},
}

// workspaceFlag resolves --workspace, defaulting to the current directory
func workspaceFlag() (string, error) {
	if flagWorkspace == "" {
		return os.Getwd()
	}
	return filepath.Abs(flagWorkspace)
}

func init() {
	searchCmd.Flags().StringVarP(&flagWorkspace, "workspace", "w", "", "analysed workspace (default: current directory)")
	addSearchFlags(searchCmd)
	rootCmd.AddCommand(searchCmd)
}
