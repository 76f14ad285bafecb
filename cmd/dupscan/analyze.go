package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dshills/dupscan/internal/indexer"
	"github.com/dshills/dupscan/internal/searcher"
)

var (
	flagForce   bool
	flagNoPrune bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <dir>",
	Short: "Index a workspace and report duplicate code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		info, err := os.Stat(root)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", root)
		}

		ctx := cmd.Context()
		a, err := openApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		cfg, err := a.cfg.ForWorkspace(root)
		if err != nil {
			return err
		}

		idx := indexer.New(a.store, a.emb, cfg.IndexerConfig(a.logger, nil))
		stats, err := idx.AnalyzeWorkspace(ctx, root, indexer.RunOptions{
			Force: flagForce,
			Prune: !flagNoPrune,
		})
		if err != nil {
			if stats != nil && !flagJSON {
				printStats(os.Stdout, stats)
			}
			if errors.Is(err, ctx.Err()) {
				return fmt.Errorf("analysis interrupted: %w", err)
			}
			return err
		}

		result, err := searcher.NewSearcher(a.store).FindDuplicates(ctx, searchOptions(cfg, stats.Workspace))
		if err != nil {
			return err
		}

		if flagJSON {
			return writeJSON(os.Stdout, analyzeOutput{
				Statistics: newStatsOutput(stats),
				Duplicates: newDuplicatesOutput(result, flagPreview),
			})
		}
		printStats(os.Stdout, stats)
		printGroups(os.Stdout, result, flagPreview)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&flagForce, "force", false, "reanalyse every file regardless of modification time")
	analyzeCmd.Flags().BoolVar(&flagNoPrune, "no-prune", false, "keep index entries for files no longer on disk")
	addSearchFlags(analyzeCmd)
	rootCmd.AddCommand(analyzeCmd)
}
