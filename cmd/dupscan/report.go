package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/dshills/dupscan/internal/indexer"
	"github.com/dshills/dupscan/internal/searcher"
	"github.com/dshills/dupscan/internal/storage"
	"github.com/dshills/dupscan/pkg/types"
)

type statsOutput struct {
	RunID      string   `json:"run_id"`
	Workspace  string   `json:"workspace"`
	Analyzed   int      `json:"files_analyzed"`
	Skipped    int      `json:"files_skipped"`
	Failed     int      `json:"files_failed"`
	Removed    int      `json:"files_removed"`
	Chunks     int      `json:"chunks_created"`
	DurationMS int64    `json:"duration_ms"`
	Errors     []string `json:"errors,omitempty"`
}

type duplicatesOutput struct {
	Workspace  string                 `json:"workspace"`
	Groups     []searcher.GroupReport `json:"groups"`
	Pairs      int                    `json:"pair_count"`
	Candidates int                    `json:"candidates"`
	Truncated  bool                   `json:"truncated"`
}

type analyzeOutput struct {
	Statistics statsOutput      `json:"statistics"`
	Duplicates duplicatesOutput `json:"duplicates"`
}

type statusOutput struct {
	Workspace       string   `json:"workspace,omitempty"`
	Workspaces      []string `json:"workspaces,omitempty"`
	Backend         string   `json:"backend"`
	BuildMode       string   `json:"build_mode"`
	Files           int      `json:"files_count"`
	Chunks          int      `json:"chunks_count"`
	Dimension       int      `json:"dimension"`
	LastIndexedAt   string   `json:"last_indexed_at,omitempty"`
	VectorExtension bool     `json:"vector_extension_available"`
}

func newStatsOutput(stats *indexer.Statistics) statsOutput {
	return statsOutput{
		RunID:      stats.RunID,
		Workspace:  stats.Workspace,
		Analyzed:   stats.Analyzed,
		Skipped:    stats.Skipped,
		Failed:     stats.Failed,
		Removed:    stats.Removed,
		Chunks:     stats.Chunks,
		DurationMS: stats.Duration.Milliseconds(),
		Errors:     stats.Errors,
	}
}

func newDuplicatesOutput(result *searcher.Result, previewLen int) duplicatesOutput {
	return duplicatesOutput{
		Workspace:  result.Workspace,
		Groups:     searcher.Report(result.Groups, result.Workspace, previewLen),
		Pairs:      len(result.Pairs),
		Candidates: result.Candidates,
		Truncated:  result.Truncated,
	}
}

func newStatusOutput(status *storage.Status, workspaces []string) statusOutput {
	out := statusOutput{
		Workspace:       status.Workspace,
		Workspaces:      workspaces,
		Backend:         status.Backend,
		BuildMode:       status.BuildMode,
		Files:           status.FilesCount,
		Chunks:          status.ChunksCount,
		Dimension:       status.Dimension,
		VectorExtension: status.Health.VectorExtensionAvailable,
	}
	if !status.LastIndexedAt.IsZero() {
		out.LastIndexedAt = status.LastIndexedAt.UTC().Format(time.RFC3339)
	}
	return out
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printStats writes the run summary, listing failed files
func printStats(w io.Writer, stats *indexer.Statistics) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(w, "%s %s\n", cyan("Analyzed"), stats.Workspace)
	fmt.Fprintf(w, "  Files:   %d analyzed, %d skipped, %d failed, %d removed\n",
		stats.Analyzed, stats.Skipped, stats.Failed, stats.Removed)
	fmt.Fprintf(w, "  Chunks:  %d\n", stats.Chunks)
	fmt.Fprintf(w, "  Time:    %s\n", stats.Duration.Round(time.Millisecond))

	for _, o := range stats.Outcomes {
		switch {
		case o.Status == types.StatusFailed:
			fmt.Fprintf(w, "  %s %s: %v\n", red("✗"), o.Path, o.Err)
		case o.Status == types.StatusSkipped && o.Err != nil:
			fmt.Fprintf(w, "  %s %s (%s): %v\n", gray("-"), o.Path, o.Reason, o.Err)
		}
	}
	fmt.Fprintln(w)
}

// printGroups writes one block per duplicate group
func printGroups(w io.Writer, result *searcher.Result, previewLen int) {
	yellow := color.New(color.FgYellow, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	if len(result.Groups) == 0 {
		fmt.Fprintf(w, "%s no duplicate code found\n", green("✓"))
		return
	}

	fmt.Fprintf(w, "%s\n\n", yellow(fmt.Sprintf("%d duplicate group(s)", len(result.Groups))))
	for i, g := range searcher.Report(result.Groups, result.Workspace, previewLen) {
		fmt.Fprintf(w, "Group %d  similarity %.3f  %d chunk(s) in %d file(s)\n",
			i+1, g.Similarity, len(g.Chunks), g.Files)
		for _, c := range g.Chunks {
			fmt.Fprintf(w, "  %s:%d-%d\n", c.File, c.StartLine, c.EndLine)
			if c.Preview != "" {
				fmt.Fprintf(w, "    %s\n", gray(c.Preview))
			}
		}
		fmt.Fprintln(w)
	}

	if result.Truncated {
		fmt.Fprintf(w, "%s candidate cap reached (%d); results may be incomplete\n",
			yellow("!"), result.Candidates)
	}
}

// printStatus writes index statistics
func printStatus(w io.Writer, status *storage.Status, workspaces []string) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	title := "Index"
	if status.Workspace != "" {
		title = "Workspace " + status.Workspace
	}
	fmt.Fprintf(w, "%s\n", cyan(title))
	fmt.Fprintf(w, "  Backend:   %s (%s)\n", status.Backend, status.BuildMode)
	fmt.Fprintf(w, "  Files:     %d\n", status.FilesCount)
	fmt.Fprintf(w, "  Chunks:    %d\n", status.ChunksCount)
	if status.Dimension > 0 {
		fmt.Fprintf(w, "  Dimension: %d\n", status.Dimension)
	}
	if status.LastIndexedAt.IsZero() {
		fmt.Fprintf(w, "  Indexed:   %s\n", gray("never"))
	} else {
		fmt.Fprintf(w, "  Indexed:   %s\n", status.LastIndexedAt.Format(time.RFC3339))
	}

	if len(workspaces) > 0 {
		fmt.Fprintf(w, "  Workspaces:\n")
		for _, ws := range workspaces {
			fmt.Fprintf(w, "    %s\n", ws)
		}
	}
}
