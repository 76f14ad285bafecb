// Package indexer keeps the chunk index of a workspace up to date.
//
// A run walks the workspace, then handles files one at a time:
//
//  1. Stat: a file whose modification time is not newer than the recorded
//     one is skipped. Stat errors skip the file and are reported.
//  2. Read and decode: invalid UTF-8 fails the file.
//  3. Chunk: fixed-size line windows, normalized.
//  4. Embed: batches of BatchSize texts, up to Workers batches at once.
//  5. Replace: one transaction deletes the old chunks, upserts the file
//     record and inserts the new chunks.
//
// Every file yields a types.FileOutcome (analyzed, skipped or failed).
// Outcomes are folded into Statistics; a failing file never stops the run.
// Store unavailability and context cancellation do.
//
// # Basic Usage
//
//	idx := indexer.New(store, emb, indexer.Config{Logger: logger})
//
//	stats, err := idx.AnalyzeWorkspace(ctx, "/path/to/project", indexer.RunOptions{Prune: true})
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("%d analyzed, %d skipped, %d failed\n", stats.Analyzed, stats.Skipped, stats.Failed)
//
// # Sessions
//
// The recorded modification times live in a Session created at the start
// of each run from the store. Nothing is cached across runs, so a second
// process writing the same index is picked up on the next run.
//
// # Concurrency
//
// Only one run per Indexer may be active; a second AnalyzeWorkspace call
// returns ErrAnalysisInProgress. Running reports whether a run is active so
// searches can be refused while the index is being written.
package indexer
