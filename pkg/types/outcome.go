package types

import "fmt"

// OutcomeStatus is the result class of analysing a single file.
type OutcomeStatus string

const (
	StatusAnalyzed OutcomeStatus = "analyzed"
	StatusSkipped  OutcomeStatus = "skipped"
	StatusFailed   OutcomeStatus = "failed"
)

// Skip reasons
const (
	ReasonUnchanged = "unchanged"
	ReasonStatError = "stat error"
	ReasonTooLarge  = "too large"
)

// FileOutcome is the value returned for every file a run looks at.
type FileOutcome struct {
	Path   string
	Status OutcomeStatus
	Reason string // set for skipped files
	Chunks int    // chunks written for analyzed files
	Err    error  // set for failed files, and for skips caused by an error
}

// Analyzed builds the outcome for a file that was re-chunked and stored.
func Analyzed(path string, chunks int) FileOutcome {
	return FileOutcome{Path: path, Status: StatusAnalyzed, Chunks: chunks}
}

// Skipped builds the outcome for a file that was left untouched.
func Skipped(path, reason string) FileOutcome {
	return FileOutcome{Path: path, Status: StatusSkipped, Reason: reason}
}

// SkippedWithError builds a skip outcome that still reports the error that caused it.
func SkippedWithError(path, reason string, err error) FileOutcome {
	return FileOutcome{Path: path, Status: StatusSkipped, Reason: reason, Err: err}
}

// Failed builds the outcome for a file whose analysis did not complete.
func Failed(path string, err error) FileOutcome {
	return FileOutcome{Path: path, Status: StatusFailed, Err: err}
}

func (o FileOutcome) String() string {
	switch o.Status {
	case StatusAnalyzed:
		return fmt.Sprintf("%s: analyzed (%d chunks)", o.Path, o.Chunks)
	case StatusSkipped:
		return fmt.Sprintf("%s: skipped (%s)", o.Path, o.Reason)
	default:
		return fmt.Sprintf("%s: failed: %v", o.Path, o.Err)
	}
}
