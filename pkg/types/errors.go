package types

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrInvalidWindow     = errors.New("window size must be > 0")
	ErrInvalidChunk      = errors.New("invalid chunk")
	ErrUndecodable       = errors.New("file content is not valid UTF-8")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrNoWorkspace       = errors.New("no workspace given")
	ErrBatchMismatch     = errors.New("embedding batch size mismatch")
)

// File operations reported in FileError.
const (
	OpStat    = "stat"
	OpRead    = "read"
	OpDecode  = "decode"
	OpChunk   = "chunk"
	OpEmbed   = "embed"
	OpReplace = "replace"
	OpPrune   = "prune"
)

// FileError records a failure while processing a single file.
type FileError struct {
	Path string
	Op   string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// NewFileError wraps err with the path and operation that produced it.
func NewFileError(path, op string, err error) *FileError {
	return &FileError{Path: path, Op: op, Err: err}
}
