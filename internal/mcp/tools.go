package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/dupscan/internal/config"
	"github.com/dshills/dupscan/internal/indexer"
	"github.com/dshills/dupscan/internal/searcher"
	"github.com/dshills/dupscan/internal/storage"
	"github.com/dshills/dupscan/pkg/types"
)

const (
	ErrorCodeInvalidParams        = -32602 // Invalid method parameters
	ErrorCodeInternalError        = -32603 // Internal JSON-RPC error
	ErrorCodeWorkspaceNotFound    = -32001 // Path does not exist
	ErrorCodeAnalysisInProgress   = -32002 // Another analysis is writing to the index
	ErrorCodeNotIndexed           = -32003 // Workspace has never been analysed
	ErrorCodeConfirmationRequired = -32004 // Destructive call without confirm: true
	ErrorCodeStoreUnavailable     = -32005 // Index database cannot be reached
)

const (
	maxLimit       = 1000
	defaultPreview = 120
	maxErrors      = 5
)

// handleAnalyzeWorkspace indexes the workspace, then searches it
func (s *Server) handleAnalyzeWorkspace(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	workspace, err := workspaceParam(args, true)
	if err != nil {
		return nil, err
	}

	cfg, err := s.workspaceConfig(workspace)
	if err != nil {
		return nil, err
	}
	opts, err := searchOptions(cfg, workspace, args)
	if err != nil {
		return nil, err
	}

	idx := indexer.New(s.storage, s.embedder, cfg.IndexerConfig(s.logger, s.lock))
	stats, err := idx.AnalyzeWorkspace(ctx, workspace, indexer.RunOptions{
		Force: boolArg(args, "force", false),
		Prune: boolArg(args, "prune", true),
	})
	if err != nil {
		return nil, mapError("analysis failed", err)
	}

	// The index changed underneath any cached search
	s.searcher.InvalidateCache()

	result, err := s.searcher.FindDuplicates(ctx, opts)
	if err != nil {
		return nil, mapError("search failed", err)
	}

	response := map[string]interface{}{
		"run_id":         stats.RunID,
		"workspace":      stats.Workspace,
		"files_analyzed": stats.Analyzed,
		"files_skipped":  stats.Skipped,
		"files_failed":   stats.Failed,
		"files_removed":  stats.Removed,
		"chunks_created": stats.Chunks,
		"duration_ms":    stats.Duration.Milliseconds(),
		"duplicates":     duplicatesResponse(result, intArg(args, "preview", defaultPreview)),
	}

	if len(stats.Errors) > 0 {
		// Include first few errors
		if len(stats.Errors) > maxErrors {
			response["errors"] = stats.Errors[:maxErrors]
			response["error_count"] = len(stats.Errors)
		} else {
			response["errors"] = stats.Errors
		}
	}

	return jsonResult(response), nil
}

func (s *Server) handleFindDuplicates(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	workspace, err := workspaceParam(args, true)
	if err != nil {
		return nil, err
	}

	if s.lock.Held() {
		return nil, toolError(ErrorCodeAnalysisInProgress, "analysis in progress, retry when it finishes", nil)
	}

	cfg, err := s.workspaceConfig(workspace)
	if err != nil {
		return nil, err
	}
	opts, err := searchOptions(cfg, workspace, args)
	if err != nil {
		return nil, err
	}

	status, err := s.storage.GetStatus(ctx, workspace)
	if err != nil {
		return nil, mapError("failed to get status", err)
	}
	if status.FilesCount == 0 {
		return nil, toolError(ErrorCodeNotIndexed, "workspace not indexed, run analyze_workspace first", map[string]interface{}{
			"path": workspace,
		})
	}

	opts.UseCache = true
	result, err := s.searcher.FindDuplicates(ctx, opts)
	if err != nil {
		return nil, mapError("search failed", err)
	}

	response := duplicatesResponse(result, intArg(args, "preview", defaultPreview))
	response["workspace"] = workspace
	return jsonResult(response), nil
}

// handleGetStatus reports index counts, for one workspace when path is set
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	workspace, err := workspaceParam(args, false)
	if err != nil {
		return nil, err
	}

	status, err := s.storage.GetStatus(ctx, workspace)
	if err != nil {
		return nil, mapError("failed to get status", err)
	}

	response := map[string]interface{}{
		"indexed":          status.FilesCount > 0,
		"analysis_running": s.lock.Held(),
		"statistics": map[string]interface{}{
			"files_count":  status.FilesCount,
			"chunks_count": status.ChunksCount,
			"dimension":    status.Dimension,
		},
		"backend": map[string]interface{}{
			"name":       status.Backend,
			"build_mode": status.BuildMode,
			"provider":   s.embedder.Provider(),
			"model":      s.embedder.Model(),
		},
		"health": map[string]interface{}{
			"database_accessible":        status.Health.DatabaseAccessible,
			"vector_extension_available": status.Health.VectorExtensionAvailable,
		},
	}
	if !status.LastIndexedAt.IsZero() {
		response["last_indexed_at"] = status.LastIndexedAt.UTC().Format(time.RFC3339)
	}

	if workspace != "" {
		response["workspace"] = workspace
	} else {
		workspaces, err := s.storage.ListWorkspaces(ctx)
		if err != nil {
			return nil, mapError("failed to list workspaces", err)
		}
		response["workspaces"] = workspaces
	}

	return jsonResult(response), nil
}

// handleDeleteIndex drops every workspace from the index
func (s *Server) handleDeleteIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	if confirm, _ := args["confirm"].(bool); !confirm {
		return nil, toolError(ErrorCodeConfirmationRequired, "delete_index requires confirm: true", map[string]interface{}{
			"param": "confirm",
		})
	}

	if !s.lock.TryAcquire() {
		return nil, toolError(ErrorCodeAnalysisInProgress, "analysis in progress, retry when it finishes", nil)
	}
	defer s.lock.Release()

	if err := s.storage.DeleteDatabase(ctx); err != nil {
		return nil, mapError("failed to delete index", err)
	}
	s.searcher.InvalidateCache()
	s.logger.Info("index deleted")

	return jsonResult(map[string]interface{}{"deleted": true}), nil
}

// workspaceConfig applies the workspace's project file to the server config
func (s *Server) workspaceConfig(workspace string) (*config.Config, error) {
	cfg, err := s.cfg.ForWorkspace(workspace)
	if err != nil {
		return nil, toolError(ErrorCodeInvalidParams, "invalid project configuration", map[string]interface{}{
			"file":   config.ProjectFileName,
			"reason": err.Error(),
		})
	}
	return cfg, nil
}

// searchOptions builds searcher options from config and tool arguments.
// A min_similarity looser than the coarse cap widens the cap to match.
func searchOptions(cfg *config.Config, workspace string, args map[string]interface{}) (searcher.Options, error) {
	opts := cfg.SearchOptions(workspace)

	if _, ok := args["limit"]; ok {
		limit := intArg(args, "limit", 0)
		if limit < 1 || limit > maxLimit {
			return opts, toolError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", maxLimit), map[string]interface{}{
				"param": "limit",
				"value": limit,
			})
		}
		opts.Limit = limit
	}

	if v, ok := args["min_similarity"]; ok {
		sim, isNum := v.(float64)
		if !isNum || sim <= 0 || sim >= 1 {
			return opts, toolError(ErrorCodeInvalidParams, "min_similarity must be a number in (0, 1)", map[string]interface{}{
				"param": "min_similarity",
				"value": v,
			})
		}
		opts.MinSimilarity = sim
		if 1-sim > opts.MaxDistance {
			opts.MaxDistance = 1 - sim
		}
	}

	return opts, nil
}

func duplicatesResponse(result *searcher.Result, previewLen int) map[string]interface{} {
	return map[string]interface{}{
		"groups":      searcher.Report(result.Groups, result.Workspace, previewLen),
		"group_count": len(result.Groups),
		"pair_count":  len(result.Pairs),
		"candidates":  result.Candidates,
		"truncated":   result.Truncated,
		"search_ms":   result.Duration.Milliseconds(),
	}
}

// mapError converts pipeline errors to MCP errors
func mapError(message string, err error) error {
	code := ErrorCodeInternalError
	switch {
	case errors.Is(err, indexer.ErrAnalysisInProgress):
		code = ErrorCodeAnalysisInProgress
	case errors.Is(err, storage.ErrUnavailable):
		code = ErrorCodeStoreUnavailable
	case errors.Is(err, types.ErrNoWorkspace), errors.Is(err, searcher.ErrInvalidOptions):
		code = ErrorCodeInvalidParams
	}
	return toolError(code, message, map[string]interface{}{
		"error": err.Error(),
	})
}

// MCPError is returned from tool handlers. Code follows JSON-RPC error
// numbering; Data carries the offending parameter or underlying error.
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("dupscan: %s (code %d)", e.Message, e.Code)
}

func toolError(code int, message string, data interface{}) error {
	return &MCPError{Code: code, Message: message, Data: data}
}

// arguments returns the call arguments; a call without any yields an empty map
func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	switch args := request.Params.Arguments.(type) {
	case nil:
		return map[string]interface{}{}, nil
	case map[string]interface{}:
		return args, nil
	default:
		return nil, toolError(ErrorCodeInvalidParams, "arguments must be an object", nil)
	}
}

// workspaceParam reads and validates the path argument. When mustExist is
// false an empty path is allowed and existence is not checked.
func workspaceParam(args map[string]interface{}, mustExist bool) (string, error) {
	invalid := func(code int, reason string) error {
		return toolError(code, "invalid path", map[string]interface{}{"param": "path", "reason": reason})
	}

	path, _ := args["path"].(string)
	switch {
	case path == "" && !mustExist:
		return "", nil
	case path == "":
		return "", invalid(ErrorCodeInvalidParams, "missing or empty")
	case !filepath.IsAbs(path):
		return "", invalid(ErrorCodeInvalidParams, ErrPathNotAbsolute.Error())
	}

	path = filepath.Clean(path)
	if !mustExist {
		return path, nil
	}
	if err := checkDir(path); err != nil {
		code := ErrorCodeInvalidParams
		if errors.Is(err, ErrPathNotFound) {
			code = ErrorCodeWorkspaceNotFound
		}
		return "", invalid(code, err.Error())
	}
	return path, nil
}

// checkDir reports whether path is a directory that can be listed
func checkDir(path string) error {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrPathNotFound
	case err != nil:
		return ErrPathNotReadable
	case !info.IsDir():
		return ErrNotDirectory
	}

	d, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	return d.Close()
}

func jsonResult(v interface{}) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(data))
}

func boolArg(args map[string]interface{}, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

// intArg accepts JSON numbers (float64) as well as ints from in-process callers
func intArg(args map[string]interface{}, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

var (
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
