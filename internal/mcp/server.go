package mcp

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/dupscan/internal/config"
	"github.com/dshills/dupscan/internal/embedder"
	"github.com/dshills/dupscan/internal/indexer"
	"github.com/dshills/dupscan/internal/searcher"
	"github.com/dshills/dupscan/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "dupscan"
	// ServerVersion is the current server version
	ServerVersion = "0.3.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	cfg      *config.Config
	storage  storage.Storage
	embedder embedder.Embedder
	searcher *searcher.Searcher
	lock     *indexer.IndexLock
	logger   *slog.Logger
}

// NewServer creates a new MCP server instance. The caller keeps ownership
// of store and emb and closes them after Serve returns.
func NewServer(cfg *config.Config, store storage.Storage, emb embedder.Embedder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mcp: server.NewMCPServer(
			ServerName,
			ServerVersion,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		cfg:      cfg,
		storage:  store,
		embedder: emb,
		searcher: searcher.NewSearcher(store),
		lock:     &indexer.IndexLock{},
		logger:   logger,
	}

	s.registerTools()
	return s
}

// Serve speaks MCP over in/out until ctx is cancelled or in is closed
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))

	err := stdio.Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(analyzeWorkspaceTool(), s.handleAnalyzeWorkspace)
	s.mcp.AddTool(findDuplicatesTool(), s.handleFindDuplicates)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(deleteIndexTool(), s.handleDeleteIndex)
}
