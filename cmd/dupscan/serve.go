package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/dupscan/internal/mcp"
	"github.com/dshills/dupscan/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		a.logger.Info("MCP server starting",
			"version", version,
			"backend", a.cfg.Backend,
			"build_mode", storage.BuildMode,
			"driver", storage.DriverName,
			"vector_extension", storage.VectorExtensionAvailable)

		server := mcp.NewServer(a.cfg, a.store, a.emb, a.logger)

		a.logger.Info("MCP server ready, listening on stdio")
		if err := server.Serve(ctx, os.Stdin, os.Stdout); err != nil {
			a.logger.Error("server error", "error", err)
			return err
		}

		a.logger.Info("server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
