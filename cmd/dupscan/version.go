package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/dupscan/internal/storage"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagJSON {
			return writeJSON(os.Stdout, map[string]interface{}{
				"version":          version,
				"build_time":       buildTime,
				"build_mode":       storage.BuildMode,
				"sqlite_driver":    storage.DriverName,
				"vector_extension": storage.VectorExtensionAvailable,
			})
		}
		fmt.Printf("dupscan\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", storage.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
		fmt.Printf("Vector Extension: %v\n", storage.VectorExtensionAvailable)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
