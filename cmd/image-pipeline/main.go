package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "image-pipeline",
		Short: "Tiled image filter pipeline served over MCP",
		Long: `image-pipeline builds chains of image filters, inserts the converters
needed between them and renders tiles through a shared tile cache.

Configuration is read from image-pipeline.yaml in the working directory or
the file named by --config. Every key can be overridden by an environment
variable: cache.memory_mb becomes IMAGE_PIPELINE_CACHE_MEMORY_MB.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./image-pipeline.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
