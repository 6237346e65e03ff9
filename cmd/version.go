package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jhh003/limbusguide/internal/config"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本与配置信息",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVersion()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion() error {
	fmt.Printf("limbusguide %s\n", AppVersion)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  Database: %s\n", cfg.DBPath)
	fmt.Printf("  Top K: %d\n", cfg.Retrieval.TopK)
	fmt.Printf("  Chunk size: %d (overlap %d)\n", cfg.Retrieval.ChunkSize, cfg.Retrieval.Overlap)
	fmt.Printf("  Embedding: %v\n", cfg.Retrieval.UseEmbedding)
	fmt.Printf("  Reranking: %v\n", cfg.Retrieval.UseReranking)
	if cfg.Server.Enabled {
		fmt.Printf("  Admin API: http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	} else {
		fmt.Println("  Admin API: disabled")
	}

	if cfg.Retrieval.UseEmbedding {
		if os.Getenv("GEMINI_API_KEY") != "" {
			fmt.Println("  GEMINI_API_KEY: configured")
		} else {
			fmt.Println("  GEMINI_API_KEY: Not set")
			fmt.Println()
			fmt.Println("Hint: embedding needs a Gemini API key")
			fmt.Println("  export GEMINI_API_KEY=your-api-key")
		}
	}
	return nil
}
