// Package main implements the docindex CLI: the worker process and
// one-shot commands against the configured stores.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docindex/internal/config"
	"github.com/custodia-labs/docindex/internal/runtime"
)

var (
	configPath string
	ownerID    string
	jsonOutput bool
	version    = "dev"

	// Replaced in tests
	loadConfig    = config.Load
	buildServices = runtime.Build
)

var rootCmd = &cobra.Command{
	Use:   "docindex",
	Short: "Document indexing and semantic retrieval",
	Long: `docindex chunks documents, embeds the chunks and stores them in a
vector backend (pgvector, qdrant or chromem) scoped per owner.

Configuration comes from --config and environment variables such as
DATABASE_URL, VECTOR_BACKEND and EMBEDDING_API_KEY.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("DOCINDEX_CONFIG"), "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&ownerID, "owner", os.Getenv("DOCINDEX_OWNER"), "owner whose documents are addressed")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// withServices loads config, builds the services, runs fn and closes them.
func withServices(cmd *cobra.Command, fn func(ctx context.Context, svc *runtime.Services) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := cfg.Log.NewLogger(cmd.ErrOrStderr())
	slog.SetDefault(logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, err := buildServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil {
			logger.Warn("close services", "error", cerr)
		}
	}()
	return fn(ctx, svc)
}

func requireOwner() error {
	if ownerID == "" {
		return fmt.Errorf("--owner (or DOCINDEX_OWNER) is required")
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}
