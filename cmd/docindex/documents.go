package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docindex/internal/runtime"
)

var (
	deleteAsync      bool
	reprocessForce   bool
	reprocessAsync   bool
	reprocessContent string
)

var deleteCmd = &cobra.Command{
	Use:   "delete <file-id>",
	Short: "Remove a document and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var reprocessCmd = &cobra.Command{
	Use:   "reprocess <file-id>",
	Short: "Re-index a stored document",
	Long: `Re-runs chunking and embedding for a document already known to the
registry. A completed document is skipped unless --force is given.
New content can be supplied with --content-file; otherwise the content
stored by the last ingest is indexed again.`,
	Args: cobra.ExactArgs(1),
	RunE: runReprocess,
}

var showCmd = &cobra.Command{
	Use:   "show <file-id>",
	Short: "Show the registry entry of a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show processing and storage statistics for the owner",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	deleteCmd.Flags().BoolVar(&deleteAsync, "async", false, "queue for the worker instead of deleting now")
	reprocessCmd.Flags().BoolVar(&reprocessForce, "force", false, "re-index even when already completed")
	reprocessCmd.Flags().BoolVar(&reprocessAsync, "async", false, "queue for the worker instead of indexing now")
	reprocessCmd.Flags().StringVar(&reprocessContent, "content-file", "", "replace the content with this file")
	rootCmd.AddCommand(deleteCmd, reprocessCmd, showCmd, statsCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	if err := requireOwner(); err != nil {
		return err
	}
	fileID := args[0]

	return withServices(cmd, func(ctx context.Context, svc *runtime.Services) error {
		out := cmd.OutOrStdout()
		if deleteAsync {
			task, err := svc.Jobs.SubmitDelete(ctx, ownerID, fileID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "queued delete of %s as task %s\n", fileID, task.ID)
			return nil
		}
		if err := svc.Processor.DeleteDocument(ctx, ownerID, fileID); err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted %s\n", fileID)
		return nil
	})
}

func runReprocess(cmd *cobra.Command, args []string) error {
	if err := requireOwner(); err != nil {
		return err
	}
	fileID := args[0]

	var content string
	if reprocessContent != "" {
		if reprocessAsync {
			return fmt.Errorf("--content-file cannot be combined with --async")
		}
		data, err := os.ReadFile(reprocessContent)
		if err != nil {
			return fmt.Errorf("read %s: %w", reprocessContent, err)
		}
		content = string(data)
	}

	return withServices(cmd, func(ctx context.Context, svc *runtime.Services) error {
		out := cmd.OutOrStdout()
		if reprocessAsync {
			task, err := svc.Jobs.SubmitReprocess(ctx, ownerID, fileID, reprocessForce)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "queued reprocess of %s as task %s\n", fileID, task.ID)
			return nil
		}

		outcome, err := svc.Processor.ReprocessDocument(ctx, ownerID, fileID, content, reprocessForce)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(out, outcome)
		}
		if outcome.Skipped {
			fmt.Fprintf(out, "%s already indexed, use --force to re-index\n", fileID)
			return nil
		}
		fmt.Fprintf(out, "reprocessed %s: %d chunks\n", fileID, outcome.Chunks)
		return nil
	})
}

func runShow(cmd *cobra.Command, args []string) error {
	if err := requireOwner(); err != nil {
		return err
	}

	return withServices(cmd, func(ctx context.Context, svc *runtime.Services) error {
		doc, err := svc.Processor.GetDocument(ctx, ownerID, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, doc)
		}
		fmt.Fprintf(out, "file:    %s (%s)\n", doc.FileID, doc.FileName)
		fmt.Fprintf(out, "status:  %s\n", doc.Status)
		fmt.Fprintf(out, "chunks:  %d\n", doc.ChunkCount)
		fmt.Fprintf(out, "model:   %s\n", doc.EmbeddingModel)
		if doc.Error != "" {
			fmt.Fprintf(out, "error:   %s\n", doc.Error)
		}
		return nil
	})
}

func runStats(cmd *cobra.Command, _ []string) error {
	if err := requireOwner(); err != nil {
		return err
	}

	return withServices(cmd, func(ctx context.Context, svc *runtime.Services) error {
		processing, err := svc.Processor.GetProcessingStats(ctx, ownerID)
		if err != nil {
			return err
		}
		collection, err := svc.Vectors.GetCollectionStats(ctx, ownerID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, map[string]any{
				"processing": processing,
				"collection": collection,
			})
		}
		fmt.Fprintf(out, "documents:   %d total, %d processed, %d failed, %d pending, %d processing\n",
			processing.TotalDocuments, processing.ProcessedDocuments, processing.FailedDocuments,
			processing.PendingDocuments, processing.ProcessingDocuments)
		fmt.Fprintf(out, "chunks:      %d (%.1f per document)\n", processing.TotalChunks, processing.AverageChunksPerDocument)
		fmt.Fprintf(out, "vectors:     %d in %s (connected: %t)\n", collection.DocumentCount, collection.Backend, collection.IsConnected)
		return nil
	})
}
