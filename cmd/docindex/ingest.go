package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docindex/internal/core/domain"
	"github.com/custodia-labs/docindex/internal/core/ports/driving"
	"github.com/custodia-labs/docindex/internal/runtime"
)

var (
	ingestFileID string
	ingestTitle  string
	ingestSource string
	ingestTags   []string
	ingestForce  bool
	ingestAsync  bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Chunk, embed and store text files",
	Long: `Indexes one or more text files for --owner.

The file id defaults to the file's base name. Unchanged files are skipped
unless --force is given. With --async the files are queued for the worker
and the task id is printed instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFileID, "id", "", "file id (single file only)")
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "document title (single file only)")
	ingestCmd.Flags().StringVar(&ingestSource, "source", "upload", "source label stored with each chunk")
	ingestCmd.Flags().StringSliceVar(&ingestTags, "tag", nil, "tags stored with each chunk")
	ingestCmd.Flags().BoolVar(&ingestForce, "force", false, "re-index even when the content is unchanged")
	ingestCmd.Flags().BoolVar(&ingestAsync, "async", false, "queue for the worker instead of indexing now")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if err := requireOwner(); err != nil {
		return err
	}
	if len(args) > 1 && (ingestFileID != "" || ingestTitle != "") {
		return fmt.Errorf("--id and --title apply to a single file")
	}

	docs := make([]domain.BatchDocument, 0, len(args))
	for _, path := range args {
		doc, err := readDocument(path)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}

	return withServices(cmd, func(ctx context.Context, svc *runtime.Services) error {
		if len(docs) == 1 {
			return ingestOne(ctx, cmd, svc, docs[0])
		}
		return ingestBatch(ctx, cmd, svc, docs)
	})
}

func readDocument(path string) (domain.BatchDocument, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return domain.BatchDocument{}, fmt.Errorf("read %s: %w", path, err)
	}

	name := filepath.Base(path)
	fileID := ingestFileID
	if fileID == "" {
		fileID = name
	}
	title := ingestTitle
	if title == "" {
		title = strings.TrimSuffix(name, filepath.Ext(name))
	}
	mimeType := mime.TypeByExtension(filepath.Ext(name))
	if mimeType == "" {
		mimeType = "text/plain"
	}

	return domain.BatchDocument{
		FileID:   fileID,
		FileName: name,
		MimeType: mimeType,
		Content:  string(content),
		Metadata: domain.DocumentMetadata{
			Source: ingestSource,
			Title:  title,
			Tags:   ingestTags,
		},
	}, nil
}

func ingestOne(ctx context.Context, cmd *cobra.Command, svc *runtime.Services, doc domain.BatchDocument) error {
	req := driving.ProcessRequest{
		OwnerID:  ownerID,
		FileID:   doc.FileID,
		FileName: doc.FileName,
		MimeType: doc.MimeType,
		Content:  doc.Content,
		Metadata: doc.Metadata,
		Force:    ingestForce,
	}
	out := cmd.OutOrStdout()

	if ingestAsync {
		task, err := svc.Jobs.SubmitProcess(ctx, req)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(out, task)
		}
		fmt.Fprintf(out, "queued %s as task %s\n", doc.FileID, task.ID)
		return nil
	}

	outcome, err := svc.Processor.ProcessDocument(ctx, req)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(out, outcome)
	}
	if outcome.Skipped {
		fmt.Fprintf(out, "%s unchanged, skipped\n", doc.FileID)
		return nil
	}
	fmt.Fprintf(out, "indexed %s: %d chunks, %d tokens, $%.6f\n", doc.FileID, outcome.Chunks, outcome.Tokens, outcome.Cost)
	return nil
}

func ingestBatch(ctx context.Context, cmd *cobra.Command, svc *runtime.Services, docs []domain.BatchDocument) error {
	out := cmd.OutOrStdout()

	if ingestAsync {
		task, err := svc.Jobs.SubmitBatch(ctx, ownerID, docs)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(out, task)
		}
		fmt.Fprintf(out, "queued %d files as task %s\n", len(docs), task.ID)
		return nil
	}

	result, err := svc.Processor.BatchProcessDocuments(ctx, ownerID, docs)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(out, result)
	}
	fmt.Fprintf(out, "indexed %d of %d files\n", len(result.Successful), len(docs))
	for _, f := range result.Failed {
		fmt.Fprintf(out, "  failed %s: %s\n", f.FileID, f.Error)
	}
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d files failed", len(result.Failed))
	}
	return nil
}
