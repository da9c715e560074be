package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docindex/internal/core/domain"
	"github.com/custodia-labs/docindex/internal/runtime"
)

var (
	statusFilter string
	statusLimit  int
)

var statusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Show one task or list the owner's recent tasks",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a pending task",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

func init() {
	statusCmd.Flags().StringVar(&statusFilter, "status", "", "only list tasks in this state")
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 20, "maximum tasks to list")
	rootCmd.AddCommand(statusCmd, cancelCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if err := requireOwner(); err != nil {
		return err
	}

	return withServices(cmd, func(ctx context.Context, svc *runtime.Services) error {
		out := cmd.OutOrStdout()

		if len(args) == 1 {
			task, err := svc.Jobs.Status(ctx, ownerID, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(out, task)
			}
			fmt.Fprintf(out, "task:     %s\n", task.ID)
			fmt.Fprintf(out, "type:     %s\n", task.Type)
			fmt.Fprintf(out, "status:   %s\n", task.Status)
			fmt.Fprintf(out, "attempts: %d/%d\n", task.Attempts, task.MaxAttempts)
			if fileID := task.FileID(); fileID != "" {
				fmt.Fprintf(out, "file:     %s\n", fileID)
			}
			if task.Error != "" {
				fmt.Fprintf(out, "error:    %s\n", task.Error)
			}
			return nil
		}

		tasks, err := svc.Jobs.List(ctx, ownerID, domain.TaskStatus(statusFilter), statusLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(out, tasks)
		}
		if len(tasks) == 0 {
			fmt.Fprintln(out, "no tasks")
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tFILE\tUPDATED")
		for _, t := range tasks {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Type, t.Status, t.FileID(), t.UpdatedAt.Format(time.RFC3339))
		}
		return tw.Flush()
	})
}

func runCancel(cmd *cobra.Command, args []string) error {
	if err := requireOwner(); err != nil {
		return err
	}

	return withServices(cmd, func(ctx context.Context, svc *runtime.Services) error {
		if err := svc.Jobs.Cancel(ctx, ownerID, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s\n", args[0])
		return nil
	})
}
