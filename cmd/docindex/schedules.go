package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docindex/internal/runtime"
)

var schedulesCmd = &cobra.Command{
	Use:   "schedules",
	Short: "Inspect and control maintenance schedules",
	Long: `Lists the maintenance schedules run by the worker (stale recovery and
task purging). Subcommands pause, resume or trigger a schedule.`,
	Args: cobra.NoArgs,
	RunE: runSchedulesList,
}

var schedulesRunCmd = &cobra.Command{
	Use:   "run <schedule-id>",
	Short: "Enqueue a schedule's task now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScheduler(cmd, func(ctx context.Context, svc *runtime.Services) error {
			task, err := svc.Scheduler.RunNow(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %s as task %s\n", task.Type, task.ID)
			return nil
		})
	},
}

var schedulesPauseCmd = &cobra.Command{
	Use:   "pause <schedule-id>",
	Short: "Stop a schedule from running",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setScheduleEnabled(cmd, args[0], false) },
}

var schedulesResumeCmd = &cobra.Command{
	Use:   "resume <schedule-id>",
	Short: "Resume a paused schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setScheduleEnabled(cmd, args[0], true) },
}

func init() {
	schedulesCmd.AddCommand(schedulesRunCmd, schedulesPauseCmd, schedulesResumeCmd)
	rootCmd.AddCommand(schedulesCmd)
}

// withScheduler registers the configured schedules before running fn.
func withScheduler(cmd *cobra.Command, fn func(ctx context.Context, svc *runtime.Services) error) error {
	return withServices(cmd, func(ctx context.Context, svc *runtime.Services) error {
		if svc.Scheduler == nil {
			return fmt.Errorf("no schedule store configured")
		}
		if err := svc.EnsureSchedules(ctx); err != nil {
			return err
		}
		return fn(ctx, svc)
	})
}

func runSchedulesList(cmd *cobra.Command, _ []string) error {
	return withScheduler(cmd, func(ctx context.Context, svc *runtime.Services) error {
		list, err := svc.Scheduler.ListScheduledTasks(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, list)
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTYPE\tEVERY\tENABLED\tNEXT RUN\tLAST ERROR")
		for _, s := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\n",
				s.ID, s.Type, s.Interval, s.Enabled, s.NextRun.Format(time.RFC3339), s.LastError)
		}
		return tw.Flush()
	})
}

func setScheduleEnabled(cmd *cobra.Command, id string, enabled bool) error {
	return withScheduler(cmd, func(ctx context.Context, svc *runtime.Services) error {
		if err := svc.Scheduler.SetEnabled(ctx, id, enabled); err != nil {
			return err
		}
		state := "paused"
		if enabled {
			state = "resumed"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", state, id)
		return nil
	})
}
