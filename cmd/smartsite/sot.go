package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nextmonth/smartsite/internal/ui"
)

var sotCmd = &cobra.Command{
	Use:     "sot",
	Short:   "Inspect and drive the source-of-truth sync",
	GroupID: "admin",
}

var sotStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the sync scheduler state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := adminClient.SyncStatus(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, st)
		}
		running := ui.RenderStatus("inactive")
		if st.IsRunning {
			running = ui.RenderStatus("active")
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Scheduler:\t%s\n", running)
		fmt.Fprintf(w, "Schedule:\t%s\n", st.Schedule)
		fmt.Fprintf(w, "Last sync:\t%s\n", formatTimePtr(st.LastSync))
		fmt.Fprintf(w, "Retries:\t%d/%d\n", st.RetryCount, st.MaxRetries)
		return w.Flush()
	},
}

var sotSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a sync now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := adminClient.RunSync(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, res)
		}
		fmt.Fprintf(out, "sync %s at %s\n", ui.RenderStatus("success"), formatTime(res.Timestamp))
		if p := res.Profile; p != nil {
			fmt.Fprintf(out, "  business: %s (%s)\n", p.BusinessName, p.BusinessID)
			fmt.Fprintf(out, "  users: %d  pages: %d  tools: %d\n", p.Metrics.TotalUsers, p.Metrics.TotalPages, p.Metrics.TotalTools)
		}
		return nil
	},
}

var sotScheduleCmd = &cobra.Command{
	Use:   "schedule <cron>",
	Short: "Replace the sync schedule (5-field cron expression)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := adminClient.SetSchedule(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), st)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schedule set to %q\n", st.Schedule)
		return nil
	},
}

var sotLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent sync runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		logs, err := adminClient.SyncLogs(cmd.Context(), limit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, logs)
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tWHEN\tEVENT\tSTATUS")
		for _, l := range logs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", l.ID, formatTime(l.CreatedAt), l.EventType, ui.RenderStatus(l.Status))
		}
		return w.Flush()
	},
}

func init() {
	sotLogsCmd.Flags().Int("limit", 20, "maximum number of runs to show")

	sotCmd.AddCommand(sotStatusCmd)
	sotCmd.AddCommand(sotSyncCmd)
	sotCmd.AddCommand(sotScheduleCmd)
	sotCmd.AddCommand(sotLogsCmd)
}
