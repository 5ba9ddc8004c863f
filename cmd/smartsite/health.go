package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextmonth/smartsite/internal/client"
	"github.com/nextmonth/smartsite/internal/model"
	"github.com/nextmonth/smartsite/internal/ui"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check server health",
	GroupID: "system",
	Long: `Show the dependency report from GET /api/health/status.

With --grpc, query the gRPC health service instead, as an orchestrator
probe would. The command exits non-zero when the server is not healthy.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if useGRPC, _ := cmd.Flags().GetBool("grpc"); useGRPC {
			addr, _ := cmd.Flags().GetString("grpc-addr")
			return probeGRPC(cmd, addr)
		}

		st, err := adminClient.SystemStatus(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			if err := printJSON(out, st); err != nil {
				return err
			}
		} else {
			printSystemStatus(cmd, st)
		}
		if st.Status != "healthy" {
			return fmt.Errorf("server is %s", st.Status)
		}
		return nil
	},
}

func printSystemStatus(cmd *cobra.Command, st *client.SystemStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "status: %s\n", ui.RenderStatus(st.Status))
	names := make([]string, 0, len(st.Services))
	for name := range st.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, name := range names {
		svc := st.Services[name]
		state := ui.RenderStatus("healthy")
		if !svc.Healthy {
			state = ui.RenderStatus("failed")
		}
		detail := fmt.Sprintf("%dms", svc.LatencyMs)
		if svc.Error != "" {
			detail = svc.Error
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\n", name, state, detail)
	}
	_ = w.Flush()
}

func probeGRPC(cmd *cobra.Command, addr string) error {
	service, _ := cmd.Flags().GetString("service")
	p, err := client.NewHealthProber(addr)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()
	status, err := p.Check(ctx, service)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", addr, ui.RenderStatus(status))
	if status != "SERVING" {
		return fmt.Errorf("server is %s", status)
	}
	return nil
}

var incidentCmd = &cobra.Command{
	Use:     "incident",
	Short:   "List and manage health incidents",
	GroupID: "admin",
}

var incidentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent incidents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		incidents, err := adminClient.ListIncidents(cmd.Context(), limit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, incidents)
		}
		if len(incidents) == 0 {
			fmt.Fprintln(out, "no incidents")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDETECTED\tMETRIC\tSEVERITY\tSTATUS\tAREA\tUSERS")
		for _, inc := range incidents {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%d\n",
				inc.ID, formatTime(inc.DetectedAt), inc.MetricName,
				ui.RenderStatus(inc.Severity), ui.RenderStatus(inc.Status),
				inc.AffectedArea, inc.AffectedUsers)
		}
		return w.Flush()
	},
}

func incidentActionCmd(use, short string, act func(client.AdminClient, *cobra.Command, int64) (*model.HealthIncident, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid incident id %q", args[0])
			}
			inc, err := act(adminClient, cmd, id)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), inc)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "incident %d is now %s\n", inc.ID, ui.RenderStatus(inc.Status))
			return nil
		},
	}
}

func init() {
	healthCmd.Flags().Bool("grpc", false, "probe the gRPC health service instead of the REST API")
	healthCmd.Flags().String("grpc-addr", defaultGRPCAddr(), "gRPC address to probe")
	healthCmd.Flags().String("service", "", "gRPC health service name (empty for the whole server)")

	incidentListCmd.Flags().Int("limit", 10, "maximum number of incidents")

	incidentCmd.AddCommand(incidentListCmd)
	incidentCmd.AddCommand(incidentActionCmd("resolve", "Resolve an incident",
		func(c client.AdminClient, cmd *cobra.Command, id int64) (*model.HealthIncident, error) {
			return c.ResolveIncident(cmd.Context(), id)
		}))
	incidentCmd.AddCommand(incidentActionCmd("ack", "Acknowledge an incident",
		func(c client.AdminClient, cmd *cobra.Command, id int64) (*model.HealthIncident, error) {
			return c.AcknowledgeIncident(cmd.Context(), id)
		}))
}
