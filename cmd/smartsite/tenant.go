package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nextmonth/smartsite/internal/client"
	"github.com/nextmonth/smartsite/internal/model"
	"github.com/nextmonth/smartsite/internal/ui"
)

var tenantCmd = &cobra.Command{
	Use:     "tenant",
	Short:   "Manage tenants",
	GroupID: "admin",
}

var tenantListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tenants",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tenants, err := adminClient.ListTenants(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, tenants)
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATUS\tPLAN\tCREDITS\tTEMPLATE")
		for _, t := range tenants {
			tmpl := ""
			if t.IsTemplate {
				tmpl = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\n",
				t.ID, truncate(t.Name, 40), ui.RenderStatus(string(t.Status)), t.Plan,
				t.CreditsConsumed, t.CreditsPurchased, tmpl)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%d tenants\n", len(tenants))
		return nil
	},
}

var tenantShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := adminClient.GetTenant(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printTenant(cmd, t)
	},
}

var tenantCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &client.CreateTenantRequest{Name: args[0]}
		req.Domain, _ = cmd.Flags().GetString("domain")
		req.Plan, _ = cmd.Flags().GetString("plan")
		req.SupportTier, _ = cmd.Flags().GetString("support-tier")
		req.IsTemplate, _ = cmd.Flags().GetBool("template")

		t, err := adminClient.CreateTenant(cmd.Context(), req)
		if err != nil {
			return err
		}
		return printTenant(cmd, t)
	},
}

// tenantStatusCmd builds suspend/activate/deactivate, which differ only in
// the status they set.
func tenantStatusCmd(use, short string, status model.TenantStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := adminClient.UpdateTenantStatus(cmd.Context(), args[0], status)
			if err != nil {
				return err
			}
			return printTenant(cmd, t)
		},
	}
}

func printTenant(cmd *cobra.Command, t *model.Tenant) error {
	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, t)
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", t.ID)
	fmt.Fprintf(w, "Name:\t%s\n", t.Name)
	if t.Domain != "" {
		fmt.Fprintf(w, "Domain:\t%s\n", t.Domain)
	}
	fmt.Fprintf(w, "Status:\t%s\n", ui.RenderStatus(string(t.Status)))
	fmt.Fprintf(w, "Plan:\t%s\n", t.Plan)
	fmt.Fprintf(w, "Credits:\t%d used of %d\n", t.CreditsConsumed, t.CreditsPurchased)
	if t.SupportTier != "" {
		fmt.Fprintf(w, "Support:\t%s\n", t.SupportTier)
	}
	if t.IsTemplate {
		fmt.Fprintf(w, "Template:\tyes\n")
	}
	if t.ParentTemplate != "" {
		fmt.Fprintf(w, "Cloned from:\t%s\n", t.ParentTemplate)
	}
	fmt.Fprintf(w, "Created:\t%s\n", formatTime(t.CreatedAt))
	return w.Flush()
}

func init() {
	tenantCreateCmd.Flags().String("domain", "", "custom domain")
	tenantCreateCmd.Flags().String("plan", "", "billing plan (server default when empty)")
	tenantCreateCmd.Flags().String("support-tier", "", "support tier")
	tenantCreateCmd.Flags().Bool("template", false, "mark the tenant as a blueprint template")

	tenantCmd.AddCommand(tenantListCmd)
	tenantCmd.AddCommand(tenantShowCmd)
	tenantCmd.AddCommand(tenantCreateCmd)
	tenantCmd.AddCommand(tenantStatusCmd("suspend", "Suspend a tenant", model.TenantSuspended))
	tenantCmd.AddCommand(tenantStatusCmd("activate", "Reactivate a tenant", model.TenantActive))
	tenantCmd.AddCommand(tenantStatusCmd("deactivate", "Mark a tenant inactive", model.TenantInactive))
}
