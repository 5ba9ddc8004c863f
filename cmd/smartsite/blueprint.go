package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nextmonth/smartsite/internal/client"
	"github.com/nextmonth/smartsite/internal/model"
	"github.com/nextmonth/smartsite/internal/ui"
)

var blueprintCmd = &cobra.Command{
	Use:     "blueprint",
	Short:   "List templates and clone new instances",
	GroupID: "admin",
}

var blueprintTemplatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List blueprint templates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		templates, err := adminClient.ListTemplates(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, templates)
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tVERSION\tCLONEABLE\tSTATUS")
		for _, t := range templates {
			cloneable := "no"
			if t.IsCloneable {
				cloneable = "yes"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", t.ID, truncate(t.Name, 40), t.BlueprintVersion, cloneable, ui.RenderStatus(t.Status))
		}
		return w.Flush()
	},
}

var blueprintCloneCmd = &cobra.Command{
	Use:   "clone <template-id> <instance-name>",
	Short: "Clone a template into a new instance",
	Long: `Clone a template into a new tenant with its own admin user.

The admin password is prompted for without echo, or read as one line
from standard input when it is not a terminal.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		templateID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid template id %q", args[0])
		}
		email, _ := cmd.Flags().GetString("admin-email")
		if email == "" {
			return fmt.Errorf("--admin-email is required")
		}
		password, err := ui.ReadSecret("Admin password: ", os.Stdin)
		if err != nil {
			return err
		}

		res, err := adminClient.Clone(cmd.Context(), &client.CloneRequest{
			TemplateID:    templateID,
			InstanceName:  args[1],
			AdminEmail:    email,
			AdminPassword: password,
		})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, res)
		}
		fmt.Fprintln(out, res.Message)
		fmt.Fprintf(out, "  instance:   %s\n", res.NewInstanceID)
		fmt.Fprintf(out, "  admin user: %d\n", res.AdminUserID)
		if res.CloneOperation != nil {
			fmt.Fprintf(out, "  request:    %s\n", res.CloneOperation.RequestID)
		}
		return nil
	},
}

var blueprintCloneStatusCmd = &cobra.Command{
	Use:   "clone-status <request-id>",
	Short: "Show the state of a clone operation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		op, err := adminClient.CloneStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printCloneOperation(cmd, op)
	},
}

func printCloneOperation(cmd *cobra.Command, op *model.CloneOperation) error {
	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, op)
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Request:\t%s\n", op.RequestID)
	fmt.Fprintf(w, "Template:\t%d\n", op.TemplateID)
	fmt.Fprintf(w, "Instance:\t%s\n", op.InstanceName)
	fmt.Fprintf(w, "Status:\t%s\n", ui.RenderStatus(string(op.Status)))
	if op.NewInstanceID != "" {
		fmt.Fprintf(w, "New instance:\t%s\n", op.NewInstanceID)
	}
	if op.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:\t%s\n", op.ErrorMessage)
	}
	fmt.Fprintf(w, "Started:\t%s\n", formatTime(op.StartedAt))
	fmt.Fprintf(w, "Completed:\t%s\n", formatTimePtr(op.CompletedAt))
	return w.Flush()
}

func init() {
	blueprintCloneCmd.Flags().String("admin-email", "", "email of the new instance's admin user")

	blueprintCmd.AddCommand(blueprintTemplatesCmd)
	blueprintCmd.AddCommand(blueprintCloneCmd)
	blueprintCmd.AddCommand(blueprintCloneStatusCmd)
}
