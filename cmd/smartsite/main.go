package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/nextmonth/smartsite/internal/client"
	"github.com/nextmonth/smartsite/internal/ui"
)

var (
	serverURL  string
	token      string
	jsonOutput bool
	noColor    bool

	adminClient client.AdminClient
)

func defaultServerURL() string {
	if s := os.Getenv("SMARTSITE_URL"); s != "" {
		return s
	}
	if u := activeRemoteURL(); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func defaultToken() string {
	if s := os.Getenv("SMARTSITE_TOKEN"); s != "" {
		return s
	}
	return activeRemoteToken()
}

var rootCmd = &cobra.Command{
	Use:          "smartsite <command>",
	Short:        "SmartSite platform server and admin CLI",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			ui.ForceNoColor()
		} else {
			ui.EnableColor()
		}
		adminClient = client.NewHTTPClient(serverURL, token)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if adminClient != nil {
			adminClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", defaultServerURL(), "server base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", defaultToken(), "API bearer token")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "admin", Title: "Administration:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Administration
	rootCmd.AddCommand(tenantCmd)
	rootCmd.AddCommand(sotCmd)
	rootCmd.AddCommand(blueprintCmd)
	rootCmd.AddCommand(incidentCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
