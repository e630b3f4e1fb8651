package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"incident-desk/config"
	"incident-desk/core/appbootstrap"
	"incident-desk/core/utils"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:          "incident-desk",
		Short:        "Incident reporting desk",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("INCIDENT_DESK_CONFIG"), "path to the YAML config file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and notification workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return appbootstrap.Run(ctx, cfg, utils.NewLogger())
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return appbootstrap.Migrate(cmd.Context(), cfg, utils.NewLogger())
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "env",
		Short: "List the environment variables the config understands",
		RunE: func(cmd *cobra.Command, _ []string) error {
			text, err := config.Usage()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	})
	return root
}
