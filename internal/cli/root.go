// Package cli provides the featgraph command-line interface.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/featgraph/featgraph/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "featgraph",
		Short: "Featgraph - Feature Metadata Registry",
		Long: `Featgraph is a SQL-backed feature metadata registry.

It stores feature definitions as a versioned entity graph (projects, data
sources, anchors, features) with lineage tracking, and serves them over a
REST API with optional role-based access control.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			// A .env file in the working directory feeds the environment
			// layer, matching container deployments.
			_ = godotenv.Load()

			var err error
			cfg, err = config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: cfg.SlogLevel(),
			}))
			slog.SetDefault(logger)

			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Feature metadata registry
`)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "featgraph.yaml", "config file")
	rootCmd.PersistentFlags().String("database", "", "SQL backend (sqlite|pgsql|mysql|mariadb|mssql)")
	rootCmd.PersistentFlags().String("connection-str", "", "backend connection string")
	rootCmd.PersistentFlags().Int("port", 0, "HTTP listen port")
	rootCmd.PersistentFlags().String("api-base", "", "API mount path")
	rootCmd.PersistentFlags().Bool("enable-rbac", false, "enable the authorization gate")
	rootCmd.PersistentFlags().String("default-admin", "", "user seeded as global admin when RBAC is on")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug|info|warn|error)")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newProjectsCommand())
	rootCmd.AddCommand(newWebConfigCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
