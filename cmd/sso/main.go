// Package main is the entry point for the SSO server binary. The serve command
// applies migrations on startup when database.auto_migrate is set, so a fresh
// container needs no separate migration step. The remaining commands are
// operator tooling run against the same configuration.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/sso-registry/sso/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "sso",
		Short:        "Multi-tenant single sign-on server",
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.SetVersionTemplate("SSO v{{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (or set CONFIG_PATH)")

	load := func() (*config.Config, error) {
		path := configPath
		if path == "" {
			path = os.Getenv("CONFIG_PATH")
		}
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, nil
	}

	rootCmd.AddCommand(newServeCmd(load))
	rootCmd.AddCommand(newMigrateCmd(load))
	rootCmd.AddCommand(newCreateRootKeyCmd(load))
	rootCmd.AddCommand(newCreateServiceWithKeyCmd(load))
	rootCmd.AddCommand(newAuditRetentionCmd(load))
	rootCmd.AddCommand(newCheckDBCmd(load))
	rootCmd.AddCommand(newHashPasswordCmd())
	rootCmd.AddCommand(newGenerateKeyCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "SSO v%s\n", version)
		},
	})

	return rootCmd
}

// configLoader loads the configuration named by --config or CONFIG_PATH.
type configLoader func() (*config.Config, error)
