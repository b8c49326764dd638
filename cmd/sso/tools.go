package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/sso-registry/sso/internal/audit"
	"github.com/sso-registry/sso/internal/auth"
	"github.com/sso-registry/sso/internal/config"
	"github.com/sso-registry/sso/internal/crypto"
	"github.com/sso-registry/sso/internal/db"
	"github.com/sso-registry/sso/internal/db/models"
	"github.com/sso-registry/sso/internal/jobs"
	"github.com/sso-registry/sso/internal/storage"
	"github.com/sso-registry/sso/internal/validation"
)

// cliMeta is recorded on audit rows written by operator commands.
var cliMeta = audit.Meta{UserAgent: "sso-cli", Remote: "localhost"}

type nameArg struct {
	Name string `json:"name" validate:"required,max=100"`
}

type passwordArg struct {
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// withDriver opens storage for cfg, runs fn and closes it again.
func withDriver(load configLoader, fn func(ctx context.Context, cfg *config.Config, driver storage.Driver) error) error {
	cfg, err := load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	driver, err := storage.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer driver.Close()
	return fn(ctx, cfg, driver)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// createKey creates an enabled key of type key. service is nil for root keys.
func createKey(ctx context.Context, driver storage.Driver, name string, service *models.Service) (*models.KeyWithValue, error) {
	value, err := auth.NewKeyValue(models.KeyTypeKey, name)
	if err != nil {
		return nil, err
	}
	create := &models.KeyCreate{
		IsEnabled: true,
		Type:      models.KeyTypeKey,
		Name:      name,
		Value:     value,
	}
	b := audit.NewBuilder(cliMeta)
	if service != nil {
		create.ServiceID = &service.ID
		b.Service(service)
	}
	key, err := driver.KeyCreate(ctx, create)
	if err != nil {
		return nil, fmt.Errorf("failed to create key: %w", err)
	}
	b.SetSubject(key.Subject())
	b.CreateWarn(ctx, driver, audit.TypeKeyCreate, nil)
	return &models.KeyWithValue{Key: key, Value: value}, nil
}

func newCreateRootKeyCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "create-root-key NAME",
		Short: "Create a root key",
		Long: `Create a root key and print it. Root keys manage services and can act on
every key, user and audit row. The value is printed once and cannot be
recovered.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.Struct(&nameArg{Name: args[0]}); err != nil {
				return err
			}
			return withDriver(load, func(ctx context.Context, _ *config.Config, driver storage.Driver) error {
				key, err := createKey(ctx, driver, args[0], nil)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), key)
			})
		},
	}
}

func newCreateServiceWithKeyCmd(load configLoader) *cobra.Command {
	var (
		allowRegister bool
		localURL      string
		githubURL     string
		microsoftURL  string
	)

	cmd := &cobra.Command{
		Use:   "create-service-with-key NAME URL",
		Short: "Create a service and its first key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			create := &models.ServiceCreate{
				IsEnabled:         true,
				Name:              args[0],
				URL:               args[1],
				UserAllowRegister: allowRegister,
			}
			optional := func(v string) *string {
				if v == "" {
					return nil
				}
				return &v
			}
			create.ProviderLocalURL = optional(localURL)
			create.ProviderGithubOauth2URL = optional(githubURL)
			create.ProviderMicrosoftOauth2URL = optional(microsoftURL)
			if err := validation.Struct(create); err != nil {
				return err
			}

			return withDriver(load, func(ctx context.Context, _ *config.Config, driver storage.Driver) error {
				service, err := driver.ServiceCreate(ctx, create)
				if err != nil {
					return fmt.Errorf("failed to create service: %w", err)
				}
				audit.NewBuilder(cliMeta).
					Service(service).
					SetSubject(service.Subject()).
					CreateWarn(ctx, driver, audit.TypeServiceCreate, nil)

				key, err := createKey(ctx, driver, args[0], service)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"service": service,
					"key":     key,
				})
			})
		},
	}

	cmd.Flags().BoolVar(&allowRegister, "allow-register", false, "Allow users to register through this service")
	cmd.Flags().StringVar(&localURL, "local-url", "", "Callback URL for the local provider (enables it)")
	cmd.Flags().StringVar(&githubURL, "github-url", "", "Callback URL for GitHub OAuth2 (enables it)")
	cmd.Flags().StringVar(&microsoftURL, "microsoft-url", "", "Callback URL for Microsoft OAuth2 (enables it)")

	return cmd
}

func newAuditRetentionCmd(load configLoader) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "audit-retention",
		Short: "Delete old audit rows and expired CSRF rows once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDriver(load, func(ctx context.Context, cfg *config.Config, driver storage.Driver) error {
				auditCfg := cfg.Audit
				if cmd.Flags().Changed("days") {
					auditCfg.RetentionDays = days
				}
				if auditCfg.RetentionDays <= 0 {
					return errors.New("retention is disabled: set audit.retention_days or --days")
				}
				audits := jobs.NewAuditRetentionJob(driver, &auditCfg).RunOnce(ctx)
				csrf := jobs.NewCsrfSweepJob(driver, &auditCfg).RunOnce(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d audit rows and %d csrf rows\n", audits, csrf)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "Override audit.retention_days")
	return cmd
}

func newCheckDBCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "check-db",
		Short: "Check database connectivity and print a summary",
		Long: `Connect to the database, print the schema version and the number of keys.
Exits non-zero on any failure so it can gate a deployment.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDriver(load, func(ctx context.Context, cfg *config.Config, driver storage.Driver) error {
				pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				defer cancel()
				if err := driver.Ping(pingCtx); err != nil {
					return fmt.Errorf("database unreachable: %w", err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "driver: %s\n", cfg.Database.Driver)
				if database := sqlDB(driver); database != nil {
					v, dirty, err := db.GetMigrationVersion(database, cfg.Database.Driver)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "schema version: %d (dirty: %v)\n", v, dirty)
				}

				keys, err := driver.KeyCount(ctx, &models.KeyListFilter{})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "keys: %d\n", keys)
				return nil
			})
		},
	}
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [PASSWORD]",
		Short: "Print the stored hash of a password",
		Long: `Hash a password with the current argon2id parameters. The password is read
from the first line of stdin when it is not given as an argument.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if err := validation.Struct(&passwordArg{Password: password}); err != nil {
				return err
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func newGenerateKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate-key",
		Short: "Print a random value for auth.csrf_encryption_key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := crypto.GenerateKeyString()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}
