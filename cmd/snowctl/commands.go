package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cuongbtq/snow-market/internal/admin"
	"github.com/cuongbtq/snow-market/internal/api/dto"
	"github.com/cuongbtq/snow-market/internal/config"
	"github.com/cuongbtq/snow-market/internal/domain"
	"github.com/cuongbtq/snow-market/internal/payments"
	"github.com/cuongbtq/snow-market/internal/reconcile"
	"github.com/cuongbtq/snow-market/internal/storage"
	"github.com/cuongbtq/snow-market/internal/storage/postgres"
	"github.com/cuongbtq/snow-market/shared/logger"
	"github.com/cuongbtq/snow-market/shared/postgresql"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// env is what a command runs against
type env struct {
	Store     storage.Store
	DB        *sqlx.DB
	Transfers reconcile.Transferrer
	Logger    *slog.Logger
	BatchSize int
	Close     func()
}

// opener builds the env from the config file path
type opener func(ctx context.Context, configPath string) (*env, error)

func newRootCmd(open opener) *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "snowctl",
		Short:         "Operate the snow market platform",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "config file path")

	withEnv := func(run func(cmd *cobra.Command, e *env) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			e, err := open(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			if e.Close != nil {
				defer e.Close()
			}
			return run(cmd, e)
		}
	}

	rootCmd.AddCommand(buildMigrateCommand(withEnv))
	rootCmd.AddCommand(buildSettingsCommand(withEnv))
	rootCmd.AddCommand(buildPayoutsCommand(withEnv))
	return rootCmd
}

type envRunner func(run func(cmd *cobra.Command, e *env) error) func(*cobra.Command, []string) error

func buildMigrateCommand(withEnv envRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: withEnv(func(cmd *cobra.Command, e *env) error {
			if e.DB == nil {
				return fmt.Errorf("migrate requires a database connection")
			}
			if err := postgres.Migrate(cmd.Context(), e.DB); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		}),
	}
}

func buildSettingsCommand(withEnv envRunner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or update platform settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the current settings",
		RunE: withEnv(func(cmd *cobra.Command, e *env) error {
			settings, err := admin.NewService(e.Store, e.Logger).Settings(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), dto.NewSettingsDTO(settings))
		}),
	})

	var (
		fee, basePrice, weekly, biweekly, monthly int64
		maxHouses                                 int
		radius                                    float64
	)
	update := &cobra.Command{
		Use:   "update",
		Short: "Apply a partial settings update",
		RunE: withEnv(func(cmd *cobra.Command, e *env) error {
			flags := cmd.Flags()
			var patch domain.SettingsPatch
			if flags.Changed("platform-fee-cents") {
				patch.PlatformFeeCents = &fee
			}
			if flags.Changed("default-max-houses") {
				patch.DefaultMaxHouses = &maxHouses
			}
			if flags.Changed("base-price-cents") {
				patch.BaseOneTimePriceCents = &basePrice
			}
			if flags.Changed("weekly-price-cents") {
				patch.WeeklySubscriptionPriceCents = &weekly
			}
			if flags.Changed("biweekly-price-cents") {
				patch.BiweeklySubscriptionPriceCents = &biweekly
			}
			if flags.Changed("monthly-price-cents") {
				patch.MonthlySubscriptionPriceCents = &monthly
			}
			if flags.Changed("max-search-radius-km") {
				patch.MaxSearchRadiusKm = &radius
			}

			settings, err := admin.NewService(e.Store, e.Logger).UpdateSettings(cmd.Context(), patch)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), dto.NewSettingsDTO(settings))
		}),
	}
	update.Flags().Int64Var(&fee, "platform-fee-cents", 0, "flat platform fee per job")
	update.Flags().IntVar(&maxHouses, "default-max-houses", 0, "capacity given to new workers")
	update.Flags().Int64Var(&basePrice, "base-price-cents", 0, "one-time job price")
	update.Flags().Int64Var(&weekly, "weekly-price-cents", 0, "weekly subscription price")
	update.Flags().Int64Var(&biweekly, "biweekly-price-cents", 0, "biweekly subscription price")
	update.Flags().Int64Var(&monthly, "monthly-price-cents", 0, "monthly subscription price")
	update.Flags().Float64Var(&radius, "max-search-radius-km", 0, "open job search radius")
	cmd.AddCommand(update)

	return cmd
}

func buildPayoutsCommand(withEnv envRunner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payouts",
		Short: "Payout operations",
	}

	var batchSize int
	dispatch := &cobra.Command{
		Use:   "dispatch",
		Short: "Send one batch of pending payouts",
		RunE: withEnv(func(cmd *cobra.Command, e *env) error {
			size := e.BatchSize
			if batchSize > 0 {
				size = batchSize
			}
			result, err := reconcile.NewDispatcher(e.Store, e.Transfers, e.Logger, size).Dispatch(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dispatched=%d failed=%d skipped=%d\n",
				result.Dispatched, result.Failed, result.Skipped)
			return nil
		}),
	}
	dispatch.Flags().IntVar(&batchSize, "batch-size", 0, "override the configured batch size")
	cmd.AddCommand(dispatch)

	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// openPostgres connects to the configured database and payment provider
func openPostgres(_ context.Context, configPath string) (*env, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	appLogger, err := logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: "console",
		Output: "stderr",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	dbClient, err := postgresql.NewClient(&postgresql.Config{
		Host:             cfg.Database.Host,
		Port:             cfg.Database.Port,
		User:             cfg.Database.User,
		Password:         cfg.Database.Password,
		Database:         cfg.Database.Database,
		SSLMode:          cfg.Database.SSLMode,
		ApplicationName:  "snowctl",
		StatementTimeout: cfg.Database.StatementTimeout,
		MaxOpenConns:     2,
		MaxIdleConns:     1,
	}, appLogger.Logger)
	if err != nil {
		return nil, err
	}

	return &env{
		Store: postgres.NewStore(dbClient.GetDB(), cfg.Database.LockTimeout, appLogger.Logger),
		DB:    dbClient.GetDB(),
		Transfers: payments.NewStripe(payments.StripeConfig{
			SecretKey: cfg.Payments.SecretKey,
			Currency:  cfg.Payments.Currency,
			Country:   cfg.Payments.Country,
		}, appLogger.Logger),
		Logger:    appLogger.Logger,
		BatchSize: cfg.Worker.PayoutBatchSize,
		Close: func() {
			dbClient.Close()
			appLogger.Close()
		},
	}, nil
}
