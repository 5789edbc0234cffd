package migrate

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/sandeepkv93/paygw-mollie/internal/config"
	"github.com/sandeepkv93/paygw-mollie/internal/database"
	"github.com/sandeepkv93/paygw-mollie/internal/tools/common"
	"github.com/sandeepkv93/paygw-mollie/internal/tools/ui"
)

type options struct {
	envFile string
	ci      bool
	timeout time.Duration
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the gateway database schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "env file loaded before reading configuration")
	root.PersistentFlags().BoolVar(&opts.ci, "ci", false, "print a JSON result instead of the interactive view")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall command timeout")

	root.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Create or update the gateway tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run(opts, "Migrate up", "up", func(ctx context.Context) ([]string, error) {
				_, db, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer closeDB(db)
				if err := database.Migrate(db.WithContext(ctx)); err != nil {
					return nil, err
				}
				return tableLines(db)
			})
			return err
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show which gateway tables exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run(opts, "Migrate status", "status", func(ctx context.Context) ([]string, error) {
				_, db, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer closeDB(db)
				return tableLines(db.WithContext(ctx))
			})
			return err
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "plan",
		Short: "List the tables migrate up would create",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run(opts, "Migrate plan", "plan", func(ctx context.Context) ([]string, error) {
				_, db, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer closeDB(db)
				status, err := database.Status(db.WithContext(ctx))
				if err != nil {
					return nil, err
				}
				var out []string
				for _, s := range status {
					if !s.Exists {
						out = append(out, "create "+s.Table)
					}
				}
				if len(out) == 0 {
					out = append(out, "schema up to date")
				}
				return out, nil
			})
			return err
		},
	})
	return root
}

func run(opts *options, title, action string, fn func(ctx context.Context) ([]string, error)) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	if opts.ci {
		details, err := fn(ctx)
		common.PrintCIResult(err == nil, title, details, err)
		if err != nil {
			return details, fmt.Errorf("migrate %s: %w", action, err)
		}
		return details, nil
	}
	details, err := ui.Run(ctx, title, fn)
	if err != nil {
		return details, fmt.Errorf("migrate %s: %w", action, err)
	}
	return details, nil
}

func loadConfigDB(envFile string) (*config.Config, *gorm.DB, error) {
	if err := common.LoadEnvFile(envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return cfg, db, nil
}

func tableLines(db *gorm.DB) ([]string, error) {
	status, err := database.Status(db)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(status))
	for _, s := range status {
		state := "missing"
		if s.Exists {
			state = "present"
		}
		out = append(out, s.Table+": "+state)
	}
	return out, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
