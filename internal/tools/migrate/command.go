package migrate

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/ayolclub/travel-auth/internal/database"
	"github.com/ayolclub/travel-auth/internal/di"
	"github.com/ayolclub/travel-auth/internal/tools/common"
)

const exitFailure = 3

type options struct {
	envFile string
	timeout time.Duration
	ci      bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema tooling",
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "operation timeout")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")

	cmd.AddCommand(
		newStepCommand(opts, "up", "Apply schema migrations", up),
		newStepCommand(opts, "status", "Show which tables exist", status),
	)
	return cmd
}

type stepFunc func(ctx context.Context, db *gorm.DB) ([]string, error)

func newStepCommand(opts *options, name, short string, fn stepFunc) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			step := common.Step{Tool: "migrate", Command: name, CI: opts.ci, Timeout: opts.timeout}
			_, err := step.Run(func(ctx context.Context) ([]string, error) {
				runner, err := openRunner(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer func() { _ = runner.Close() }()
				return fn(ctx, runner.DB())
			})
			if err != nil {
				os.Exit(exitFailure)
			}
			return nil
		},
	}
}

func up(ctx context.Context, db *gorm.DB) ([]string, error) {
	if err := database.Migrate(db.WithContext(ctx)); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	report, _ := tableReport(db)
	return append([]string{"schema migration applied"}, report...), nil
}

func status(ctx context.Context, db *gorm.DB) ([]string, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	report, missing := tableReport(db)
	details := append([]string{"database reachable"}, report...)
	if missing > 0 {
		return details, fmt.Errorf("%d tables missing, run migrate up", missing)
	}
	return details, nil
}

// tableReport lists each owned table with its state and counts the missing ones.
func tableReport(db *gorm.DB) ([]string, int) {
	out := make([]string, 0, len(database.Models()))
	missing := 0
	for _, model := range database.Models() {
		stmt := &gorm.Statement{DB: db}
		name := fmt.Sprintf("%T", model)
		if err := stmt.Parse(model); err == nil {
			name = stmt.Schema.Table
		}
		state := "present"
		if !db.Migrator().HasTable(model) {
			state = "missing"
			missing++
		}
		out = append(out, name+": "+state)
	}
	return out, missing
}

func openRunner(envFile string) (*di.MigrationRunner, error) {
	if err := common.LoadEnvFile(envFile); err != nil {
		return nil, err
	}
	return di.InitializeMigrationRunner()
}
