package maintenance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/ayolclub/travel-auth/internal/config"
	"github.com/ayolclub/travel-auth/internal/di"
	"github.com/ayolclub/travel-auth/internal/repository"
	"github.com/ayolclub/travel-auth/internal/tools/common"
)

const exitFailure = 3

type options struct {
	envFile   string
	olderThan time.Duration
	timeout   time.Duration
	ci        bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{Use: "maintenance", Short: "Housekeeping for auth tables"}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().DurationVar(&opts.olderThan, "older-than", 24*time.Hour, "only touch rows that went stale before now minus this duration")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", time.Minute, "operation timeout")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.AddCommand(
		newPurgeCommand(opts, "purge-codes", "Delete consumed and expired one-time codes", purgeCodes),
		newPurgeCommand(opts, "purge-sessions", "Delete expired and revoked sessions", purgeSessions),
		newVerifyEmailCommand(opts),
	)
	return cmd
}

type purgeFunc func(ctx context.Context, db *gorm.DB, before time.Time) (int64, error)

func newPurgeCommand(opts *options, name, short string, fn purgeFunc) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.olderThan < 0 {
				return fmt.Errorf("--older-than must not be negative")
			}
			return execute(opts, name, func(ctx context.Context, _ *config.Config, db *gorm.DB) ([]string, error) {
				before := time.Now().UTC().Add(-opts.olderThan)
				n, err := fn(ctx, db, before)
				if err != nil {
					return nil, err
				}
				return []string{
					fmt.Sprintf("cutoff=%s", before.Format(time.RFC3339)),
					fmt.Sprintf("deleted=%d", n),
				}, nil
			})
		},
	}
}

func purgeCodes(ctx context.Context, db *gorm.DB, before time.Time) (int64, error) {
	return repository.NewOneTimeCodeRepository(db).PurgeStale(ctx, before)
}

func purgeSessions(ctx context.Context, db *gorm.DB, before time.Time) (int64, error) {
	return repository.NewSessionRepository(db).PurgeStale(ctx, before)
}

func newVerifyEmailCommand(opts *options) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "verify-email",
		Short: "Mark an account email as verified (local environments only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "verify-email", func(ctx context.Context, cfg *config.Config, db *gorm.DB) ([]string, error) {
				if !cfg.IsLocal() {
					return nil, fmt.Errorf("verify-email is disabled in %s", cfg.Env)
				}
				return verifyEmail(ctx, db, email, time.Now().UTC())
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email to mark verified")
	return cmd
}

func verifyEmail(ctx context.Context, db *gorm.DB, email string, at time.Time) ([]string, error) {
	if strings.TrimSpace(email) == "" {
		return nil, errors.New("email is required")
	}
	accounts := repository.NewAccountRepository(db)
	acc, err := accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, fmt.Errorf("no account with email %s", email)
		}
		return nil, err
	}
	if acc.EmailVerified {
		return []string{"already verified: account " + fmt.Sprint(acc.ID)}, nil
	}
	if err := accounts.MarkEmailVerified(ctx, acc.ID, at); err != nil {
		return nil, err
	}
	return []string{"marked verified: account " + fmt.Sprint(acc.ID)}, nil
}

func execute(opts *options, command string, fn func(context.Context, *config.Config, *gorm.DB) ([]string, error)) error {
	step := common.Step{Tool: "maintenance", Command: command, CI: opts.ci, Timeout: opts.timeout}
	_, err := step.Run(func(ctx context.Context) ([]string, error) {
		if err := common.LoadEnvFile(opts.envFile); err != nil {
			return nil, err
		}
		runner, err := di.InitializeMigrationRunner()
		if err != nil {
			return nil, err
		}
		defer func() { _ = runner.Close() }()
		return fn(ctx, runner.Config(), runner.DB())
	})
	if err != nil {
		os.Exit(exitFailure)
	}
	return nil
}
