// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/regflow/internal/browser"
	"github.com/xkilldash9x/regflow/internal/browser/cdp"
	"github.com/xkilldash9x/regflow/internal/codesource"
	"github.com/xkilldash9x/regflow/internal/config"
	"github.com/xkilldash9x/regflow/internal/engine"
	"github.com/xkilldash9x/regflow/internal/flow"
	"github.com/xkilldash9x/regflow/internal/identity"
	"github.com/xkilldash9x/regflow/internal/observability"
	"github.com/xkilldash9x/regflow/internal/reporting"
	"github.com/xkilldash9x/regflow/internal/store"
)

// resultStore is the subset of *store.Store the commands use.
type resultStore interface {
	EnsureSchema(ctx context.Context) error
	SaveResult(ctx context.Context, r flow.RunResult) error
	RecentResults(ctx context.Context, limit int) ([]flow.RunResult, error)
	StatusCounts(ctx context.Context) (map[flow.Status]int, error)
}

// storeProvider creates a result store. Tests inject one that returns a mock instead of
// connecting to PostgreSQL.
type storeProvider interface {
	// Create returns the store and a cleanup function that releases its resources.
	Create(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (resultStore, func(), error)
}

type pgStoreProvider struct{}

// Create connects to PostgreSQL and makes sure the results table exists.
func (pgStoreProvider) Create(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (resultStore, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (REGFLOW_DATABASE_URL)")
	}

	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize store service: %w", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	cleanup := func() {
		pool.Close()
		logger.Debug("Database connection pool closed.")
	}
	return s, cleanup, nil
}

// runDeps holds the collaborators the run command builds at runtime.
type runDeps struct {
	newLauncher func(cfg config.BrowserConfig, logger *zap.Logger) (browser.Launcher, error)
	stores      storeProvider
	stdin       io.Reader
}

func defaultRunDeps() runDeps {
	return runDeps{
		newLauncher: func(cfg config.BrowserConfig, logger *zap.Logger) (browser.Launcher, error) {
			l, err := cdp.NewLauncher(cfg, logger)
			if err != nil {
				return nil, err
			}
			return l, nil
		},
		stores: pgStoreProvider{},
		stdin:  os.Stdin,
	}
}

// runFlags maps command line flags onto configuration keys.
var runFlags = []struct {
	name, key, usage string
}{
	{"url", "flow.target_url", "registration page URL"},
	{"headless", "browser.headless", "run the browser without a window"},
	{"mode", "browser.mode", `"local" to launch Chromium, "remote" to attach to a DevTools endpoint`},
	{"remote-url", "browser.remote_url", "DevTools websocket URL for remote mode"},
	{"device", "browser.device", `emulated device, e.g. "Pixel 2"`},
	{"code-field", "flow.code_field", "locator of the verification code input (kind=value)"},
	{"code-strategy", "flow.code_strategy", `"field" or "visible_inputs"`},
	{"code-length", "flow.code_length", "number of digits in the verification code"},
	{"poll-interval", "flow.code_poll_interval_seconds", "seconds between code field samples"},
	{"wait-timeout", "flow.code_wait_deadline_seconds", "seconds to wait for the verification code"},
	{"step-timeout", "flow.step_timeout_seconds", "seconds to wait for each form element"},
	{"evidence-dir", "flow.evidence_dir", "directory for screenshots"},
	{"code-source", "codesource.type", `where codes come from besides the page: "none", "stdin" or "file"`},
	{"code-file", "codesource.file", "file to follow when --code-source=file"},
	{"count", "batch.count", "number of registrations to perform"},
	{"parallel", "batch.parallel", "maximum concurrent registrations"},
	{"rate", "batch.rate_per_minute", "maximum registrations started per minute (0 = unlimited)"},
}

// newRunCmd creates and configures the `run` command.
func newRunCmd(v *viper.Viper, deps runDeps) *cobra.Command {
	var outputPath string
	var format string

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Perform one or more registrations",
		Long: `Opens the registration page, fills in a generated identity, waits for the
verification code to be entered, submits the form and classifies the outcome.
Every run captures a screenshot and is reported as success, timeout, error or unknown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runRegistration(ctx, observability.GetLogger(), cfg, deps, format, outputPath, cmd.ErrOrStderr())
		},
	}

	defaults := config.NewDefaultConfig()
	f := runCmd.Flags()
	f.String("url", defaults.Flow.TargetURL, "")
	f.Bool("headless", defaults.Browser.Headless, "")
	f.String("mode", defaults.Browser.Mode, "")
	f.String("remote-url", defaults.Browser.RemoteURL, "")
	f.String("device", defaults.Browser.Device, "")
	f.String("code-field", defaults.Flow.CodeField, "")
	f.String("code-strategy", defaults.Flow.CodeStrategy, "")
	f.Int("code-length", defaults.Flow.CodeLength, "")
	f.Float64("poll-interval", defaults.Flow.CodePollIntervalSeconds, "")
	f.Float64("wait-timeout", defaults.Flow.CodeWaitDeadlineSeconds, "")
	f.Float64("step-timeout", defaults.Flow.StepTimeoutSeconds, "")
	f.String("evidence-dir", defaults.Flow.EvidenceDir, "")
	f.String("code-source", defaults.CodeSource.Type, "")
	f.String("code-file", defaults.CodeSource.File, "")
	f.Int("count", defaults.Batch.Count, "")
	f.Int("parallel", defaults.Batch.Parallel, "")
	f.Float64("rate", defaults.Batch.RatePerMinute, "")
	for _, rf := range runFlags {
		flag := f.Lookup(rf.name)
		flag.Usage = rf.usage
		_ = v.BindPFlag(rf.key, flag)
	}

	f.StringVarP(&format, "format", "f", reporting.FormatText, `result format: "text" or "json"`)
	f.StringVarP(&outputPath, "output", "o", "", "write results to this file instead of stdout")

	return runCmd
}

// runRegistration wires the configured collaborators together and runs the batch.
func runRegistration(
	ctx context.Context,
	logger *zap.Logger,
	cfg *config.Config,
	deps runDeps,
	format, outputPath string,
	prompt io.Writer,
) error {
	opts, err := flow.OptionsFromConfig(cfg.Flow)
	if err != nil {
		return fmt.Errorf("invalid flow configuration: %w", err)
	}

	reporter, err := reporting.New(format, outputPath)
	if err != nil {
		return err
	}
	defer reporter.Close()

	launcher, err := deps.newLauncher(cfg.Browser, logger)
	if err != nil {
		return fmt.Errorf("failed to set up browser: %w", err)
	}

	source, err := codesource.New(cfg.CodeSource, cfg.Flow.CodeLength, deps.stdin, prompt, logger)
	if err != nil {
		return err
	}
	defer source.Close()

	driver := flow.NewDriver(launcher, opts, logger, flow.WithCodeSource(source))

	var batchOpts []engine.Option
	if cfg.Database.URL != "" {
		s, cleanup, err := deps.stores.Create(ctx, cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}
		defer cleanup()
		batchOpts = append(batchOpts, engine.WithSink(s))
	}

	batch, err := engine.New(driver, identity.NewGenerator(cfg.Identity), cfg.Batch, logger, batchOpts...)
	if err != nil {
		return err
	}

	results, runErr := batch.Run(ctx)
	for _, r := range results {
		if err := reporter.Write(r); err != nil {
			logger.Error("Failed to write result", zap.String("run_id", r.RunID), zap.Error(err))
		}
	}
	return runErr
}
