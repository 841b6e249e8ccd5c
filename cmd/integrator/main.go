// Command integrator runs a generator and an integrator of random
// logarithm integrals against each other and prints a consistency report.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"gitlab.com/rogov-ks/integrator/config"
	"gitlab.com/rogov-ks/integrator/orchestrator"
	"gitlab.com/rogov-ks/integrator/pipeline"
	"gitlab.com/rogov-ks/integrator/statusserver"
)

var errCheckFailed = errors.New("final check failed")

const shutdownTimeout = 5 * time.Second

func main() {
	cmd := newRootCommand(os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// modeValue позволяет передавать pipeline.Mode флагом
type modeValue struct{ mode *pipeline.Mode }

func (v modeValue) String() string {
	if v.mode == nil {
		return ""
	}
	return string(*v.mode)
}

func (v modeValue) Set(s string) error {
	m, err := pipeline.ParseMode(s)
	if err != nil {
		return err
	}
	*v.mode = m
	return nil
}

func (modeValue) Type() string { return "mode" }

var _ pflag.Value = modeValue{}

type flagValues struct {
	configPath string
	tasks      int
	mode       pipeline.Mode
	deadline   time.Duration
	seed       uint64
	statusAddr string
	logLevel   string
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	var fv flagValues

	cmd := &cobra.Command{
		Use:   "integrator",
		Short: "Run the generator/integrator pipeline",
		Long: `
Runs a generator of random logarithm integration tasks and an integrator
consuming them, polls their progress until they finish or the deadline
passes, and prints the final report. Exits with a non-zero status when the
counters end up inconsistent.
`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(c *cobra.Command, args []string) error {
			err := run(c.Context(), c.Flags(), fv, stdout)
			if err != nil {
				fmt.Fprintln(stderr, "error:", err)
			}
			return err
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	defaults := config.Default()
	fv.mode = defaults.Pipeline.Mode

	flags := cmd.Flags()
	flags.StringVarP(&fv.configPath, "config", "c", "", "path to the YAML config")
	flags.IntVarP(&fv.tasks, "tasks", "n", defaults.Pipeline.TaskCount, "number of tasks to generate")
	flags.Var(modeValue{&fv.mode}, "mode", "task handoff: shared-slot or channel")
	flags.DurationVar(&fv.deadline, "deadline", defaults.Orchestrator.Deadline, "cancel the run after this long")
	flags.Uint64Var(&fv.seed, "seed", 0, "generator seed, 0 picks a random one")
	flags.StringVar(&fv.statusAddr, "status-addr", "", "serve /metrics, /progress and /healthz on this address")
	flags.StringVar(&fv.logLevel, "log-level", defaults.Log.Level, "log level")
	return cmd
}

// loadConfig reads the config file, if any, and applies the flags that were
// set explicitly on top of it.
func loadConfig(flags *pflag.FlagSet, fv flagValues) (config.Config, error) {
	cfg := config.Default()
	if fv.configPath != "" {
		var err error
		if cfg, err = config.Load(fv.configPath); err != nil {
			return config.Config{}, err
		}
	}

	if flags.Changed("tasks") {
		cfg.Pipeline.TaskCount = fv.tasks
	}
	if flags.Changed("mode") {
		cfg.Pipeline.Mode = fv.mode
	}
	if flags.Changed("deadline") {
		cfg.Orchestrator.Deadline = fv.deadline
	}
	if flags.Changed("seed") {
		cfg.Pipeline.Seed = fv.seed
	}
	if flags.Changed("status-addr") {
		cfg.StatusAddr = fv.statusAddr
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = fv.logLevel
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, flags *pflag.FlagSet, fv flagValues, stdout io.Writer) error {
	cfg, err := loadConfig(flags, fv)
	if err != nil {
		return err
	}

	logger, err := cfg.Log.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	metrics, err := pipeline.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	orch, err := orchestrator.New(cfg.Orchestrator,
		orchestrator.WithLogger(logger.Named("orchestrator")),
		orchestrator.WithPipelineOptions(
			pipeline.WithLogger(logger.Named("pipeline")),
			pipeline.WithMetrics(metrics),
		),
	)
	if err != nil {
		return err
	}

	if cfg.StatusAddr != "" {
		srv, err := statusserver.Start(cfg.StatusAddr,
			statusserver.NewHandler(orch, reg, logger.Named("http")), logger.Named("http"))
		if err != nil {
			return fmt.Errorf("start status server: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("status server shutdown", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := orch.Run(ctx, cfg.Pipeline)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, report)

	if err := report.Check(); err != nil {
		return fmt.Errorf("%w: %w", errCheckFailed, err)
	}
	return nil
}
