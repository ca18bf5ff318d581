package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/edp1096/toy-pic/pkg/analysis"
	"github.com/edp1096/toy-pic/pkg/config"
	"github.com/edp1096/toy-pic/pkg/diag"
)

type options struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	o := &options{}

	rootCmd := &cobra.Command{
		Use:   "pic",
		Short: "Theta-implicit electromagnetic particle-in-cell solver",
		Long: `pic advances a 1D periodic electromagnetic particle-in-cell model with a
theta-implicit scheme. The implicit field equation is solved each step with a
Picard or Jacobian-free Newton-Krylov solver.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations["config"] == "skip" {
				return nil
			}
			cfg, err := config.Load(o.configPath)
			if err != nil {
				return err
			}
			o.cfg = cfg
			o.logger, err = newLogger(cfg.Log, o.verbose)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if o.logger != nil {
				_ = o.logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&o.configPath, "config", "c", "pic.yaml", "Run configuration file")
	rootCmd.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(newRunCmd(o))
	rootCmd.AddCommand(newParamsCmd(o))
	rootCmd.AddCommand(newInitCmd(o))
	rootCmd.AddCommand(newChecksumCmd())
	return rootCmd
}

func newLogger(lc config.LogConfig, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

func newRunCmd(o *options) *cobra.Command {
	var (
		steps int
		name  string
		table bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured simulation",
		Long: `Builds the mesh, fields and particles from the configuration, advances the
configured number of steps and writes the requested diagnostics. With
diag.benchmark set, the run fails when the final checksum does not match.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps > 0 {
				o.cfg.Time.Steps = steps
			}
			if name == "" {
				name = strings.TrimSuffix(filepath.Base(o.configPath), filepath.Ext(o.configPath))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			tr, err := runSimulation(ctx, o.cfg, o.logger)
			if err != nil {
				return err
			}
			if table {
				analysis.PrintResults(cmd.OutOrStdout(), tr.GetResults())
			}
			return tr.WriteDiagnostics(name)
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "Override time.steps")
	cmd.Flags().StringVar(&name, "name", "", "Checksum name (default: config file name)")
	cmd.Flags().BoolVar(&table, "table", false, "Print the energy history table")
	return cmd
}

func runSimulation(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*analysis.Transient, error) {
	p, err := analysis.Build(cfg, logger)
	if err != nil {
		return nil, err
	}
	tr := analysis.NewTransientFromConfig(p)
	if err := tr.Setup(p); err != nil {
		return nil, err
	}
	if err := tr.Execute(ctx); err != nil {
		return tr, err
	}
	return tr, nil
}

func newParamsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "params",
		Short: "Print the scheme and solver parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := analysis.Build(o.cfg, o.logger)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Cells:                           %d\n", p.Layout.NCells)
			fmt.Fprintf(w, "Boxes:                           %d\n", p.Layout.NumBoxes())
			fmt.Fprintf(w, "Time step:                       %g s\n", o.cfg.Dt())
			fmt.Fprintf(w, "Steps:                           %d\n", o.cfg.Time.Steps)
			if p.Particles != nil {
				fmt.Fprintf(w, "Particles:                       %d\n", p.Particles.Count())
			}
			p.Scheme.PrintParameters(w)
			return nil
		},
	}
}

func newInitCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:         "init",
		Short:       "Write the default configuration to --config",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"config": "skip"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(o.configPath); err == nil {
				return fmt.Errorf("%s already exists", o.configPath)
			}
			if err := config.DefaultConfig().Save(o.configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", o.configPath)
			return nil
		},
	}
}

func newChecksumCmd() *cobra.Command {
	var rtol, atol float64
	cmd := &cobra.Command{
		Use:         "checksum <result.json> <benchmark.json>",
		Short:       "Compare a checksum file against a benchmark",
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{"config": "skip"},
		RunE: func(cmd *cobra.Command, args []string) error {
			got, err := diag.ReadChecksum(args[0])
			if err != nil {
				return err
			}
			bench, err := diag.ReadChecksum(args[1])
			if err != nil {
				return err
			}
			if err := got.Evaluate(bench, rtol, atol); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s matches %s\n", args[0], args[1])
			return nil
		},
	}
	cmd.Flags().Float64Var(&rtol, "rtol", 1e-9, "Relative tolerance")
	cmd.Flags().Float64Var(&atol, "atol", 1e-40, "Absolute tolerance")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
