package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ldar-sim/ldar-sim/sim/output"
	"github.com/ldar-sim/ldar-sim/sim/study"
)

var (
	configPath string // Study YAML file
	seed       int64  // Base seed; replicate i uses seed+i
	replicates int    // Number of replicates per program
	workers    int    // Parallel program-replicates (0 = unbounded)
	outPath    string // SQLite results file
	baseline   string // Program the others are compared against
	logLevel   string // Log verbosity level
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "ldar-sim",
	Short: "Time-stepped simulator for leak detection and repair programs",
}

// runOptions are the CLI overrides applied on top of the study file.
type runOptions struct {
	configPath string
	seed       *int64
	replicates *int
	workers    *int
	outPath    *string
	baseline   *string
}

// runCmd runs every program of a study file and prints a comparison
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an LDAR study",
	Run: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		opts := runOptions{configPath: configPath}
		// Flags override the study file only when explicitly set.
		if cmd.Flags().Changed("seed") {
			opts.seed = &seed
		}
		if cmd.Flags().Changed("replicates") {
			opts.replicates = &replicates
		}
		if cmd.Flags().Changed("workers") {
			opts.workers = &workers
		}
		if cmd.Flags().Changed("out") {
			opts.outPath = &outPath
		}
		if cmd.Flags().Changed("baseline") {
			opts.baseline = &baseline
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if err := runStudy(ctx, opts, os.Stdout); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

// runStudy loads the study file, applies overrides, runs it and writes the
// comparison to w.
func runStudy(ctx context.Context, opts runOptions, w io.Writer) error {
	f, err := loadStudyFile(opts.configPath)
	if err != nil {
		return err
	}
	if opts.seed != nil {
		f.Seed = *opts.seed
		f.Seeds = nil
	}
	if opts.replicates != nil {
		f.Replicates = opts.replicates
	}
	if opts.workers != nil {
		f.Workers = *opts.workers
	}
	if opts.outPath != nil {
		f.Output = *opts.outPath
	}
	if opts.baseline != nil {
		f.Baseline = *opts.baseline
	}

	s, err := f.Study()
	if err != nil {
		return fmt.Errorf("study %s: %w", opts.configPath, err)
	}

	var sink study.Sink
	if f.Output != "" {
		db, err := output.NewSQLiteSink(f.Output)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		sink = db
	}

	logrus.Infof("Starting study: %d program(s), %d site(s), %s to %s, %d replicate(s)",
		len(s.Programs), len(s.Sites), s.Simulation.Start.Format(time.DateOnly), s.Simulation.End.Format(time.DateOnly), s.Replicates)
	started := time.Now()
	results, err := study.Run(ctx, s, sink)
	if err != nil {
		return err
	}
	logrus.Infof("Study complete in %s", time.Since(started).Round(time.Millisecond))

	printComparison(w, study.Compare(results, f.Baseline), f.Baseline)
	if f.Output != "" {
		_, _ = fmt.Fprintf(w, "Results written to %s\n", f.Output)
	}
	return nil
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "Study YAML file")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Base seed; replicate i uses seed+i")
	runCmd.Flags().IntVar(&replicates, "replicates", 1, "Replicates per program")
	runCmd.Flags().IntVar(&workers, "workers", 0, "Program-replicates run in parallel (0 = unbounded)")
	runCmd.Flags().StringVar(&outPath, "out", "", "SQLite file for results")
	runCmd.Flags().StringVar(&baseline, "baseline", "", "Program used as the mitigation reference")
	runCmd.Flags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	_ = runCmd.MarkFlagRequired("config")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
