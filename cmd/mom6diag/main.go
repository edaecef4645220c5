// Package main provides the mom6diag command: surface-field diagnostics of
// MOM6 history output against an observational climatology.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"go.ngs.io/mom6-diags/internal/config"
	httpHandler "go.ngs.io/mom6-diags/internal/http"
	"go.ngs.io/mom6-diags/internal/usecase"
)

const version = "0.1.0"

var (
	// Global flags
	debug bool

	// run flags
	caseName  string
	label     string
	startDate string
	endDate   string
	outDir    string
	workers   int

	// serve flags
	serveDir     string
	serveSummary string
	port         string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mom6diag",
	Short: "Surface diagnostics for MOM6 history output",
	Long: `mom6diag reads MOM6 history files described by a YAML configuration,
computes monthly and seasonal climatologies of surface fields (mixed layer
depth, boundary layer depth, sea surface height), compares them with an
observational climatology and writes maps, statistics and a JSON summary.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if debug {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run [config.yml]",
	Short: "Run the diagnostics described by a configuration file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDiagnostics,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the figures and summary of an output directory over HTTP",
	RunE:  serve,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mom6diag version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	addRunFlags(runCmd)

	serveCmd.Flags().StringVar(&serveDir, "dir", "PNG", "Output directory of a previous run")
	serveCmd.Flags().StringVar(&serveSummary, "summary", "summary.json", "Summary file name inside --dir")
	serveCmd.Flags().StringVar(&port, "port", getEnv("PORT", "8080"), "Listen port")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&caseName, "case", "", "Case name expanded into the history pattern (overrides case.name)")
	cmd.Flags().StringVar(&label, "label", "", "Label appended to figure titles (overrides case.label)")
	cmd.Flags().StringVar(&startDate, "start", "", "Start of the averaging window, YYYY-MM-DD (overrides avg.start_date)")
	cmd.Flags().StringVar(&endDate, "end", "", "End of the averaging window, exclusive (overrides avg.end_date)")
	cmd.Flags().StringVar(&outDir, "out", "", "Output directory, relative to the working directory (overrides output.dir)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Worker count (overrides compute.workers)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDiagnostics(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}
	if err := applyOverrides(cmd, cfg); err != nil {
		return err
	}

	logger.Info("Starting diagnostics",
		zap.String("config", args[0]),
		zap.String("case", cfg.Case.Name),
		zap.Int("workers", cfg.Compute.Workers))

	summary, err := usecase.NewSurfaceDiagnostics(logger).Run(ctx, cfg)
	if err != nil {
		return err
	}

	for _, f := range summary.Fields {
		if f.Skipped != "" {
			fmt.Printf("%-4s skipped: %s\n", f.Name, f.Skipped)
			continue
		}
		ann, ok := f.Period("ANN")
		if !ok {
			continue
		}
		fmt.Printf("%-4s ANN bias %10.4g  rmse %10.4g %s\n", f.Name, float64(ann.Bias), float64(ann.RMSE), f.Units)
	}
	fmt.Printf("Summary: %s\n", cfg.SummaryPath())
	return nil
}

// applyOverrides copies the run flags that were set onto cfg and
// re-validates it. --out is taken relative to the working directory, not
// to the configuration file.
func applyOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("case") {
		cfg.Case.Name = caseName
	}
	if flags.Changed("label") {
		cfg.Case.Label = label
	}
	if flags.Changed("start") {
		cfg.Avg.StartDate = startDate
	}
	if flags.Changed("end") {
		cfg.Avg.EndDate = endDate
	}
	if outDir != "" {
		abs, err := filepath.Abs(outDir)
		if err != nil {
			return fmt.Errorf("--out: %w", err)
		}
		cfg.Output.Dir = abs
	}
	if flags.Changed("workers") {
		if workers < 0 {
			return fmt.Errorf("--workers must be >= 0, got %d", workers)
		}
		cfg.Compute.Workers = workers
	}
	return cfg.Validate()
}

func serve(cmd *cobra.Command, args []string) error {
	handler := httpHandler.NewHandler(serveDir, serveSummary, logger)
	router := httpHandler.SetupRouter(handler, logger)

	addr := fmt.Sprintf(":%s", port)
	logger.Info("Viewer listening",
		zap.String("addr", addr),
		zap.String("dir", serveDir))
	if err := router.Run(addr); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
