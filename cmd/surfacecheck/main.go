package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"surfacecheck/internal/browser"
	"surfacecheck/internal/config"
	"surfacecheck/internal/embedding"
	"surfacecheck/internal/executor"
	"surfacecheck/internal/export"
	"surfacecheck/internal/logging"
	"surfacecheck/internal/reasoning"
	"surfacecheck/internal/report"
	"surfacecheck/internal/retrieval"
	"surfacecheck/internal/store"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:           "surfacecheck",
	Short:         "surfacecheck - validate a web UI against its data export",
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `surfacecheck explores a web application's interactive surface, indexes
its data export as ground truth, derives field-to-control mappings, and
replays synthesized tests comparing the UI's results to the data.

The data export is authoritative: the UI is judged against it, never the
other way around.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if err := logging.Initialize("."); err != nil {
			logger.Warn("file logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// runCmd executes the full pipeline: learn, map, synthesize, execute.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full validation pipeline against the target",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		llm, err := reasoning.NewGenAIClient(cfg.LLM)
		if err != nil {
			return fmt.Errorf("reasoning service: %w", err)
		}
		engine, err := embedding.NewEngine(cfg.Embedding)
		if err != nil {
			return fmt.Errorf("embedding service: %w", err)
		}

		st, err := store.Open(cfg.Store.DatabasePath)
		if err != nil {
			return err
		}
		defer st.Close()

		driver := browser.NewDriver(cfg.Browser)
		if err := driver.Start(ctx); err != nil {
			return fmt.Errorf("starting browser session: %w", err)
		}
		defer driver.Shutdown(context.Background())

		pipeline := executor.NewPipeline(cfg, driver, llm, engine, st)
		result := pipeline.Run(ctx)

		runDir, err := report.NewRenderer(cfg.Store.ArtifactsDir).WriteRun(result)
		if err != nil {
			logger.Warn("failed to write run artifacts", zap.Error(err))
		} else {
			logger.Info("run artifacts written", zap.String("dir", runDir))
		}

		printJSON(result)
		if !result.Success {
			return fmt.Errorf("pipeline failed: %s", result.Error)
		}
		return nil
	},
}

// ingestCmd indexes the data export without touching the browser.
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Parse and index the data export, then persist the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Target.ExportPath == "" {
			return fmt.Errorf("target.export_path is required")
		}

		ctx, cancel := signalContext()
		defer cancel()

		exp, err := export.ParseFile(cfg.Target.ExportPath)
		if err != nil {
			return err
		}
		fmt.Println(exp.SummaryText(5))

		engine, err := embedding.NewEngine(cfg.Embedding)
		if err != nil {
			return fmt.Errorf("embedding service: %w", err)
		}

		index := retrieval.NewIndex(engine, cfg.Retrieval.ChunkSize)
		rows := make([]retrieval.Row, len(exp.Records))
		for i, rec := range exp.Records {
			rows[i] = retrieval.Row(rec)
		}
		if err := index.Ingest(ctx, "export:"+exp.SourceFile, rows); err != nil {
			return err
		}

		st, err := store.Open(cfg.Store.DatabasePath)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.SaveIndex(index.Entries()); err != nil {
			return err
		}

		fmt.Printf("indexed %d records into %d chunks\n", len(rows), index.Len())
		return nil
	},
}

// replayCmd re-executes persisted tests against a restored index, skipping
// the learning phase entirely.
var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-run persisted tests against the persisted index",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		st, err := store.Open(cfg.Store.DatabasePath)
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := st.LoadIndex()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return fmt.Errorf("no index persisted yet, run the pipeline first")
		}
		tests, err := st.AllTests()
		if err != nil {
			return err
		}
		if len(tests) == 0 {
			return fmt.Errorf("no tests persisted yet, run the pipeline first")
		}

		engine, err := embedding.NewEngine(cfg.Embedding)
		if err != nil {
			return fmt.Errorf("embedding service: %w", err)
		}
		index := retrieval.NewIndex(engine, cfg.Retrieval.ChunkSize)
		if err := index.Restore(entries); err != nil {
			return err
		}

		driver := browser.NewDriver(cfg.Browser)
		if err := driver.Start(ctx); err != nil {
			return fmt.Errorf("starting browser session: %w", err)
		}
		defer driver.Shutdown(context.Background())

		dismisser := browser.NewSelectorDismisser(
			cfg.Explore.Heuristics.Merge().Obstacles, cfg.Execution.MaxObstacleDismissals)
		exec := executor.NewExecutor(driver, index, dismisser,
			cfg.Execution, cfg.Retrieval, cfg.Explore.Heuristics, cfg.Target.URL)
		run := exec.ExecuteRun(ctx, tests)

		if err := st.SaveRun(run); err != nil {
			return err
		}
		fmt.Print(report.Summary(run))
		if run.Failed > 0 || run.Errors > 0 {
			return fmt.Errorf("replay finished with %d failed and %d errored tests", run.Failed, run.Errors)
		}
		return nil
	},
}

// reportCmd renders the latest (or a named) persisted run.
var reportCmd = &cobra.Command{
	Use:   "report [run-id]",
	Short: "Print the summary of a persisted run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := store.Open(cfg.Store.DatabasePath)
		if err != nil {
			return err
		}
		defer st.Close()

		var run *executor.TestRun
		if len(args) == 1 {
			run, err = st.RunByID(args[0])
		} else {
			run, err = st.LatestRun()
		}
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("no runs recorded yet")
		}
		fmt.Print(report.Summary(run))
		return nil
	},
}

// initCmd writes a starter configuration file.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("%s already exists", configPath)
		}
		cfg := config.DefaultConfig()
		if err := cfg.Save(configPath); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", configPath)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.DefaultConfig().Version)
	},
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := logging.Configure(cfg.Logging.DebugMode, cfg.Logging.Level, cfg.Logging.Categories); err != nil {
		logger.Warn("file logging unavailable", zap.Error(err))
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to render result: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "surfacecheck.yaml", "configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(runCmd, ingestCmd, replayCmd, reportCmd, initCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
