package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/motorscan/motorscan/internal/api"
	"github.com/motorscan/motorscan/internal/logger"
	"github.com/motorscan/motorscan/internal/normalize"
	"github.com/motorscan/motorscan/internal/output"
	"github.com/motorscan/motorscan/internal/progress"
	"github.com/motorscan/motorscan/internal/registry"
	"github.com/motorscan/motorscan/internal/schedule"
	"github.com/motorscan/motorscan/internal/shutdown"
	"github.com/motorscan/motorscan/internal/state"
	"github.com/motorscan/motorscan/internal/store"
	"github.com/motorscan/motorscan/pkg/pipeline"
)

var (
	version = "1.0.0"

	// Global flags
	configFile string
	verbose    bool
	debug      bool

	// Scrape flags
	pages      int
	source     string
	dbPath     string
	runTimeout time.Duration
	outputFile string
	streamOut  bool
	noProgress bool
	headless   bool
	seed       bool
	polite     bool

	// Serve flags
	addr     string
	cronSpec string

	// Runs flags
	runsLimit int

	// Prune flags
	pruneDays int
)

func main() {
	// Optional .env feeds the MOTORSCAN_* overrides.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "motorscan",
		Short: "motorscan - Vehicle Listing Scraper",
		Long: `motorscan - A vehicle listing scraper and normalizer.

Scrapes paginated vehicle listings through a headless browser, normalizes
Hebrew market fields, resolves brand and model identities, and upserts
listings into a local sqlite database keyed by (source, source_id).`,
		Version: version,
	}

	// Scrape command
	scrapeCmd := &cobra.Command{
		Use:   "scrape",
		Short: "Run a one-shot scrape",
		Long:  "Run a single scrape to completion and print a run report.",
		RunE:  runScrape,
	}

	// Serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run-control HTTP API",
		Long:  "Start the HTTP control surface, optionally with a cron schedule for recurring scrapes.",
		RunE:  runServe,
	}

	// Runs command
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		Long:  "List journaled scrape runs, newest first.",
		RunE:  runRuns,
	}

	// Prune command
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Mark stale listings inactive",
		Long:  "Mark active listings that have not been seen for a number of days as inactive.",
		RunE:  runPrune,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Debug mode")

	// Scrape flags
	scrapeCmd.Flags().IntVarP(&pages, "pages", "p", 5, "Maximum result pages to fetch")
	scrapeCmd.Flags().StringVar(&source, "source", "yad2", "Source site to scrape")
	scrapeCmd.Flags().StringVar(&dbPath, "db", "", "Listing database path")
	scrapeCmd.Flags().DurationVar(&runTimeout, "run-timeout", 30*time.Minute, "Wall-clock ceiling for the run")
	scrapeCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write the run report to a JSON file")
	scrapeCmd.Flags().BoolVar(&streamOut, "stream", false, "Stream upserted listings to stdout as JSON lines")
	scrapeCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress display")
	scrapeCmd.Flags().BoolVar(&headless, "headless", true, "Run the browser headless")
	scrapeCmd.Flags().BoolVar(&seed, "seed", true, "Seed the brand dictionary on first open")
	scrapeCmd.Flags().BoolVar(&polite, "polite", false, "Polite mode: slower pacing, more retries")

	// Serve flags
	serveCmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "HTTP listen address")
	serveCmd.Flags().StringVar(&cronSpec, "schedule", "", `Cron spec for recurring scrapes (e.g. "0 6 * * *")`)
	serveCmd.Flags().IntVarP(&pages, "pages", "p", 5, "Maximum result pages per run")
	serveCmd.Flags().StringVar(&dbPath, "db", "", "Listing database path")

	// Runs flags
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Maximum runs to list (0 = all)")

	// Prune flags
	pruneCmd.Flags().IntVar(&pruneDays, "days", 30, "Age in days after which unseen listings go inactive")

	// Add commands
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(pruneCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runScrape(cmd *cobra.Command, args []string) error {
	config, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	lock, err := lockDataDir(config)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	// The progress display owns stdout; logs, streaming and the bar
	// cannot share it.
	enableProgress := !noProgress && !verbose && !debug && !streamOut

	var opts []pipeline.Option
	var writer output.Writer
	if streamOut {
		writer = output.NewWriter(os.Stdout, output.Config{Format: "json", Stream: true})
		opts = append(opts, pipeline.WithListingSink(func(outcome store.Outcome, listing *normalize.Listing) {
			writer.WriteListing(string(outcome), listing)
		}))
	}

	p, err := pipeline.New(config, opts...)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer p.Close()

	// Interrupts close the pipeline, which cancels the active run at the
	// next page boundary.
	handler := shutdown.NewDefault()
	handler.Register("pipeline", func(ctx context.Context) error {
		return p.Close()
	})
	go handler.Wait()

	if !enableProgress && !streamOut {
		printBanner(config)
	}

	snap, err := p.Start(0)
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}

	display := progress.New()
	if enableProgress {
		display.Start(config.Source, snap.MaxPages)
	}

	final := snap
	for !registry.IsTerminal(final.Status) {
		time.Sleep(200 * time.Millisecond)
		current, err := p.Status(final.RunID)
		if err != nil {
			break
		}
		final = current
		if enableProgress {
			display.Update(final.PagesDone, final.Result.Created, final.Result.Updated,
				final.Result.Unchanged, final.Result.Errors, final.Result.Total)
		}
	}

	if enableProgress {
		display.Stop()
		display.PrintSummary(final.Status, final.Message)
	}
	if writer != nil {
		writer.Flush()
	}

	// The store is gone when an interrupt raced the final poll.
	var stats *store.Stats
	if st, err := p.Store().Stats(context.Background()); err == nil {
		stats = st
	}
	report := output.BuildReport(config.Source, final, p.Metrics().Snapshot(), stats)

	if outputFile != "" {
		if err := writeReportFile(outputFile, report); err != nil {
			return err
		}
		if streamOut {
			fmt.Fprintf(os.Stderr, "Run report written to %s\n", outputFile)
		} else {
			fmt.Printf("Run report written to %s\n", outputFile)
		}
	} else if !enableProgress && !streamOut {
		output.FormatReport(os.Stdout, report)
	}

	if final.Status == registry.StatusError {
		if final.Error != "" {
			return fmt.Errorf("run %s failed: %s", final.RunID, final.Error)
		}
		return fmt.Errorf("run %s failed", final.RunID)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	config, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	lock, err := lockDataDir(config)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	level := logger.InfoLevel
	if debug {
		level = logger.DebugLevel
	}
	log := logger.New(logger.Config{
		Level:     level,
		Pretty:    true,
		Component: "motorscan",
	})

	p, err := pipeline.New(config, pipeline.WithLogger(log))
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	server := api.New(api.Config{Addr: addr, Version: version}, p, log, p.Metrics())
	httpServer := server.HTTPServer()

	handler := shutdown.New(shutdown.Config{
		Timeout: 30 * time.Second,
		OnShutdownStart: func() {
			log.Info("Graceful shutdown initiated...")
		},
		OnShutdownDone: func(elapsed time.Duration, errs []error) {
			if len(errs) > 0 {
				log.Warnf("Shutdown finished in %v with %d errors", elapsed.Round(time.Millisecond), len(errs))
			} else {
				log.Infof("Shutdown finished in %v", elapsed.Round(time.Millisecond))
			}
		},
	})

	// Reverse order on shutdown: listener drains first, pipeline last.
	handler.Register("pipeline", func(ctx context.Context) error {
		return p.Close()
	})

	if config.Schedule != "" {
		sched, err := schedule.New(config.Schedule, 0, p, log)
		if err != nil {
			p.Close()
			return err
		}
		sched.Start()
		handler.RegisterFunc("scheduler", sched.Stop)
		log.Infof("Schedule %q armed, next run %s", config.Schedule, sched.NextRun().Format(time.RFC3339))
	}

	handler.RegisterServer("http", httpServer)

	log.Infof("motorscan v%s serving on %s", version, addr)

	g, gctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		handler.WaitWithContext(gctx)
		return nil
	})
	return g.Wait()
}

func runRuns(cmd *cobra.Command, args []string) error {
	config, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	journal, err := state.NewBoltJournal(config.State.JournalPath)
	if err != nil {
		return fmt.Errorf("failed to open run journal: %w", err)
	}
	defer journal.Close()

	recs, err := journal.List()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if runsLimit > 0 && len(recs) > runsLimit {
		recs = recs[:runsLimit]
	}

	if len(recs) == 0 {
		fmt.Println("No recorded runs.")
		return nil
	}

	output.FormatRuns(os.Stdout, recs)
	return nil
}

func runPrune(cmd *cobra.Command, args []string) error {
	if pruneDays <= 0 {
		return fmt.Errorf("days must be positive, got %d", pruneDays)
	}

	config, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	lock, err := lockDataDir(config)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	s, err := store.Open(config.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer s.Close()

	ctx := context.Background()
	marked, err := s.MarkInactiveOlderThan(ctx, time.Duration(pruneDays)*24*time.Hour)
	if err != nil {
		return fmt.Errorf("failed to prune listings: %w", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read store stats: %w", err)
	}

	fmt.Printf("Marked %d listings inactive (unseen for %d+ days)\n", marked, pruneDays)
	fmt.Printf("Listings: %d total, %d active\n", stats.Listings, stats.Active)
	return nil
}

// buildConfig assembles the pipeline configuration: defaults, then the
// config file, then environment, then explicit flags.
func buildConfig(cmd *cobra.Command) (*pipeline.Config, error) {
	config := pipeline.DefaultConfig()
	if polite {
		config = pipeline.PoliteConfig()
	}

	if configFile != "" {
		fileConfig, err := pipeline.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		config = fileConfig
	}

	applyEnv(config)

	// Command-line flags take precedence
	if cmd.Flags().Changed("pages") {
		config.MaxPages = pages
	}
	if cmd.Flags().Changed("source") {
		config.Source = source
	}
	if cmd.Flags().Changed("db") {
		config.Storage.Path = dbPath
	}
	if cmd.Flags().Changed("run-timeout") {
		config.RunTimeout = runTimeout
	}
	if cmd.Flags().Changed("headless") {
		config.Browser.Headless = headless
	}
	if cmd.Flags().Changed("seed") {
		config.Storage.Seed = seed
	}
	if cmd.Flags().Changed("schedule") {
		config.Schedule = cronSpec
	}

	config.Verbose = verbose
	config.Debug = debug

	return config, nil
}

// applyEnv folds MOTORSCAN_* environment values into the config. godotenv
// loads them from .env when present; real environment variables win.
func applyEnv(config *pipeline.Config) {
	if v := os.Getenv("MOTORSCAN_DB"); v != "" {
		config.Storage.Path = v
	}
	if v := os.Getenv("MOTORSCAN_JOURNAL"); v != "" {
		config.State.JournalPath = v
	}
	if v := os.Getenv("MOTORSCAN_SCHEDULE"); v != "" {
		config.Schedule = v
	}
}

// lockDataDir takes the process lock next to the listing database. Two
// processes must not share one sqlite store.
func lockDataDir(config *pipeline.Config) (*flock.Flock, error) {
	dir := filepath.Dir(config.Storage.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, "motorscan.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire data directory lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another motorscan process holds %s", lock.Path())
	}
	return lock, nil
}

// writeReportFile writes the run report to path as pretty JSON.
func writeReportFile(path string, report *output.RunReport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}

	w := output.NewWriter(f, output.Config{Format: "json", Pretty: true, FilePath: path})
	if err := w.WriteReport(report); err != nil {
		f.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return w.Close()
}

func printBanner(config *pipeline.Config) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                        motorscan v1.0                         ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("Source:     %s\n", config.Source)
	fmt.Printf("Max Pages:  %d\n", config.MaxPages)
	fmt.Printf("Database:   %s\n", config.Storage.Path)
	fmt.Printf("Delay:      %v - %v\n", config.RateLimit.DelayMin, config.RateLimit.DelayMax)
	fmt.Println()
	fmt.Println("Starting scrape...")
	fmt.Println()
}
