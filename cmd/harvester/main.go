package main

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alvmarrod/image-weaver/internal/config"
	"github.com/alvmarrod/image-weaver/internal/crawler"
	"github.com/alvmarrod/image-weaver/internal/fetch"
	"github.com/alvmarrod/image-weaver/internal/memory"
	"github.com/alvmarrod/image-weaver/internal/metrics"
	"github.com/alvmarrod/image-weaver/internal/storage"
	"github.com/alvmarrod/image-weaver/internal/version"
)

var (
	flagArticles int
	flagConfig   string
	flagBaseURL  string
	flagTimeout  time.Duration
	flagDBPath   string
	flagMetrics  string
	flagDebug    bool
)

var rootCmd = &cobra.Command{
	Use:   "harvester [flags] THREADS OUT_DIR",
	Short: "Download the images of the latest articles of a site",
	Long: `harvester reads the article listing of a site, takes the newest articles and saves
every image found in each article body into a directory named after the article.

THREADS is the number of articles processed concurrently, OUT_DIR the directory
article folders are created in.`,
	Args:          cobra.ExactArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runHarvest,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "harvester %s\n", version.Version)
	},
}

func init() {
	rootCmd.Flags().IntVarP(&flagArticles, "articles", "n", 25, "number of articles to process")
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "path to YAML config file")
	rootCmd.Flags().StringVar(&flagBaseURL, "base-url", "", "site root to read the listing from")
	rootCmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "per-request timeout (default 10s)")
	rootCmd.Flags().StringVar(&flagDBPath, "db", "", "SQLite file to record run results in")
	rootCmd.Flags().StringVar(&flagMetrics, "metrics", "", "file to write run metrics JSON to")
	rootCmd.Flags().BoolVar(&flagDebug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	// Configure logging
	logrus.SetLevel(logrus.InfoLevel)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

// loadConfig merges the config file (explicit or XDG) with command-line arguments
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	path := flagConfig
	if path == "" {
		path = config.FindConfig()
	}

	cfg := config.Default()
	if path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
		logrus.Infof("Configuration file: %s", path)
	}

	threads, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, fmt.Errorf("THREADS must be an integer, got %q", args[0])
	}
	cfg.ConcurrentWorkers = threads
	cfg.OutputDir = args[1]

	if cmd.Flags().Changed("articles") {
		cfg.SetLimit(flagArticles)
	}
	if flagBaseURL != "" {
		cfg.BaseURL = flagBaseURL
	}
	if flagTimeout > 0 {
		cfg.RequestTimeoutMs = int(flagTimeout.Milliseconds())
	}
	if flagDBPath != "" {
		cfg.DBPath = flagDBPath
	}
	if flagMetrics != "" {
		cfg.MetricsPath = flagMetrics
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runHarvest(cmd *cobra.Command, args []string) error {
	if flagDebug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	logrus.Infof("Image Weaver v%s starting...", version.Version)

	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	logrus.Infof("Configuration loaded: site=%s, articles=%d, workers=%d, out=%s",
		cfg.BaseURL, cfg.Limit(), cfg.ConcurrentWorkers, cfg.OutputDir)

	return harvest(cfg)
}

// harvest runs one complete fetch-and-download pass
func harvest(cfg *config.Config) error {
	// Optional ledger storage
	var store *storage.Storage
	if cfg.DBPath != "" {
		s, err := storage.NewStorage(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer s.Close()
		store = s
		logrus.Infof("Database initialized: %s", cfg.DBPath)
	}

	tracker := metrics.NewTracker()
	ledger := memory.NewLedger(cfg.BaseURL)

	fetcher := fetch.NewClient(fetch.Options{
		Timeout:   cfg.RequestTimeout(),
		UserAgent: cfg.UserAgent,
	})

	locator := crawler.NewLocator(crawler.Markers{
		RegionStart: cfg.Region.Start,
		RegionEnd:   cfg.Region.End,
		ImageSource: cfg.Region.ImageSource,
	})

	root := crawler.ResolveOutputRoot(cfg.OutputDir)
	downloader, err := crawler.NewDownloader(fetcher, locator, cfg.BaseURL, root)
	if err != nil {
		return err
	}

	shutdown := crawler.NewShutdown()
	pool := crawler.NewPool(cfg.ConcurrentWorkers, downloader, shutdown, func(r crawler.Result) {
		tracker.Record(r.Outcome, r.Duration)
		ledger.Record(r.Seq, r.Job, r.Outcome, r.Duration)
	})

	// Setup signal handler for graceful shutdown
	coordinator := crawler.NewCoordinator(shutdown, pool)
	coordinator.Arm()
	defer coordinator.Disarm()

	listing, err := fetcher.Fetch(cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("failed to fetch listing: %w", err)
	}

	jobs, err := crawler.ParseListing(listing, crawler.ListingSelectors{
		Headline: cfg.Listing.Headline,
		Title:    cfg.Listing.Title,
		Link:     cfg.Listing.Link,
	}, cfg.Limit())
	if err != nil {
		return err
	}
	tracker.SetArticlesListed(len(jobs))
	logrus.Infof("Listing parsed: %d articles (limit %d)", len(jobs), cfg.Limit())

	// Start progress logger
	stopProgress := make(chan struct{})
	var wg sync.WaitGroup
	if interval := cfg.ProgressInterval(); interval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					logrus.Info(tracker.LogProgress())
				case <-stopProgress:
					return
				}
			}
		}()
	}

	summary := pool.Run(jobs)

	terminationReason := "completed"
	if summary.Interrupted || shutdown.Triggered() {
		terminationReason = "signal"
	}

	logrus.Info("Step 1/3: Stopping progress logger...")
	close(stopProgress)
	wg.Wait()

	logrus.Info("Step 2/3: Flushing run ledger...")
	if store != nil {
		if err := ledger.Flush(store, terminationReason); err != nil {
			logrus.Errorf("Failed to flush run ledger: %v", err)
		} else {
			logrus.Infof("Run %s recorded in %s", ledger.RunID(), cfg.DBPath)
		}
	} else {
		logrus.Debug("No database configured, ledger kept in memory only")
	}

	logrus.Info("Step 3/3: Writing final metrics...")
	logrus.Info("Final stats: " + tracker.LogProgress())
	if cfg.MetricsPath != "" {
		if err := tracker.WriteToFile(cfg.MetricsPath, terminationReason); err != nil {
			logrus.Errorf("Failed to write metrics: %v", err)
		} else {
			logrus.Infof("Metrics written to %s", cfg.MetricsPath)
		}
	}

	logrus.Infof("Harvest finished (%s). Goodbye!", terminationReason)
	return nil
}
