package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rohmanhakim/webcrawler/internal/build"
	"github.com/rohmanhakim/webcrawler/internal/config"
	"github.com/rohmanhakim/webcrawler/internal/logbus"
	"github.com/rohmanhakim/webcrawler/internal/metadata"
	"github.com/rohmanhakim/webcrawler/internal/robots"
	"github.com/rohmanhakim/webcrawler/internal/robots/cache"
	"github.com/rohmanhakim/webcrawler/internal/session"
	"github.com/rohmanhakim/webcrawler/internal/storage"
)

var (
	cfgFile             string
	seedURL             string
	maxPages            int
	maxDepth            int
	userAgent           string
	requestTimeout      time.Duration
	followRedirects     bool
	maxRedirects        int
	respectRobotsTxt    bool
	storeRawContent     bool
	extractTextContent  bool
	spaRenderingEnabled bool
	renderBaseURL       string
	workerCount         int
	maxRetries          int
	perHostConcurrency  int
	outputDir           string
	verbose             bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "webcrawler",
	Version: build.FullVersion(),
	Short:   "A polite, resumable web crawler.",
	Long: `webcrawler is the crawl engine of a search ingestion pipeline. It
fetches pages starting from a seed URL, respects robots.txt and per-host
crawl delays, renders JavaScript-heavy single-page applications through a
headless side-service, and stores parsed content for a downstream indexer.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if seedURL == "" {
			cmd.Usage()
			return fmt.Errorf("--seed-url is required")
		}

		cfg, err := InitConfigWithError()
		if err != nil {
			return err
		}

		return runCrawl(cmd, cfg)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "config file path (e.g., /home/myuser/config.json)")
	rootCmd.PersistentFlags().StringVar(&seedURL, "seed-url", "", "starting URL for the crawl")
	rootCmd.PersistentFlags().IntVar(&maxPages, "max-pages", 0, "maximum number of results per session")
	rootCmd.PersistentFlags().IntVar(&maxDepth, "max-depth", 0, "maximum link depth from the seed URL")
	rootCmd.PersistentFlags().StringVar(&userAgent, "user-agent", "", "user agent for HTTP requests and robots matching")
	rootCmd.PersistentFlags().DurationVar(&requestTimeout, "timeout", 0, "per-fetch timeout")
	rootCmd.PersistentFlags().BoolVar(&followRedirects, "follow-redirects", true, "follow HTTP 3xx responses")
	rootCmd.PersistentFlags().IntVar(&maxRedirects, "max-redirects", 0, "redirect hop budget per fetch")
	rootCmd.PersistentFlags().BoolVar(&respectRobotsTxt, "respect-robots", true, "consult robots.txt before fetching")
	rootCmd.PersistentFlags().BoolVar(&storeRawContent, "store-raw", false, "keep raw page bytes on results")
	rootCmd.PersistentFlags().BoolVar(&extractTextContent, "extract-text", true, "extract visible text from pages")
	rootCmd.PersistentFlags().BoolVar(&spaRenderingEnabled, "spa-rendering", false, "render SPA shells through the headless side-service")
	rootCmd.PersistentFlags().StringVar(&renderBaseURL, "render-url", "", "base URL of the headless render service")
	rootCmd.PersistentFlags().IntVar(&workerCount, "workers", 0, "crawl workers per session")
	rootCmd.PersistentFlags().IntVar(&maxRetries, "max-retries", 0, "retry budget per URL")
	rootCmd.PersistentFlags().IntVar(&perHostConcurrency, "per-host-concurrency", 0, "concurrent in-flight URLs per host")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output-dir", "", "root output directory for stored content")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "stream debug-level crawl events")
}

// runCrawl wires the process services, runs one session to completion,
// and prints a summary.
func runCrawl(cmd *cobra.Command, cfg config.Config) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	bus := logbus.NewBus(logger)
	defer bus.Close()

	recorder := metadataRecorder(bus)
	robotsFetcher := robots.NewFetcher(cfg.UserAgent(), cache.NewMemoryCache())
	policy := robots.NewCachedPolicy(recorder, robotsFetcher)

	sink := storage.NewLocalMarkdownSink(cfg.OutputDir(), recorder)

	manager := session.NewSessionManager(bus, policy, sink)
	defer manager.Close()

	sessionID, err := manager.Start(seedURL, cfg, false)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "started session %s\n", sessionID)

	sub := bus.Subscribe(logbus.SessionTopic(sessionID))
	defer bus.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range sub.Events() {
			if event.Level == logbus.LevelDebug && !verbose {
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s %s\n", event.Timestamp, event.Level, event.Message)
		}
	}()

	for manager.Status(sessionID).Status != session.StatusCompleted {
		time.Sleep(500 * time.Millisecond)
	}

	bus.Unsubscribe(sub)
	<-done

	printSummary(cmd, manager, sessionID)
	return nil
}

func printSummary(cmd *cobra.Command, manager *session.SessionManager, sessionID string) {
	results := manager.Results(sessionID)

	var parsed, failed, skipped int
	for _, r := range results {
		switch r.CrawlStatus {
		case session.StatusParsed:
			parsed++
		case session.StatusFailed:
			failed++
		case session.StatusSkipped:
			skipped++
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "session %s finished: %d pages parsed, %d failed, %d skipped\n",
		sessionID, parsed, failed, skipped)
}

// metadataRecorder builds the process-level recorder (no session tag).
func metadataRecorder(bus *logbus.Bus) *metadata.LogRecorder {
	recorder := metadata.NewLogRecorder(bus, "")
	return &recorder
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	zapCfg := zap.NewProductionConfig()
	zapCfg.OutputPaths = []string{"stderr"}
	return zapCfg.Build()
}

// InitConfig builds the session configuration from flags or the config
// file. It exits on invalid configuration.
func InitConfig() config.Config {
	cfg, err := InitConfigWithError()
	if err != nil {
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}
	return cfg
}

// InitConfigWithError builds the session configuration, returning any
// errors. This makes it easier to test error cases.
func InitConfigWithError() (config.Config, error) {
	if cfgFile != "" {
		cfg, err := config.WithConfigFile(cfgFile)
		if err != nil {
			return cfg, fmt.Errorf("error initializing config from file: %w", err)
		}
		return cfg, nil
	}

	configBuilder := config.WithDefault()

	if maxPages > 0 {
		configBuilder = configBuilder.WithMaxPages(maxPages)
	}
	if maxDepth > 0 {
		configBuilder = configBuilder.WithMaxDepth(maxDepth)
	}
	if userAgent != "" {
		configBuilder = configBuilder.WithUserAgent(userAgent)
	}
	if requestTimeout > 0 {
		configBuilder = configBuilder.WithRequestTimeout(requestTimeout)
	}
	configBuilder = configBuilder.WithFollowRedirects(followRedirects)
	if maxRedirects > 0 {
		configBuilder = configBuilder.WithMaxRedirects(maxRedirects)
	}
	configBuilder = configBuilder.WithRespectRobotsTxt(respectRobotsTxt)
	configBuilder = configBuilder.WithStoreRawContent(storeRawContent)
	configBuilder = configBuilder.WithExtractTextContent(extractTextContent)
	if spaRenderingEnabled {
		configBuilder = configBuilder.WithSpaRendering(true, renderBaseURL)
	}
	if workerCount > 0 {
		configBuilder = configBuilder.WithWorkerCount(workerCount)
	}
	if maxRetries > 0 {
		configBuilder = configBuilder.WithMaxRetries(maxRetries)
	}
	if perHostConcurrency > 0 {
		configBuilder = configBuilder.WithPerHostMaxConcurrency(perHostConcurrency)
	}
	if outputDir != "" {
		configBuilder = configBuilder.WithOutputDir(outputDir)
	}

	return configBuilder.Build()
}

// ResetFlags restores every flag global to its registered default between
// tests.
func ResetFlags() {
	cfgFile = ""
	seedURL = ""
	maxPages = 0
	maxDepth = 0
	userAgent = ""
	requestTimeout = 0
	followRedirects = true
	maxRedirects = 0
	respectRobotsTxt = true
	storeRawContent = false
	extractTextContent = true
	spaRenderingEnabled = false
	renderBaseURL = ""
	workerCount = 0
	maxRetries = 0
	perHostConcurrency = 0
	outputDir = ""
	verbose = false
}

// Test helper functions to set flag values from tests
func SetConfigFileForTest(path string) {
	cfgFile = path
}

func SetSeedURLForTest(url string) {
	seedURL = url
}

func SetMaxPagesForTest(pages int) {
	maxPages = pages
}

func SetMaxDepthForTest(depth int) {
	maxDepth = depth
}

func SetUserAgentForTest(agent string) {
	userAgent = agent
}

func SetWorkerCountForTest(count int) {
	workerCount = count
}

func SetOutputDirForTest(dir string) {
	outputDir = dir
}
