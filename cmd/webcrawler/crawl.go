package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nao1215/webcrawler/internal/config"
	"github.com/nao1215/webcrawler/internal/crawler"
	"github.com/nao1215/webcrawler/internal/database"
	"github.com/nao1215/webcrawler/internal/fetcher"
	"github.com/nao1215/webcrawler/internal/log"
	"github.com/nao1215/webcrawler/internal/metrics"
	"github.com/nao1215/webcrawler/internal/model"
	"github.com/nao1215/webcrawler/internal/pipeline"
	"github.com/nao1215/webcrawler/internal/report"
	"github.com/nao1215/webcrawler/internal/tor"
	"github.com/nao1215/webcrawler/internal/urlutil"
	"github.com/spf13/cobra"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl URL...",
		Short: "Crawl web sites breadth-first and report the result",
		Long: `Crawl downloads every start URL and the pages reachable from it, layer by
layer, up to the given depth. Depth 1 downloads only the start URL.

Each start URL is crawled on its own; up to --batch of them run at the same
time and share the download and extraction pools. The report lists every
downloaded page and every URL that failed with its reason.

Finished reports are stored in the history database unless --no-save is given.

Examples:
  # Crawl a site two layers deep
  webcrawler crawl https://example.com

  # Stay on two hosts and go deeper
  webcrawler crawl -d 4 -H example.com -H docs.example.com https://example.com

  # Crawl an onion service through a running Tor proxy
  webcrawler crawl -e 127.0.0.1:9050 http://exampleonion.onion

  # Write a Markdown report to a file
  webcrawler crawl -m -o report.md https://example.com

  # Expose Prometheus metrics while crawling
  webcrawler crawl --metrics-addr 127.0.0.1:9090 https://example.com`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCrawlCmd,
	}

	// Crawl behavior flags
	cmd.Flags().IntP("depth", "d", config.DefaultDepth,
		"Crawl depth (1 downloads only the start URL)")
	cmd.Flags().Int("downloaders", config.DefaultDownloaders,
		"Number of concurrent downloads")
	cmd.Flags().Int("extractors", config.DefaultExtractors,
		"Number of concurrent link extractions")
	cmd.Flags().Int("per-host", config.DefaultPerHost,
		"Maximum concurrent downloads against one host")
	cmd.Flags().StringSliceP("allowed-host", "H", nil,
		"Only visit these hosts (repeatable; default: any host)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of start URLs crawled concurrently")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum response body size in bytes")
	cmd.Flags().String("cookie", "",
		"Cookie header sent with every request (host settings in the config file win)")
	cmd.Flags().StringArray("header", nil,
		`Extra request header as "Name: value" (repeatable)`)

	// Tor flags
	cmd.Flags().StringP("external-tor", "e", "",
		"Route traffic through the Tor SOCKS proxy at this address (e.g., "+config.DefaultTorProxyAddress+")")
	cmd.Flags().Bool("tor", false,
		"Start an embedded Tor daemon and route traffic through it")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .webcrawler in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Bool("tee", false,
		"Also print the text report to stdout when --output is set")

	// History and metrics
	cmd.Flags().Bool("no-save", false,
		"Do not store reports in the history database")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")
	cmd.Flags().String("metrics-addr", "",
		"Serve Prometheus metrics on this address while crawling (e.g., 127.0.0.1:9090)")
	cmd.Flags().Bool("log-json", false,
		"Write logs to stderr as JSON")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := log.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose)
	if cfg.LogJSON {
		logger = log.NewSecureJSONLogger(cmd.ErrOrStderr(), cfg.Verbose)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cmd, cfg, logger)
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.Depth, err = flags.GetInt("depth"); err != nil {
		return nil, err
	}
	if cfg.Downloaders, err = flags.GetInt("downloaders"); err != nil {
		return nil, err
	}
	if cfg.Extractors, err = flags.GetInt("extractors"); err != nil {
		return nil, err
	}
	if cfg.PerHost, err = flags.GetInt("per-host"); err != nil {
		return nil, err
	}
	if cfg.AllowedHosts, err = flags.GetStringSlice("allowed-host"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}
	if cfg.TorProxyAddress, err = flags.GetString("external-tor"); err != nil {
		return nil, err
	}
	if cfg.UseEmbeddedTor, err = flags.GetBool("tor"); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.TeeReport, err = flags.GetBool("tee"); err != nil {
		return nil, err
	}
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	if cfg.MetricsAddr, err = flags.GetString("metrics-addr"); err != nil {
		return nil, err
	}
	if cfg.LogJSON, err = flags.GetBool("log-json"); err != nil {
		return nil, err
	}
	if cfg.Cookie, err = flags.GetString("cookie"); err != nil {
		return nil, err
	}

	rawHeaders, err := flags.GetStringArray("header")
	if err != nil {
		return nil, err
	}
	if cfg.Headers, err = parseHeaders(rawHeaders); err != nil {
		return nil, err
	}

	noSave, err := flags.GetBool("no-save")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noSave

	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}

	// An explicitly given file must exist; the search locations are
	// optional.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cfg.HostConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	}

	cfg.Verbose = getVerboseFlag(cmd)
	cfg.Seeds = normalizeSeeds(args)

	return cfg, nil
}

// parseHeaders turns "Name: value" flag values into a header map.
func parseHeaders(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q: expected \"Name: value\"", h)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}

// normalizeSeeds adds http:// to arguments given without a scheme and
// brings them into the form the history database is keyed by.
func normalizeSeeds(args []string) []string {
	seeds := make([]string, 0, len(args))
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		if !strings.Contains(arg, "://") {
			arg = "http://" + arg
		}
		seeds = append(seeds, urlutil.Normalize(arg))
	}
	return seeds
}

// crawlRequests builds one request per seed. Depth and allowed hosts come
// from the seed host's file settings unless the flags set them.
func crawlRequests(cmd *cobra.Command, cfg *config.Config) []model.CrawlRequest {
	depthFromFlag := cmd.Flags().Changed("depth")

	requests := make([]model.CrawlRequest, 0, len(cfg.Seeds))
	for _, seed := range cfg.Seeds {
		req := model.CrawlRequest{
			StartURL:     seed,
			Depth:        cfg.Depth,
			AllowedHosts: cfg.AllowedHosts,
		}

		// A malformed seed keeps the global settings; the crawl reports it.
		if host, err := urlutil.HostOf(seed); err == nil {
			hc := cfg.HostConfig(host)
			if hc.Depth > 0 && !depthFromFlag {
				req.Depth = hc.Depth
			}
			if len(req.AllowedHosts) == 0 {
				req.AllowedHosts = hc.AllowedHosts
			}
		}
		requests = append(requests, req)
	}
	return requests
}

// runCrawl sets up transport, crawler and history, crawls every seed and
// writes the reports.
func runCrawl(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error {
	progress := cmd.ErrOrStderr()

	logger.Info("starting crawl",
		"seeds", cfg.Seeds,
		"depth", cfg.Depth,
		"batchSize", cfg.BatchSize,
		"saveToDB", cfg.SaveToDB,
	)

	client, cleanup, err := newHTTPClient(ctx, cfg, progress, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	downloader, err := fetcher.NewHTTPDownloader(client,
		fetcher.WithUserAgent(cfg.UserAgent),
		fetcher.WithMaxBodySize(cfg.MaxBodySize),
		fetcher.WithHeaders(cfg.Headers),
		fetcher.WithCookie(cfg.Cookie),
		fetcher.WithHostSettings(func(host string) (map[string]string, string) {
			hc := cfg.HostConfig(host)
			return hc.Headers, hc.Cookie
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create downloader: %w", err)
	}

	crawlerOpts := []crawler.Option{
		crawler.WithDownloaders(cfg.Downloaders),
		crawler.WithExtractors(cfg.Extractors),
		crawler.WithPerHost(cfg.PerHost),
		crawler.WithLogger(logger),
	}

	steps := []pipeline.Step{pipeline.NewLogStep(logger)}

	if cfg.MetricsAddr != "" {
		collector := metrics.NewCollector()
		addr, err := collector.Serve(ctx, cfg.MetricsAddr, logger)
		if err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		fmt.Fprintf(progress, "Serving metrics on http://%s/metrics\n", addr)

		crawlerOpts = append(crawlerOpts, crawler.WithObserver(collector))
		steps = append(steps, pipeline.NewMetricsStep(collector))
	}

	if cfg.SaveToDB {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "path", db.Path())

		steps = append(steps, pipeline.NewSaveStep(db, logger))
	}

	wc, err := crawler.New(downloader, crawlerOpts...)
	if err != nil {
		return fmt.Errorf("failed to create crawler: %w", err)
	}
	defer wc.Close()

	p := pipeline.New(pipeline.WithLogger(logger), pipeline.WithContinueOnError(true))
	p.AddSteps(steps...)
	logger.Debug("report pipeline ready", "steps", p.StepNames())

	bp := pipeline.NewBatchProcessor(wc,
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
		pipeline.WithPipeline(p),
	)

	requests := crawlRequests(cmd, cfg)
	reports := make([]*model.CrawlReport, len(requests))
	startTime := time.Now()

	var mu sync.Mutex
	done := 0
	batchErr := bp.ProcessBatchWithCallback(ctx, requests, func(r *model.CrawlReport, index int) {
		reports[index] = r

		mu.Lock()
		defer mu.Unlock()
		done++
		s := r.Summary()
		fmt.Fprintf(progress, "[%d/%d] %s: %s, %d page(s), %d failure(s)\n",
			done, len(requests), r.StartURL, r.Status, s.Downloaded, s.Failed)
	})

	fmt.Fprintf(progress, "Crawl finished in %s\n\n", time.Since(startTime).Round(time.Millisecond))

	if err := outputReports(cmd.OutOrStdout(), cfg, reports); err != nil {
		return err
	}

	if batchErr != nil {
		return fmt.Errorf("crawl interrupted: %w", batchErr)
	}
	return nil
}

// newHTTPClient returns the client every download goes through and a
// cleanup function releasing what was started for it.
func newHTTPClient(ctx context.Context, cfg *config.Config, progress io.Writer, logger *slog.Logger) (*http.Client, func(), error) {
	nop := func() {}

	switch {
	case cfg.TorProxyAddress != "":
		proxy, err := tor.NewProxy(cfg.TorProxyAddress)
		if err != nil {
			return nil, nop, fmt.Errorf("failed to create Tor proxy: %w", err)
		}
		if err := proxy.Probe(ctx); err != nil {
			return nil, nop, fmt.Errorf("tor proxy check failed: %w (make sure Tor is running at %s)",
				err, cfg.TorProxyAddress)
		}
		logger.Info("Tor proxy connection verified", "address", proxy.Address())
		return proxy.HTTPClient(tor.WithTimeout(cfg.Timeout)), nop, nil

	case cfg.UseEmbeddedTor:
		return startEmbeddedTor(ctx, cfg, progress, logger)

	default:
		return &http.Client{Timeout: cfg.Timeout}, nop, nil
	}
}

// startEmbeddedTor starts a private Tor daemon for the run.
func startEmbeddedTor(ctx context.Context, cfg *config.Config, progress io.Writer, logger *slog.Logger) (*http.Client, func(), error) {
	nop := func() {}

	fmt.Fprintln(progress, "Starting embedded Tor daemon...")
	fmt.Fprintf(progress, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

	daemon := tor.NewDaemon(tor.WithStartupTimeout(cfg.TorStartupTimeout))
	if err := daemon.Start(ctx); err != nil {
		return nil, nop, fmt.Errorf("failed to start embedded Tor: %w", err)
	}

	stop := func() {
		logger.Info("stopping embedded Tor daemon...")
		if err := daemon.Stop(); err != nil {
			logger.Error("failed to stop embedded Tor", "error", err)
		}
	}

	proxy, err := daemon.Proxy()
	if err != nil {
		stop()
		return nil, nop, err
	}
	if err := proxy.Probe(ctx); err != nil {
		stop()
		return nil, nop, fmt.Errorf("embedded Tor proxy check failed: %w", err)
	}

	logger.Info("embedded Tor daemon started", "socksAddr", daemon.SocksAddr())
	fmt.Fprintf(progress, "SOCKS proxy: %s\n\n", daemon.SocksAddr())

	return proxy.HTTPClient(tor.WithTimeout(cfg.Timeout)), stop, nil
}

// outputReports writes the reports in the requested format to the report
// file or, without one, to stdout.
func outputReports(stdout io.Writer, cfg *config.Config, reports []*model.CrawlReport) error {
	w := newReportWriter(stdout, cfg.JSONReport, cfg.MarkdownReport, cfg.Verbose)
	if cfg.ReportFile != "" {
		f, err := createReportFile(cfg.ReportFile)
		if err != nil {
			return err
		}
		defer f.Close()

		w = newReportWriter(f, cfg.JSONReport, cfg.MarkdownReport, cfg.Verbose)
		if cfg.TeeReport {
			w = report.NewMultiWriter(w, report.NewSimpleWriter(stdout))
		}
	}

	var err error
	if len(reports) == 1 {
		_, err = w.Write(reports[0])
	} else {
		_, err = w.WriteAll(reports)
	}
	if err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// newReportWriter picks the report format; the human-readable report is
// the default.
func newReportWriter(output io.Writer, jsonReport, markdownReport, verbose bool) report.Writer {
	switch {
	case jsonReport:
		return report.NewJSONWriter(output, report.WithPrettyPrint())
	case markdownReport:
		return report.NewMarkdownWriter(output)
	default:
		return report.NewSimpleWriter(output, report.WithVerbose(verbose))
	}
}

// createReportFile creates or truncates path and its parent directories.
func createReportFile(path string) (*os.File, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Reports list every visited URL, which may include session tokens.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // User-provided output path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}
