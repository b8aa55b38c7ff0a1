package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/nao1215/webcrawler/internal/crawler"
	"github.com/nao1215/webcrawler/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "webcrawler"

// Collector records crawl events into Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	downloadsInFlight *prometheus.GaugeVec
	downloads         *prometheus.CounterVec
	linksExtracted    prometheus.Counter
	layers            prometheus.Counter
	layerDiscovered   prometheus.Histogram
	crawls            *prometheus.CounterVec
	crawlDuration     prometheus.Histogram
}

var _ crawler.Observer = (*Collector)(nil)

// NewCollector creates a Collector with its own registry. The registry also
// carries the Go runtime and process collectors.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		downloadsInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "downloads_in_flight",
				Help:      "Number of downloads currently running, per host",
			},
			[]string{"host"},
		),
		downloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "downloads_total",
				Help:      "Total number of finished downloads",
			},
			[]string{"result"},
		),
		linksExtracted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "links_extracted_total",
				Help:      "Total number of links extracted from documents",
			},
		),
		layers: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "layers_finished_total",
				Help:      "Total number of depth levels completed",
			},
		),
		layerDiscovered: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "layer_discovered_urls",
				Help:      "URLs queued for the next depth level when a level completes",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
		crawls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "crawls_total",
				Help:      "Total number of crawls, by final status",
			},
			[]string{"status"},
		),
		crawlDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "crawl_duration_seconds",
				Help:      "Time taken by one crawl",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.downloadsInFlight,
		c.downloads,
		c.linksExtracted,
		c.layers,
		c.layerDiscovered,
		c.crawls,
		c.crawlDuration,
	)
	return c
}

// DownloadStarted implements crawler.Observer.
func (c *Collector) DownloadStarted(host string) {
	c.downloadsInFlight.WithLabelValues(host).Inc()
}

// DownloadFinished implements crawler.Observer.
func (c *Collector) DownloadFinished(host string, err error) {
	c.downloadsInFlight.WithLabelValues(host).Dec()
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.downloads.WithLabelValues(result).Inc()
}

// LinksExtracted implements crawler.Observer.
func (c *Collector) LinksExtracted(n int) {
	c.linksExtracted.Add(float64(n))
}

// LayerFinished implements crawler.Observer.
func (c *Collector) LayerFinished(_ int, discovered int) {
	c.layers.Inc()
	c.layerDiscovered.Observe(float64(discovered))
}

// CrawlFinished records the outcome of one crawl.
func (c *Collector) CrawlFinished(report *model.CrawlReport) {
	c.crawls.WithLabelValues(string(report.Status)).Inc()
	c.crawlDuration.Observe(report.Duration().Seconds())
}

// Handler returns the HTTP handler exposing the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Serve exposes /metrics on addr until ctx is done. It returns the bound
// address once the listener is up; serving continues in the background.
func (c *Collector) Serve(ctx context.Context, addr string, logger *slog.Logger) (net.Addr, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx) //nolint:contextcheck // ctx is already done
	}()

	go func() {
		logger.Info("metrics server started", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return ln.Addr(), nil
}
