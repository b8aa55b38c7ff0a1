package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "webcrawler"

	// DefaultDepth downloads the start page and the pages it links to.
	DefaultDepth = 2

	// DefaultDownloaders is the size of the download pool.
	DefaultDownloaders = 16

	// DefaultExtractors is the size of the link extraction pool. Extraction
	// is CPU bound and much faster than a download, so fewer workers are
	// needed.
	DefaultExtractors = 8

	// DefaultPerHost is the number of concurrent downloads allowed against
	// one host.
	DefaultPerHost = 4

	// DefaultTimeout bounds a single HTTP request.
	DefaultTimeout = 30 * time.Second

	// DefaultBatchSize is how many start URLs are crawled at the same time.
	DefaultBatchSize = 4

	// DefaultMaxBodySize limits the response body read per page.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// DefaultUserAgent identifies the crawler in HTTP requests.
	DefaultUserAgent = "webcrawler/1.0 (+https://github.com/nao1215/webcrawler)"

	// DefaultTorProxyAddress is the SOCKS port of a system Tor daemon.
	DefaultTorProxyAddress = "127.0.0.1:9050"

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute
)

// Config holds all options of one crawl run. It is populated from CLI flags
// and the configuration file and passed down explicitly.
type Config struct {
	// Seeds are the start URLs.
	Seeds []string

	// Depth is the crawl depth; 1 downloads only the start URL.
	Depth int

	// Downloaders is the download pool size.
	Downloaders int

	// Extractors is the link extraction pool size.
	Extractors int

	// PerHost is the maximum number of concurrent downloads per host.
	PerHost int

	// AllowedHosts restricts the crawl to these hosts. Empty means
	// unrestricted.
	AllowedHosts []string

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration

	// BatchSize is how many seeds are crawled concurrently.
	BatchSize int

	// UserAgent is the User-Agent header sent with every request.
	UserAgent string

	// Cookie is sent with every request unless a host setting overrides it.
	Cookie string

	// Headers are added to every request; host settings win on conflicts.
	Headers map[string]string

	// MaxBodySize is the maximum response body size in bytes.
	// Zero means DefaultMaxBodySize.
	MaxBodySize int64

	// Verbose enables debug logging.
	Verbose bool

	// LogJSON writes log records as JSON instead of text.
	LogJSON bool

	// JSONReport selects the JSON report. Mutually exclusive with
	// MarkdownReport.
	JSONReport bool

	// MarkdownReport selects the Markdown report.
	MarkdownReport bool

	// ReportFile writes the report to this path instead of stdout.
	ReportFile string

	// TeeReport also prints the text report to stdout when ReportFile is
	// set.
	TeeReport bool

	// TorProxyAddress routes traffic through an external Tor SOCKS5 proxy.
	// Empty means direct connections unless UseEmbeddedTor is set.
	TorProxyAddress string

	// UseEmbeddedTor starts a private Tor daemon for the run.
	UseEmbeddedTor bool

	// TorStartupTimeout bounds the embedded daemon's bootstrap.
	TorStartupTimeout time.Duration

	// MetricsAddr serves Prometheus metrics on this address when set.
	MetricsAddr string

	// DBDir is the directory of the crawl history database.
	DBDir string

	// SaveToDB stores finished crawl reports in the history database.
	SaveToDB bool

	// ConfigFilePath is an explicit configuration file path. When empty the
	// file is searched for in the working and home directories.
	ConfigFilePath string

	// HostConfigs holds the per-host settings of the configuration file.
	HostConfigs *File
}

// NewConfig returns a Config with every default applied.
func NewConfig() *Config {
	return &Config{
		Depth:             DefaultDepth,
		Downloaders:       DefaultDownloaders,
		Extractors:        DefaultExtractors,
		PerHost:           DefaultPerHost,
		Timeout:           DefaultTimeout,
		BatchSize:         DefaultBatchSize,
		UserAgent:         DefaultUserAgent,
		MaxBodySize:       DefaultMaxBodySize,
		TorStartupTimeout: DefaultTorStartupTimeout,
		DBDir:             XDGDataDir(),
		SaveToDB:          true,
	}
}

// XDGDataDir returns the XDG data directory, where the history database
// lives. On Linux: ~/.local/share/webcrawler
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory.
// On Linux: ~/.config/webcrawler
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if len(c.Seeds) == 0 {
		return ErrNoSeed
	}
	if c.Depth < 1 {
		return ErrInvalidDepth
	}
	if c.Downloaders <= 0 || c.Extractors <= 0 || c.PerHost <= 0 {
		return ErrInvalidPoolSize
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.UseEmbeddedTor && c.TorProxyAddress != "" {
		return ErrConflictingTorModes
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	return nil
}

// HostConfig returns the file settings for host merged over the defaults.
// Without a configuration file it returns the zero HostConfig.
func (c *Config) HostConfig(host string) HostConfig {
	if c.HostConfigs == nil {
		return HostConfig{}
	}
	return c.HostConfigs.GetHostConfig(host)
}
