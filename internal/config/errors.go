package config

import "errors"

// Validation errors returned by Config.Validate. Callers match them with
// errors.Is.
var (
	// ErrNoSeed is returned when no start URL is given.
	ErrNoSeed = errors.New("no start URL specified")

	// ErrInvalidDepth is returned when the crawl depth is below 1.
	ErrInvalidDepth = errors.New("invalid depth: must be at least 1")

	// ErrInvalidPoolSize is returned when a pool size or the per-host cap is
	// not positive.
	ErrInvalidPoolSize = errors.New("invalid pool size: must be positive")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrConflictingReportFormats is returned when both --json and
	// --markdown are set.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrConflictingTorModes is returned when both an external Tor proxy
	// and the embedded Tor daemon are requested.
	ErrConflictingTorModes = errors.New("conflicting Tor modes: --external-tor and --tor cannot be used together")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrConfigNotFound is returned when the configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")
)
