// Package log builds the crawler's slog loggers.
//
// Every logger returned here wraps its output handler in a SecureHandler,
// which masks credentials before they reach the log:
//   - attributes named like secrets (cookie, authorization, token, ...)
//   - values shaped like secrets (bearer tokens, JWTs, long API keys)
//   - the password of URL userinfo and sensitive URL query parameters
//
// URLs are the most common attribute in crawl logs and frequently carry
// session tokens or signed query strings, so string values that parse as
// absolute URLs are rewritten rather than dropped: the host and path stay
// readable while the secret parts are masked.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	slog.SetDefault(logger)
//
//	logger.Debug("download failed",
//		"url", "https://example.com/a?token=abc", // logged as token=***REDACTED***
//		"error", err,
//	)
package log
