// Package config holds the crawler's run configuration: defaults, validation,
// XDG directories and the optional .webcrawler YAML file with per-host
// settings.
package config
