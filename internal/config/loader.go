package config

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".webcrawler"

// HostConfig holds settings applied when crawling from one start host.
type HostConfig struct {
	// Cookie is sent with every request, "name=value; name2=value2".
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are added to every request.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Depth overrides the crawl depth when non-zero.
	Depth int `yaml:"depth,omitempty"`

	// AllowedHosts restricts the crawl to these hosts when non-empty.
	AllowedHosts []string `yaml:"allowedHosts,omitempty"`
}

// File is the structure of the .webcrawler configuration file.
type File struct {
	// Defaults apply to every host unless overridden in Hosts.
	Defaults HostConfig `yaml:"defaults,omitempty"`

	// Hosts maps a lowercased hostname, without port, to its settings.
	Hosts map[string]HostConfig `yaml:"hosts,omitempty"`
}

// GetHostConfig returns the settings for host merged over the defaults.
// Headers merge key by key; the other fields are replaced when set.
func (f *File) GetHostConfig(host string) HostConfig {
	result := f.Defaults
	result.Headers = maps.Clone(f.Defaults.Headers)

	hc, ok := f.Hosts[strings.ToLower(host)]
	if !ok {
		return result
	}

	if hc.Cookie != "" {
		result.Cookie = hc.Cookie
	}
	if hc.Depth != 0 {
		result.Depth = hc.Depth
	}
	if len(hc.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(hc.Headers))
		}
		maps.Copy(result.Headers, hc.Headers)
	}
	if len(hc.AllowedHosts) > 0 {
		result.AllowedHosts = hc.AllowedHosts
	}
	return result
}

// LoadConfigFile reads a configuration file. A missing file yields
// ErrConfigNotFound; callers decide whether that matters.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	hosts := make(map[string]HostConfig, len(f.Hosts))
	for h, hc := range f.Hosts {
		hosts[strings.ToLower(h)] = hc
	}
	f.Hosts = hosts

	return &f, nil
}

// FindConfigFile returns the configuration file to use, or "" if none:
// configPath when it exists, else .webcrawler in the working directory, else
// .webcrawler in the home directory.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		p := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, DefaultConfigFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
