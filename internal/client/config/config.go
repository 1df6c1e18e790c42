package config

import "time"

// Config holds runtime settings for the DataBazaar CLI.
//
// Fields:
//   - ServerURL: base URL of the HTTP API, e.g. http://127.0.0.1:8080.
//   - Token: bearer JWT identifying the caller; needed for uploads,
//     downloads and changes.
//   - RequestTimeout: deadline for one API call, uploads included.
type Config struct {
	ServerURL      string
	Token          string
	RequestTimeout time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.Token = ""
	c.RequestTimeout = 5 * time.Minute
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
