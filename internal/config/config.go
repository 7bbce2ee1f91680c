// Package config defines the crawler's runtime configuration and binds it
// to command-line flags.
package config

import (
	"time"

	"github.com/spf13/pflag"
)

// Config holds every knob the CLI exposes.
type Config struct {
	Seeds []string

	Concurrency int
	MaxDepth    int
	MaxPageSize int64
	Timeout     time.Duration

	CookieFile    string
	LogLevel      string
	LogFile       string
	ExtractScript string
	UserAgent     string
}

// Default returns the configuration the CLI starts from before flags are
// parsed.
func Default() *Config {
	return &Config{
		Concurrency: 4,
		MaxDepth:    3,
		MaxPageSize: 10 * 1024 * 1024,
		Timeout:     30 * time.Second,
		LogLevel:    "info",
		UserAgent:   "wscan/1.0",
	}
}

// BindFlags registers c's fields on fs so a cobra command can parse them.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.IntVarP(&c.Concurrency, "concurrency", "c", c.Concurrency, "maximum number of in-flight requests")
	fs.IntVarP(&c.MaxDepth, "max-depth", "d", c.MaxDepth, "maximum link depth to follow")
	fs.Int64Var(&c.MaxPageSize, "max-page-size", c.MaxPageSize, "maximum response body size in bytes")
	fs.DurationVarP(&c.Timeout, "timeout", "t", c.Timeout, "per-request timeout")
	fs.StringVar(&c.CookieFile, "cookie-file", c.CookieFile, "optional cookies.txt-format file to load/persist")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "trace|debug|info|warn|error|fatal")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile, "optional additional log sink file path")
	fs.StringVar(&c.ExtractScript, "extract-script", c.ExtractScript, "optional extraction script path (degrades to built-in extraction)")
	fs.StringVar(&c.UserAgent, "user-agent", c.UserAgent, "User-Agent header sent with every request")
}
