package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/databazaar/internal/flagx"
)

// GlobalFlags are the flags parseFlags owns. Command flags must not reuse them.
var GlobalFlags = []string{"-a", "-t", "-i"}

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the API server (default from Config)
//	-t string   bearer token (default from Config)
//	-i int      request timeout in seconds (default from Config)
//
// Only the flags above are looked at; see flagx.FilterArgs.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], GlobalFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the API server")
	fs.StringVar(&cfg.Token, "t", cfg.Token, "bearer token")
	requestTimeout := fs.Int("i", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.RequestTimeout = time.Duration(*requestTimeout) * time.Second
}
