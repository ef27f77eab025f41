package config

import (
	"flag"
	"os"
	"time"

	"github.com/avasiliev/kaltrack/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   base URL of the backend API
//	-d string   path to the SQLite database file
//	-s int      periodic sync interval (in minutes)
//	-i int      online check interval (in seconds)
//	-r int      max transient retries per queued mutation
//
// Only the flags listed here are parsed; the rest of os.Args belongs to the
// subcommands and is filtered out with flagx.FilterArgs.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-i", "-r"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerBaseURL, "a", cfg.ServerBaseURL, "base URL of the backend API")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "path to the SQLite database file")
	syncInterval := fs.Int("s", int(cfg.SyncInterval.Minutes()), "sync interval (in minutes)")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.IntVar(&cfg.MaxRetries, "r", cfg.MaxRetries, "max transient retries per queued mutation")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.SyncInterval = time.Duration(*syncInterval) * time.Minute
	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}
