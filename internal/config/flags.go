package config

import (
	"flag"
	"os"
	"time"

	"github.com/MSU-Students/q-attendance/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-p string   Firestore project id (default from Config)
//	-d string   SQLite DSN of the local cache (default from Config)
//	-u string   connectivity probe URL (default from Config)
//	-i int      online check interval in seconds (default from Config)
//	-m          use the in-memory remote store instead of Firestore
//
// Note: The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-p", "-d", "-u", "-i", "-m"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ProjectID, "p", cfg.ProjectID, "Firestore project id")
	fs.StringVar(&cfg.CacheDSN, "d", cfg.CacheDSN, "SQLite DSN of the local cache")
	fs.StringVar(&cfg.ProbeURL, "u", cfg.ProbeURL, "connectivity probe URL")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.BoolVar(&cfg.UseMemoryRemote, "m", cfg.UseMemoryRemote, "use the in-memory remote store")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}
