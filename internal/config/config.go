package config

import "time"

// Config holds runtime settings for the attendance sync client.
//
// Fields:
//   - ProjectID: Firestore project backing the remote store.
//   - CacheDSN: SQLite DSN for the local cache.
//   - ProbeURL: endpoint probed to detect connectivity.
//   - OnlineCheckInterval: how often the client probes reachability.
//   - UseMemoryRemote: replace Firestore with the in-memory store (local runs).
//
// Units: OnlineCheckInterval is a time.Duration (e.g., 3*time.Second).
type Config struct {
	ProjectID           string
	CacheDSN            string
	ProbeURL            string
	OnlineCheckInterval time.Duration
	UseMemoryRemote     bool
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ProjectID = "q-attendance"
	c.CacheDSN = "attendance.db"
	c.ProbeURL = "https://firestore.googleapis.com/"
	c.OnlineCheckInterval = 3 * time.Second
	c.UseMemoryRemote = false
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
