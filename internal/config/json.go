package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/MSU-Students/q-attendance/internal/flagx"
	"github.com/MSU-Students/q-attendance/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "3s" or as integer nanoseconds. After parsing, values
// are copied into the runtime Config (which uses time.Duration).
type JsonConfig struct {
	ProjectID           string         `json:"project_id"`
	CacheDSN            string         `json:"cache_dsn"`
	ProbeURL            string         `json:"probe_url"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	UseMemoryRemote     bool           `json:"use_memory_remote"`
}

// parseJson overlays Config with values loaded from a JSON file. The file
// path comes from the -c or -config flag via flagx.JsonConfigFlags; with no
// flag set, no JSON is loaded. Read or unmarshal errors panic.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	cfg.ProjectID = jc.ProjectID
	cfg.CacheDSN = jc.CacheDSN
	cfg.ProbeURL = jc.ProbeURL
	cfg.OnlineCheckInterval = time.Duration(jc.OnlineCheckInterval.Duration)
	cfg.UseMemoryRemote = jc.UseMemoryRemote
}
