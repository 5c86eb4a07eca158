package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/kopfkino/internal/flagx"
	"github.com/dmitrijs2005/kopfkino/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Zero values leave the
// corresponding Config field unchanged.
type JsonConfig struct {
	Backend       string          `json:"backend"`
	DatabaseDSN   string          `json:"database_dsn"`
	RedisURL      string          `json:"redis_url"`
	Tenant        string          `json:"tenant"`
	AutosaveDelay *timex.Duration `json:"autosave_delay"`
	SavedDisplay  *timex.Duration `json:"saved_display"`
	LogLevel      string          `json:"log_level"`
	StateDir      string          `json:"state_dir"`
	AssumeYes     *bool           `json:"assume_yes"`
}

// parseJson overlays cfg with the file named by -c/-config. It panics on
// read or decode errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.ConfigFileFlag()
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

	setString(&cfg.Backend, jc.Backend)
	setString(&cfg.DatabaseDSN, jc.DatabaseDSN)
	setString(&cfg.RedisURL, jc.RedisURL)
	setString(&cfg.Tenant, jc.Tenant)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.StateDir, jc.StateDir)
	if jc.AutosaveDelay != nil {
		cfg.AutosaveDelay = jc.AutosaveDelay.Duration
	}
	if jc.SavedDisplay != nil {
		cfg.SavedDisplay = jc.SavedDisplay.Duration
	}
	if jc.AssumeYes != nil {
		cfg.AssumeYes = *jc.AssumeYes
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
