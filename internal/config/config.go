package config

import "time"

// Backends accepted by Config.Backend.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config holds runtime settings for the kopfkino CLI.
type Config struct {
	// Backend selects the remote collection store: memory, postgres or redis.
	Backend     string
	DatabaseDSN string
	RedisURL    string
	// Tenant is the authenticated user all collections are keyed by.
	Tenant string

	// AutosaveDelay is the quiet period after the last edit before a draft
	// is committed.
	AutosaveDelay time.Duration
	// SavedDisplay is how long the "saved" status stays visible.
	SavedDisplay time.Duration

	LogLevel string
	// StateDir holds local client state such as the active project.
	StateDir string
	// AssumeYes confirms destructive actions without prompting.
	AssumeYes bool
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.Backend = BackendMemory
	c.DatabaseDSN = ""
	c.RedisURL = "redis://127.0.0.1:6379/0"
	c.Tenant = "local"
	c.AutosaveDelay = time.Second
	c.SavedDisplay = 2 * time.Second
	c.LogLevel = "info"
	c.StateDir = ".kopfkino"
	c.AssumeYes = false
}

// LoadConfig builds a Config from defaults, then the JSON file (if any),
// then command-line flags. Later sources take precedence.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
