package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/kopfkino/internal/flagx"
)

// parseFlags overlays cfg with command-line flags. Unknown arguments are
// filtered out first so other flag sets can share os.Args.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:],
		[]string{"-b", "-d", "-r", "-t", "-s", "-l", "-state"},
		"-y")

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.Backend, "b", cfg.Backend, "remote backend: memory, postgres or redis")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "PostgreSQL DSN")
	fs.StringVar(&cfg.RedisURL, "r", cfg.RedisURL, "Redis URL")
	fs.StringVar(&cfg.Tenant, "t", cfg.Tenant, "tenant (user id)")
	autosave := fs.Int("s", int(cfg.AutosaveDelay.Milliseconds()), "autosave delay (in milliseconds)")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.StateDir, "state", cfg.StateDir, "local state directory")
	fs.BoolVar(&cfg.AssumeYes, "y", cfg.AssumeYes, "confirm destructive actions")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.AutosaveDelay = time.Duration(*autosave) * time.Millisecond
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("backend %s requires a database DSN", c.Backend)
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("backend %s requires a redis URL", c.Backend)
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Tenant == "" {
		return fmt.Errorf("tenant is required")
	}
	if c.AutosaveDelay <= 0 {
		return fmt.Errorf("autosave delay must be positive, got %s", c.AutosaveDelay)
	}
	return nil
}
