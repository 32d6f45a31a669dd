package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// envLayer mirrors Config for environment variables. Pointer fields stay
// nil when the variable is unset so only present values override.
type envLayer struct {
	CMSURL          *string        `env:"LMSCACHE_CMS_URL"`
	StateDir        *string        `env:"LMSCACHE_STATE_DIR"`
	DatabasePath    *string        `env:"LMSCACHE_DATABASE"`
	ResetSentinel   *string        `env:"LMSCACHE_RESET_SENTINEL"`
	Format          *string        `env:"LMSCACHE_FORMAT"`
	Coalesce        *bool          `env:"LMSCACHE_COALESCE"`
	DefaultTTL      *time.Duration `env:"LMSCACHE_DEFAULT_TTL"`
	ModulesTTL      *time.Duration `env:"LMSCACHE_MODULES_TTL"`
	QuizzesTTL      *time.Duration `env:"LMSCACHE_QUIZZES_TTL"`
	JanitorInterval *time.Duration `env:"LMSCACHE_JANITOR_INTERVAL"`
}

// LoadFromEnv applies LMSCACHE_* environment variables to cfg.
func LoadFromEnv(cfg *Config) error {
	var layer envLayer
	if err := env.Parse(&layer); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	setString := func(key string, v *string, target *string) {
		if v != nil && *v != "" {
			*target = *v
			cfg.Sources[key] = string(SourceEnv)
		}
	}
	setDuration := func(key string, v *time.Duration, target *time.Duration) error {
		if v == nil {
			return nil
		}
		if *v < 0 {
			return fmt.Errorf("parse env: %s must not be negative", key)
		}
		*target = *v
		cfg.Sources[key] = string(SourceEnv)
		return nil
	}

	setString("cms_url", layer.CMSURL, &cfg.CMSURL)
	setString("state_dir", layer.StateDir, &cfg.StateDir)
	setString("database_path", layer.DatabasePath, &cfg.DatabasePath)
	setString("reset_sentinel", layer.ResetSentinel, &cfg.ResetSentinel)
	setString("format", layer.Format, &cfg.Format)
	if layer.Coalesce != nil {
		cfg.Coalesce = *layer.Coalesce
		cfg.Sources["coalesce"] = string(SourceEnv)
	}

	for _, d := range []struct {
		key    string
		v      *time.Duration
		target *time.Duration
	}{
		{"default_ttl", layer.DefaultTTL, &cfg.DefaultTTL},
		{"modules_ttl", layer.ModulesTTL, &cfg.ModulesTTL},
		{"quizzes_ttl", layer.QuizzesTTL, &cfg.QuizzesTTL},
		{"janitor_interval", layer.JanitorInterval, &cfg.JanitorInterval},
	} {
		if err := setDuration(d.key, d.v, d.target); err != nil {
			return err
		}
	}
	return nil
}
