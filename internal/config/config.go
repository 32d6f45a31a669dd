// Package config provides layered configuration loading.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/learnhub/lmscache/internal/hostutil"
)

// Config holds the resolved configuration.
type Config struct {
	// CMS settings
	CMSURL string `json:"cms_url"`

	// Storage settings
	StateDir      string `json:"state_dir"`
	DatabasePath  string `json:"database_path"`
	ResetSentinel string `json:"reset_sentinel"`

	// Response cache settings. Zero TTLs keep the embedded policy values.
	Coalesce        bool          `json:"coalesce"`
	DefaultTTL      time.Duration `json:"default_ttl"`
	ModulesTTL      time.Duration `json:"modules_ttl"`
	QuizzesTTL      time.Duration `json:"quizzes_ttl"`
	JanitorInterval time.Duration `json:"janitor_interval"`

	// Output settings
	Format string `json:"format"`

	// Sources tracks where each value came from (for debugging).
	Sources map[string]string `json:"-"`
}

// Source indicates where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceSystem  Source = "system"
	SourceGlobal  Source = "global"
	SourceRepo    Source = "repo"
	SourceLocal   Source = "local"
	SourceEnv     Source = "env"
	SourceFlag    Source = "flag"
)

// FlagOverrides holds command-line flag values.
type FlagOverrides struct {
	CMSURL       string
	StateDir     string
	DatabasePath string
	Format       string
}

// Default returns the default configuration.
func Default() *Config {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, _ := os.UserHomeDir()
		cacheDir = filepath.Join(home, ".cache")
	}

	return &Config{
		StateDir:        filepath.Join(cacheDir, "lmscache"),
		Format:          "auto",
		JanitorInterval: time.Minute,
		Sources:         make(map[string]string),
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence: flags > env > local > repo > global > system > defaults
func Load(overrides FlagOverrides) (*Config, error) {
	cfg := Default()

	loadFromFile(cfg, systemConfigPath(), SourceSystem)
	loadFromFile(cfg, globalConfigPath(), SourceGlobal)

	repoPath := repoConfigPath()
	if repoPath != "" {
		loadFromFile(cfg, repoPath, SourceRepo)
	}
	for _, path := range localConfigPaths(repoPath) {
		loadFromFile(cfg, path, SourceLocal)
	}

	if err := LoadFromEnv(cfg); err != nil {
		return nil, err
	}
	ApplyOverrides(cfg, overrides)

	cfg.CMSURL = hostutil.Normalize(cfg.CMSURL)
	if err := hostutil.RequireSecureURL(cfg.CMSURL); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Database returns the progress database path, defaulting into StateDir.
func (cfg *Config) Database() string {
	if cfg.DatabasePath != "" {
		return cfg.DatabasePath
	}
	return filepath.Join(cfg.StateDir, "progress.db")
}

// Sentinel returns the reset sentinel path, defaulting into StateDir.
func (cfg *Config) Sentinel() string {
	if cfg.ResetSentinel != "" {
		return cfg.ResetSentinel
	}
	return filepath.Join(cfg.StateDir, "reset.stamp")
}

func loadFromFile(cfg *Config, path string, source Source) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: Path is from trusted config locations
	if err != nil {
		return
	}

	var fileCfg map[string]any
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: skipping malformed config at %s: %v\n", path, err)
		return
	}

	// cms_url decides which origin the stored session belongs to. A config
	// in a cloned repo must not be able to repoint it.
	untrusted := source == SourceLocal || source == SourceRepo

	if v, ok := fileCfg["cms_url"].(string); ok && v != "" {
		if untrusted {
			fmt.Fprintf(os.Stderr, "warning: ignoring cms_url %q from %s config at %s (authority keys are not trusted from local/repo config)\n", v, source, path)
		} else {
			cfg.CMSURL = v
			cfg.Sources["cms_url"] = string(source)
		}
	}
	if v, ok := fileCfg["state_dir"].(string); ok && v != "" {
		cfg.StateDir = v
		cfg.Sources["state_dir"] = string(source)
	}
	if v, ok := fileCfg["database_path"].(string); ok && v != "" {
		cfg.DatabasePath = v
		cfg.Sources["database_path"] = string(source)
	}
	if v, ok := fileCfg["reset_sentinel"].(string); ok && v != "" {
		cfg.ResetSentinel = v
		cfg.Sources["reset_sentinel"] = string(source)
	}
	if v, ok := fileCfg["format"].(string); ok && v != "" {
		cfg.Format = v
		cfg.Sources["format"] = string(source)
	}
	if v, ok := fileCfg["coalesce"].(bool); ok {
		cfg.Coalesce = v
		cfg.Sources["coalesce"] = string(source)
	}

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"default_ttl", &cfg.DefaultTTL},
		{"modules_ttl", &cfg.ModulesTTL},
		{"quizzes_ttl", &cfg.QuizzesTTL},
		{"janitor_interval", &cfg.JanitorInterval},
	}
	for _, d := range durations {
		raw, ok := fileCfg[d.key].(string)
		if !ok || raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed < 0 {
			fmt.Fprintf(os.Stderr, "warning: ignoring invalid %s %q in %s\n", d.key, raw, path)
			continue
		}
		*d.target = parsed
		cfg.Sources[d.key] = string(source)
	}
}

// ApplyOverrides applies non-empty flag overrides to cfg.
func ApplyOverrides(cfg *Config, o FlagOverrides) {
	if o.CMSURL != "" {
		cfg.CMSURL = o.CMSURL
		cfg.Sources["cms_url"] = string(SourceFlag)
	}
	if o.StateDir != "" {
		cfg.StateDir = o.StateDir
		cfg.Sources["state_dir"] = string(SourceFlag)
	}
	if o.DatabasePath != "" {
		cfg.DatabasePath = o.DatabasePath
		cfg.Sources["database_path"] = string(SourceFlag)
	}
	if o.Format != "" {
		cfg.Format = o.Format
		cfg.Sources["format"] = string(SourceFlag)
	}
}

// Path helpers

func systemConfigPath() string {
	return "/etc/lmscache/config.json"
}

func globalConfigPath() string {
	return filepath.Join(GlobalConfigDir(), "config.json")
}

func repoConfigPath() string {
	// Walk up to find .git, then look for .lmscache/config.json.
	// Bounded by $HOME; outside it no repo config is trusted.
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return ""
	}
	dir = resolved
	home, _ := os.UserHomeDir()
	if resolved, err := filepath.EvalSymlinks(home); err == nil {
		home = resolved
	}
	if home != "" && !isInsideDir(dir, home) {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			cfgPath := filepath.Join(dir, ".lmscache", "config.json")
			if _, err := os.Stat(cfgPath); err == nil {
				return cfgPath
			}
			return ""
		}
		parent := filepath.Dir(dir)
		if parent == dir || (home != "" && dir == home) {
			return ""
		}
		dir = parent
	}
}

// isInsideDir reports whether child is the same as or a subdirectory of parent.
func isInsideDir(child, parent string) bool {
	if child == parent {
		return true
	}
	prefix := parent
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(child, prefix)
}

// localConfigPaths returns .lmscache/config.json paths from the trust
// boundary down to the current directory, excluding the repo config.
// Inside a git repo the boundary is the repo root; outside, only the
// current directory is considered.
func localConfigPaths(repoConfigPath string) []string {
	dir, err := os.Getwd()
	if err != nil {
		return nil
	}
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return nil
	}
	dir = resolved

	boundary := dir
	if repoConfigPath != "" {
		boundary = filepath.Dir(filepath.Dir(repoConfigPath))
	}
	if resolved, err := filepath.EvalSymlinks(boundary); err == nil {
		boundary = resolved
	}

	var paths []string
	for {
		cfgPath := filepath.Join(dir, ".lmscache", "config.json")
		if _, err := os.Stat(cfgPath); err == nil && cfgPath != repoConfigPath {
			paths = append(paths, cfgPath)
		}
		parent := filepath.Dir(dir)
		if parent == dir || dir == boundary {
			break
		}
		dir = parent
	}

	for i, j := 0, len(paths)-1; i < j; i, j = i+1, j-1 {
		paths[i], paths[j] = paths[j], paths[i]
	}
	return paths
}

// GlobalConfigDir returns the global config directory path.
func GlobalConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "lmscache")
}
