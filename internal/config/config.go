// Package config resolves the engine's user-level configuration: default
// registry index, scripts-repository URL, per-index auth tokens, and the
// content store root. Settings are loaded from a JSON file and may be
// overridden by PESDE_* environment variables, following the teacher's
// env-var-first convention for registry credentials.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// FileName is the user config's on-disk name under its config directory.
const FileName = "config.json"

// IndexAuth holds the bearer token used to authenticate against one
// registry index.
type IndexAuth struct {
	Token string `json:"token"`
}

// Config is the engine's user-level configuration.
type Config struct {
	DefaultIndexURL string               `json:"default_index_url,omitempty"`
	ScriptsRepoURL  string               `json:"scripts_repo_url,omitempty"`
	StoreRoot       string               `json:"store_root,omitempty"`
	MaxConcurrency  int                  `json:"max_concurrency,omitempty"`
	Indices         map[string]IndexAuth `json:"indices,omitempty"`
}

// Dir returns the directory config.json lives in: $XDG_CONFIG_HOME/pesde
// if set, else the platform's user config directory.
func Dir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "pesde"), nil
	}

	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}

	return filepath.Join(base, "pesde"), nil
}

// Load reads the user config file, applying environment overrides on top.
// A missing file is not an error: Load returns the zero Config with env
// overrides applied, since every field has a sensible engine-level
// default applied by its consumer.
func Load() (*Config, error) {
	cfg := &Config{Indices: map[string]IndexAuth{}}

	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("parse %s: %w", filepath.Join(dir, FileName), jsonErr)
		}
	case os.IsNotExist(err):
		// no user config on disk yet; fall through with env overrides only.
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnv()

	if cfg.Indices == nil {
		cfg.Indices = map[string]IndexAuth{}
	}

	return cfg, nil
}

// Save writes the config back to its on-disk location, creating the
// config directory if necessary.
func (c *Config) Save() error {
	dir, err := Dir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, FileName), data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("PESDE_DEFAULT_INDEX_URL")); v != "" {
		c.DefaultIndexURL = v
	}

	if v := strings.TrimSpace(os.Getenv("PESDE_SCRIPTS_REPO_URL")); v != "" {
		c.ScriptsRepoURL = v
	}

	if v := strings.TrimSpace(os.Getenv("PESDE_STORE_ROOT")); v != "" {
		c.StoreRoot = v
	}

	if v := strings.TrimSpace(os.Getenv("PESDE_MAX_CONCURRENCY")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxConcurrency = n
		}
	}
}

// StoreDir returns the content store's root directory: the configured
// StoreRoot if set, else $XDG_CACHE_HOME/pesde/store (or the platform's
// user cache directory equivalent), mirroring Dir()'s precedence.
func (c *Config) StoreDir() (string, error) {
	if c.StoreRoot != "" {
		return c.StoreRoot, nil
	}

	if xdg := strings.TrimSpace(os.Getenv("XDG_CACHE_HOME")); xdg != "" {
		return filepath.Join(xdg, "pesde", "store"), nil
	}

	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolve user cache dir: %w", err)
	}

	return filepath.Join(base, "pesde", "store"), nil
}

// TokenFor resolves the bearer token for a registry index URL: an
// index-specific PESDE_TOKEN_<INDEX> env var wins, then the generic
// PESDE_REGISTRY_TOKEN env var, then the index's entry in the loaded
// config, matching the teacher's
// ORIZON_REGISTRY_TOKEN-then-credentials.json precedence.
func (c *Config) TokenFor(indexURL string) string {
	envKey := "PESDE_TOKEN_" + sanitizeEnvKey(indexURL)
	if tok := strings.TrimSpace(os.Getenv(envKey)); tok != "" {
		return tok
	}

	if generic := strings.TrimSpace(os.Getenv("PESDE_REGISTRY_TOKEN")); generic != "" {
		return generic
	}

	if auth, ok := c.Indices[normalizeIndexURL(indexURL)]; ok {
		return strings.TrimSpace(auth.Token)
	}

	return ""
}

// SetToken stores a token for an index in memory (callers persist via Save).
func (c *Config) SetToken(indexURL, token string) {
	if c.Indices == nil {
		c.Indices = map[string]IndexAuth{}
	}

	c.Indices[normalizeIndexURL(indexURL)] = IndexAuth{Token: token}
}

// ConcurrencyLimit returns the bound for I/O-fan-out worker pools (the
// resolver's expansion queue, the store's parallel ensure calls): the
// configured MaxConcurrency if positive, otherwise GOMAXPROCS*8 capped at
// 1024, mirroring the teacher's ioConcurrency().
func (c *Config) ConcurrencyLimit() int {
	if c.MaxConcurrency > 0 {
		if c.MaxConcurrency > 1024 {
			return 1024
		}

		return c.MaxConcurrency
	}

	n := runtime.GOMAXPROCS(0) * 8
	if n > 1024 {
		return 1024
	}

	if n < 1 {
		return 1
	}

	return n
}

func normalizeIndexURL(u string) string {
	return strings.TrimRight(strings.TrimSpace(u), "/")
}

func sanitizeEnvKey(u string) string {
	var b strings.Builder

	for _, r := range strings.ToUpper(u) {
		switch {
		case r >= 'A' && r <= 'Z' || r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	return b.String()
}
