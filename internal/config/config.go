package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"newsharvest/internal/article"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	// Seeds maps a category to the listing pages (or feeds) scanned for
	// article links. Read-only during a run.
	Seeds map[string][]string `yaml:"seeds"`

	Budget    Budget    `yaml:"budget"`
	Fetcher   Fetcher   `yaml:"fetcher"`
	Validator Validator `yaml:"validator"`
	Output    Output    `yaml:"output"`
	Logging   Logging   `yaml:"logging"`

	// BoilerplatePatterns extends the built-in boilerplate filter with
	// additional case-insensitive regular expressions.
	BoilerplatePatterns []string `yaml:"boilerplate_patterns"`
}

// Budget holds the per-category caps for a single pipeline run.
type Budget struct {
	MaxPerPage        int `yaml:"max_per_page"`
	MaxPerCategory    int `yaml:"max_per_category"`
	TargetPerCategory int `yaml:"target_per_category"`
	MaxSweeps         int `yaml:"max_sweeps"`
}

type Fetcher struct {
	TimeoutSeconds     int  `yaml:"timeout_seconds"`
	MaxRetries         int  `yaml:"max_retries"`
	BackoffMillis      int  `yaml:"backoff_ms"`
	CacheTTLMinutes    int  `yaml:"cache_ttl_minutes"`
	PerHostIntervalMS  int  `yaml:"per_host_interval_ms"`
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// Timeout returns the per-request timeout.
func (f Fetcher) Timeout() time.Duration { return time.Duration(f.TimeoutSeconds) * time.Second }

// Backoff returns the base backoff factor.
func (f Fetcher) Backoff() time.Duration { return time.Duration(f.BackoffMillis) * time.Millisecond }

// CacheTTL returns how long cached responses stay fresh.
func (f Fetcher) CacheTTL() time.Duration { return time.Duration(f.CacheTTLMinutes) * time.Minute }

// PerHostInterval returns the minimum delay between requests to one host.
func (f Fetcher) PerHostInterval() time.Duration {
	return time.Duration(f.PerHostIntervalMS) * time.Millisecond
}

type Validator struct {
	Enabled     bool   `yaml:"enabled"`
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	OllamaURL   string `yaml:"ollama_url"`
	OpenAIModel string `yaml:"openai_model"`
	APIKeyEnv   string `yaml:"api_key_env"`
	MaxAttempts int    `yaml:"max_attempts"`
	MaxTokens   int    `yaml:"max_tokens"`
	// MaxRetries overrides fetcher.max_retries for article fetches feeding
	// the validator, where a shorter retry budget keeps runs moving.
	MaxRetries int `yaml:"max_retries"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// Debug reports whether the configured level asks for debug-verbosity logs.
func (l Logging) Debug() bool {
	return strings.EqualFold(l.Level, "DEBUG")
}

// ConfigDir returns the XDG config directory for newsharvest.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "newsharvest")
}

// DataDir returns the XDG data directory for newsharvest.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "newsharvest")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/newsharvest/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'newsharvest init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML bytes into a Config, applying defaults and validating
// category names.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{
		Budget: Budget{
			MaxPerPage:        50,
			MaxPerCategory:    250,
			TargetPerCategory: 25,
			MaxSweeps:         3,
		},
		Fetcher: Fetcher{
			TimeoutSeconds:    30,
			MaxRetries:        5,
			BackoffMillis:     500,
			CacheTTLMinutes:   60,
			PerHostIntervalMS: 1000,
		},
		Validator: Validator{
			Provider:    "ollama",
			Model:       "qwen2.5:7b",
			OllamaURL:   "http://localhost:11434",
			OpenAIModel: "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
			MaxAttempts: 3,
			MaxTokens:   1024,
			MaxRetries:  2,
		},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	for cat := range cfg.Seeds {
		if !article.ValidCategory(cat) {
			return nil, fmt.Errorf("unknown category %q in seeds (valid: %v)", cat, article.Categories)
		}
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
