package pipeline

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/motorscan/motorscan/internal/browser"
	"github.com/motorscan/motorscan/internal/fetch"
)

// Config holds all pipeline configuration.
type Config struct {
	// Source label stored with every listing
	Source string `json:"source" yaml:"source"`

	// Default page ceiling when a run does not specify one
	MaxPages int `json:"max_pages" yaml:"max_pages"`

	// Wall-clock ceiling for a whole run
	RunTimeout time.Duration `json:"run_timeout" yaml:"run_timeout"`

	// Fetch configuration (search URL layout, page timeout)
	Fetch fetch.Config `json:"fetch" yaml:"fetch"`

	// Browser configuration
	Browser browser.Config `json:"browser" yaml:"browser"`

	// Rate limiting
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`

	// Retry policy for transient fetch failures
	Retry RetryConfig `json:"retry" yaml:"retry"`

	// Storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Run history persistence
	State StateConfig `json:"state" yaml:"state"`

	// Cron expression for scheduled runs; empty disables the scheduler
	Schedule string `json:"schedule,omitempty" yaml:"schedule,omitempty"`

	// Verbose logging
	Verbose bool `json:"verbose" yaml:"verbose"`

	// Debug mode
	Debug bool `json:"debug" yaml:"debug"`
}

// RateLimitConfig paces navigations against the source.
type RateLimitConfig struct {
	// Randomized delay band between consecutive navigations
	DelayMin time.Duration `json:"delay_min" yaml:"delay_min"`
	DelayMax time.Duration `json:"delay_max" yaml:"delay_max"`
}

// RetryConfig bounds retries of transient fetch failures.
type RetryConfig struct {
	MaxRetries   int           `json:"max_retries" yaml:"max_retries"`
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay" yaml:"max_delay"`
	Multiplier   float64       `json:"multiplier" yaml:"multiplier"`
	Jitter       float64       `json:"jitter" yaml:"jitter"`
}

// StorageConfig locates the sqlite store.
type StorageConfig struct {
	// Path to the sqlite database file
	Path string `json:"path" yaml:"path"`

	// Seed the brand/model dictionary at open
	Seed bool `json:"seed" yaml:"seed"`
}

// StateConfig controls run-history journaling and retention.
type StateConfig struct {
	// Path to the bbolt run journal; empty keeps history in memory only
	JournalPath string `json:"journal_path,omitempty" yaml:"journal_path,omitempty"`

	// How many runs the in-memory registry retains
	Retention int `json:"retention" yaml:"retention"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Source:     "yad2",
		MaxPages:   5,
		RunTimeout: 30 * time.Minute,
		Fetch:      fetch.DefaultConfig(),
		Browser:    browser.DefaultConfig(),
		RateLimit: RateLimitConfig{
			DelayMin: 2 * time.Second,
			DelayMax: 5 * time.Second,
		},
		Retry: RetryConfig{
			MaxRetries:   3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			Jitter:       0.2,
		},
		Storage: StorageConfig{
			Path: "data/motorscan.db",
			Seed: true,
		},
		State: StateConfig{
			JournalPath: "data/runs.db",
			Retention:   20,
		},
	}
}

// PoliteConfig returns a configuration tuned for a source that punishes
// bursts: a wide pacing band, a short page budget, and frequent browser
// recycling.
func PoliteConfig() *Config {
	cfg := DefaultConfig()
	cfg.MaxPages = 3
	cfg.RateLimit = RateLimitConfig{
		DelayMin: 5 * time.Second,
		DelayMax: 12 * time.Second,
	}
	cfg.Retry.MaxRetries = 2
	cfg.Browser.RecycleAfter = 20
	return cfg
}

// LoadFromFile loads configuration from a file (YAML or JSON).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return config, nil
}

// SaveToFile saves configuration to a file.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if len(path) > 5 && path[len(path)-5:] == ".json" {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Source == "" {
		return fmt.Errorf("source is required")
	}

	if c.MaxPages < 1 {
		return fmt.Errorf("max pages must be at least 1")
	}

	if c.RunTimeout <= 0 {
		return fmt.Errorf("run timeout must be positive")
	}

	if _, err := url.ParseRequestURI(c.Fetch.BaseURL); err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	if c.RateLimit.DelayMin < 0 || c.RateLimit.DelayMax < c.RateLimit.DelayMin {
		return fmt.Errorf("rate limit band must satisfy 0 <= min <= max")
	}

	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry multiplier must be at least 1")
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}

	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	data, _ := json.Marshal(c)
	clone := &Config{}
	json.Unmarshal(data, clone)
	return clone
}
