package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kittclouds/barswitch/pkg/titles"
)

// Config holds all bbswitch configuration.
type Config struct {
	// Bookmark database
	Store StoreConfig `yaml:"store"`

	// Folder and pointer naming
	Layout LayoutConfig `yaml:"layout"`

	// Switch engine tuning
	Switch SwitchConfig `yaml:"switch"`

	// Where the current name and name list are mirrored
	Mirror MirrorConfig `yaml:"mirror"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Prometheus endpoint for the watch command
	Metrics MetricsConfig `yaml:"metrics"`
}

// StoreConfig configures the SQLite bookmark store.
type StoreConfig struct {
	Path             string `yaml:"path"`
	PollInterval     string `yaml:"poll_interval"`
	JournalRetention int    `yaml:"journal_retention"`
}

// LayoutConfig names the folders and records the engine manages.
type LayoutConfig struct {
	RootTitle      string   `yaml:"root_title"`
	DefaultName    string   `yaml:"default_name"`
	PointerTag     string   `yaml:"pointer_tag"`
	Separator      string   `yaml:"separator"`
	PointerURL     string   `yaml:"pointer_url"`
	BarTitles      []string `yaml:"bar_titles"`
	OtherTitles    []string `yaml:"other_titles"`
	ReservedTokens []string `yaml:"reserved_tokens"`
}

// SwitchConfig tunes the switch engine.
type SwitchConfig struct {
	MoveConcurrency int `yaml:"move_concurrency"`
}

// MirrorConfig selects the metadata mirror.
type MirrorConfig struct {
	Backend   string `yaml:"backend"` // sqlite, redis, none
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
	Prefix    string `yaml:"prefix"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	File   string `yaml:"file"`
}

// MetricsConfig configures the metrics listener.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Path:             "data/bookmarks.db",
			PollInterval:     "2s",
			JournalRetention: 1024,
		},

		Layout: LayoutConfig{
			RootTitle:   "BookmarkBars",
			DefaultName: "Default",
			PointerTag:  "CurrentBB",
			Separator:   ":",
			PointerURL:  "http://zoeetrope.com/en/bbs",
			BarTitles:   []string{"Bookmarks bar", "Bookmarks Bar", "Bookmarks Toolbar"},
			OtherTitles: []string{"Other bookmarks", "Other Bookmarks"},
		},

		Switch: SwitchConfig{
			MoveConcurrency: 1,
		},

		Mirror: MirrorConfig{
			Backend:   "sqlite",
			RedisAddr: "localhost:6379",
			Prefix:    "barswitch:",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("BBSWITCH_DB"); path != "" {
		c.Store.Path = path
	}
	if level := os.Getenv("BBSWITCH_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	// Pointing at a redis server implies the redis mirror.
	if addr := os.Getenv("BBSWITCH_REDIS_ADDR"); addr != "" {
		c.Mirror.RedisAddr = addr
		c.Mirror.Backend = "redis"
	}
	if db := os.Getenv("BBSWITCH_REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			c.Mirror.RedisDB = n
		}
	}
}

// GetPollInterval returns the journal poll interval, 0 when disabled.
func (c *Config) GetPollInterval() time.Duration {
	if c.Store.PollInterval == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Store.PollInterval)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// Codec builds the pointer title codec from the layout.
func (c *Config) Codec() (*titles.Codec, error) {
	return titles.NewCodec(c.Layout.PointerTag, c.Layout.Separator, c.Layout.ReservedTokens...)
}

// ValidMirrorBackends lists the supported mirror backends.
var ValidMirrorBackends = []string{"sqlite", "redis", "none"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store path not configured (set store.path or BBSWITCH_DB)")
	}
	if c.Layout.RootTitle == "" {
		return fmt.Errorf("layout.root_title must not be empty")
	}
	codec, err := c.Codec()
	if err != nil {
		return fmt.Errorf("invalid pointer layout: %w", err)
	}
	if c.Layout.DefaultName == "" {
		return fmt.Errorf("layout.default_name must not be empty")
	}
	if tok, ok := codec.Reserved(c.Layout.DefaultName); ok {
		return fmt.Errorf("default collection name %q contains reserved token %q", c.Layout.DefaultName, tok)
	}
	if c.Layout.PointerURL == "" {
		return fmt.Errorf("layout.pointer_url must not be empty")
	}
	if c.Switch.MoveConcurrency < 1 {
		return fmt.Errorf("switch.move_concurrency must be at least 1, got %d", c.Switch.MoveConcurrency)
	}
	if c.Store.PollInterval != "" {
		if _, err := time.ParseDuration(c.Store.PollInterval); err != nil {
			return fmt.Errorf("invalid store.poll_interval %q: %w", c.Store.PollInterval, err)
		}
	}

	validBackend := false
	for _, b := range ValidMirrorBackends {
		if c.Mirror.Backend == b {
			validBackend = true
			break
		}
	}
	if !validBackend {
		return fmt.Errorf("invalid mirror backend: %s (valid: %v)", c.Mirror.Backend, ValidMirrorBackends)
	}
	if c.Mirror.Backend == "redis" && c.Mirror.RedisAddr == "" {
		return fmt.Errorf("mirror.redis_addr required for the redis backend")
	}

	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("invalid logging format: %s (valid: json, console)", c.Logging.Format)
	}
	return nil
}
