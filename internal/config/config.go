package config

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/F-swanlight/sniffer-geo/internal/signal"
)

//go:embed default_config.yaml
var defaultConfigFS embed.FS

const (
	envWebhook = "SNIFFER_GEO_WEBHOOK"
	envAIKey   = "SNIFFER_GEO_AI_KEY"
)

type Source struct {
	Name    string `yaml:"name"`
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
	// Zone is the journal tier, 1 highest. Zero leaves weighting to
	// source_weights.
	Zone int `yaml:"zone,omitempty"`
}

type BatchConfig struct {
	MaxFirst  int    `yaml:"max_first"`
	MaxSecond int    `yaml:"max_second"`
	Delay     string `yaml:"delay"`
}

type FetchConfig struct {
	Timeout  string `yaml:"timeout"`
	Delay    string `yaml:"delay"`
	Attempts int    `yaml:"attempts"`
}

type TrendingConfig struct {
	Enabled bool `yaml:"enabled"`
	Top     int  `yaml:"top"`
}

type TranslationConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"` // "claude" or "openai"
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Target   string `yaml:"target"`
	// BaseURL overrides the API endpoint, e.g. an OpenAI-compatible gateway.
	BaseURL string `yaml:"base_url"`
}

type Config struct {
	WebhookURL       string            `yaml:"webhook_url"`
	Timezone         string            `yaml:"timezone"`
	Title            string            `yaml:"title"`
	Keywords         []string          `yaml:"keywords"`
	Feeds            []Source          `yaml:"feeds"`
	Catalog          string            `yaml:"catalog,omitempty"`
	ZoneWeights      map[int]float64   `yaml:"zone_weights"`
	SourceWeights    signal.Weights    `yaml:"source_weights"`
	SendEmptyReports bool              `yaml:"send_empty_reports"`
	Batch            BatchConfig       `yaml:"batch"`
	Retention        string            `yaml:"retention"`
	PushedLinkCap    int               `yaml:"pushed_link_cap"`
	Fetch            FetchConfig       `yaml:"fetch"`
	KeywordTableSize int               `yaml:"keyword_table_size"`
	Trending         TrendingConfig    `yaml:"trending"`
	Translation      TranslationConfig `yaml:"translation"`
	StatePath        string            `yaml:"state_path,omitempty"`
	LogLevel         string            `yaml:"log_level"`
	LogFile          string            `yaml:"log_file,omitempty"`
}

// Webhook returns the webhook URL, preferring SNIFFER_GEO_WEBHOOK.
func (c *Config) Webhook() string {
	if v := os.Getenv(envWebhook); v != "" {
		return v
	}
	return c.WebhookURL
}

// AIKey returns the resolved API key (config or env var).
func (c *Config) AIKey() string {
	if c.Translation.APIKey != "" {
		return c.Translation.APIKey
	}
	return os.Getenv(envAIKey)
}

// TranslationEnabled returns true if translation is on and has a key.
func (c *Config) TranslationEnabled() bool {
	return c.Translation.Enabled && c.AIKey() != ""
}

// Location resolves the configured time zone. Empty and "Local" mean the
// machine's zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) RetentionDuration() time.Duration {
	return durationOr(c.Retention, 30*24*time.Hour)
}

func (c *Config) BatchDelay() time.Duration {
	return durationOr(c.Batch.Delay, 5*time.Second)
}

func (c *Config) FetchTimeout() time.Duration {
	return durationOr(c.Fetch.Timeout, 30*time.Second)
}

func (c *Config) FetchDelay() time.Duration {
	return durationOr(c.Fetch.Delay, time.Second)
}

func (c *Config) FetchAttempts() int {
	if c.Fetch.Attempts <= 0 {
		return 3
	}
	return c.Fetch.Attempts
}

// GetKeywordTableSize returns the keyword table size, defaulting to 10.
func (c *Config) GetKeywordTableSize() int {
	if c.KeywordTableSize <= 0 {
		return 10
	}
	return c.KeywordTableSize
}

func (c *Config) EnabledFeeds() []Source {
	var out []Source
	for _, s := range c.Feeds {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// Weights returns the scoring table: one exact entry per zoned feed, then
// the configured source_weights fragments.
func (c *Config) Weights() signal.Weights {
	var out signal.Weights
	for _, s := range c.EnabledFeeds() {
		if s.Zone <= 0 {
			continue
		}
		if w, ok := c.ZoneWeights[s.Zone]; ok {
			out = append(out, signal.Weight{Match: s.Name, Weight: w})
		}
	}
	return append(out, c.SourceWeights...)
}

func (c *Config) FeedNames() []string {
	var names []string
	for _, s := range c.EnabledFeeds() {
		names = append(names, s.Name)
	}
	return names
}

// ParseDuration accepts Go durations and an "Nd" day syntax.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil && days >= 0 {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

func durationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "sniffer-geo", "config.yaml")
}

// DefaultStatePath is where the backlog database lives unless state_path
// says otherwise.
func DefaultStatePath() string {
	return filepath.Join(xdg.DataHome, "sniffer-geo", "state.db")
}

func (c *Config) GetStatePath() string {
	if c.StatePath != "" {
		return c.StatePath
	}
	return DefaultStatePath()
}

// LoadDotEnv loads KEY=value pairs from .env files into the environment.
// Missing files are ignored and variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

func loadDefaults() (*Config, error) {
	data, err := defaultConfigFS.ReadFile("default_config.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded config: %w", err)
	}
	return &cfg, nil
}

// Load reads the config at path over the embedded defaults. A missing file
// is created from the defaults and the defaults are returned.
func Load(path string) (*Config, error) {
	cfg, err := loadDefaults()
	if err != nil {
		return nil, err
	}

	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Non-fatal: the embedded defaults still apply.
			_ = writeDefaults(path)
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Catalog != "" {
		catalog := cfg.Catalog
		if !filepath.IsAbs(catalog) {
			catalog = filepath.Join(filepath.Dir(path), catalog)
		}
		journals, err := LoadCatalog(catalog)
		if err != nil {
			return nil, err
		}
		cfg.Feeds = mergeFeeds(cfg.Feeds, journals)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func writeDefaults(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, _ := defaultConfigFS.ReadFile("default_config.yaml")
	return os.WriteFile(path, data, 0o644)
}

func validate(cfg *Config) error {
	for i, s := range cfg.Feeds {
		if s.Name == "" {
			return fmt.Errorf("feed %d: name is required", i)
		}
		if s.URL == "" {
			return fmt.Errorf("feed %q: url is required", s.Name)
		}
		u, err := url.Parse(s.URL)
		if err != nil {
			return fmt.Errorf("feed %q: invalid url: %w", s.Name, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("feed %q: url scheme must be http or https, got %q", s.Name, u.Scheme)
		}
		if s.Zone < 0 {
			return fmt.Errorf("feed %q: zone must not be negative", s.Name)
		}
		if _, ok := cfg.ZoneWeights[s.Zone]; s.Zone > 0 && !ok {
			return fmt.Errorf("feed %q: no zone_weights entry for zone %d", s.Name, s.Zone)
		}
	}
	for zone, w := range cfg.ZoneWeights {
		if w < 0 {
			return fmt.Errorf("zone weight %d: weight must not be negative", zone)
		}
	}
	for _, w := range cfg.SourceWeights {
		if strings.TrimSpace(w.Match) == "" {
			return fmt.Errorf("source weight: match is required")
		}
		if w.Weight < 0 {
			return fmt.Errorf("source weight %q: weight must not be negative", w.Match)
		}
	}
	if cfg.Batch.MaxFirst < 0 || cfg.Batch.MaxSecond < 0 {
		return fmt.Errorf("batch sizes must not be negative")
	}
	for name, v := range map[string]string{
		"retention":     cfg.Retention,
		"batch.delay":   cfg.Batch.Delay,
		"fetch.timeout": cfg.Fetch.Timeout,
		"fetch.delay":   cfg.Fetch.Delay,
	} {
		if v == "" {
			continue
		}
		if _, err := ParseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if _, err := cfg.Location(); err != nil {
		return err
	}
	if p := cfg.Translation.Provider; cfg.Translation.Enabled && p != "claude" && p != "openai" {
		return fmt.Errorf("translation: unknown provider %q (valid: claude, openai)", p)
	}
	return nil
}
