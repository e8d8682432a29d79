package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv        = "CONTENTFEED_CONFIG"
	databaseDriverEnv    = "DATABASE_DRIVER"
	databaseDSNEnv       = "DATABASE_DSN"
	httpAddrEnv          = "HTTP_ADDR"
	logLevelEnv          = "LOG_LEVEL"
	logFormatEnv         = "LOG_FORMAT"
	unsplashKeyEnv       = "UNSPLASH_ACCESS_KEY"
	pexelsKeyEnv         = "PEXELS_API_KEY"
	pixabayKeyEnv        = "PIXABAY_API_KEY"
	skimlinksEnv         = "SKIMLINKS_PUBLISHER_ID"
	telegramTokenEnv     = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv    = "TELEGRAM_CHAT_ID"
	schedulerIntervalEnv = "SCHEDULER_INTERVAL"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	HTTP          HTTPConfig         `yaml:"http"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Ingestion     IngestionConfig    `yaml:"ingestion"`
	Providers     []ProviderConfig   `yaml:"providers"`
	Retry         RetryConfig        `yaml:"retry"`
	Affiliate     AffiliateConfig    `yaml:"affiliate"`
	Images        ImagesConfig       `yaml:"images"`
	Notifications NotificationConfig `yaml:"notifications"`
	Feeds         []FeedConfig       `yaml:"feeds"`
}

// LoggingConfig selects level and output format (text, json or auto).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig describes the SQL store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// HTTPConfig configures the administrative API listener.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// SchedulerConfig defines how often ingestion runs in serve mode.
type SchedulerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// IngestionConfig holds the pacing and fetch settings of one run.
type IngestionConfig struct {
	FeedDelay       time.Duration `yaml:"feedDelay"`
	ItemDelay       time.Duration `yaml:"itemDelay"`
	MaxItemsPerFeed int           `yaml:"maxItemsPerFeed"`
	UserAgent       string        `yaml:"userAgent"`
	FetchTimeout    time.Duration `yaml:"fetchTimeout"`
	LockFile        string        `yaml:"lockFile"`
}

// ProviderConfig describes one OpenAI-compatible language model backend.
// Providers are tried in the order they are declared.
type ProviderConfig struct {
	Name        string            `yaml:"name"`
	BaseURL     string            `yaml:"baseUrl"`
	APIKey      string            `yaml:"apiKey"`
	APIKeyEnv   string            `yaml:"apiKeyEnv"`
	Models      []string          `yaml:"models"`
	MaxRequests int               `yaml:"maxRequests"`
	Window      time.Duration     `yaml:"window"`
	Timeout     time.Duration     `yaml:"timeout"`
	QuotaCodes  []string          `yaml:"quotaCodes"`
	Headers     map[string]string `yaml:"headers"`
}

// RetryConfig controls backoff when every provider is rate limited.
type RetryConfig struct {
	Attempts  int           `yaml:"attempts"`
	BaseDelay time.Duration `yaml:"baseDelay"`
}

// AffiliateConfig wires the monetization programs.
type AffiliateConfig struct {
	Amazon  AmazonConfig  `yaml:"amazon"`
	Custom  CustomConfig  `yaml:"custom"`
	Network NetworkConfig `yaml:"network"`
}

// AmazonConfig maps storefront domains to partner tags.
type AmazonConfig struct {
	Enabled bool              `yaml:"enabled"`
	Regions map[string]string `yaml:"regions"`
}

// CustomConfig maps host patterns to URL templates containing {url}.
type CustomConfig struct {
	Enabled  bool              `yaml:"enabled"`
	Patterns map[string]string `yaml:"patterns"`
}

// NetworkConfig describes the catch-all redirect network.
type NetworkConfig struct {
	Enabled     bool   `yaml:"enabled"`
	PublisherID string `yaml:"publisherId"`
	Endpoint    string `yaml:"endpoint"`
}

// ImagesConfig holds stock photo API keys and cache lifetime.
type ImagesConfig struct {
	UnsplashKey string        `yaml:"unsplashKey"`
	PexelsKey   string        `yaml:"pexelsKey"`
	PixabayKey  string        `yaml:"pixabayKey"`
	CacheTTL    time.Duration `yaml:"cacheTtl"`
	Timeout     time.Duration `yaml:"timeout"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// FeedConfig seeds one syndication feed into storage.
type FeedConfig struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Category string `yaml:"category"`
	Source   string `yaml:"source"`
	Active   *bool  `yaml:"active"`
}

// IsActive treats a missing flag as active.
func (f FeedConfig) IsActive() bool {
	return f.Active == nil || *f.Active
}

// Load reads YAML configuration (if present) and applies environment overrides.
// An explicit path wins over CONTENTFEED_CONFIG.
func Load(path string) Config {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			// Keys absent from the file keep their defaults; present keys win,
			// including explicit false and zero durations.
			fileCfg := defaultConfig()
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = fileCfg
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

// Validate reports structural problems that would make the pipeline unusable.
func (c Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if len(c.Providers) == 0 {
		errs = append(errs, errors.New("at least one provider is required"))
	}
	for i, p := range c.Providers {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("providers[%d].name is required", i))
		}
		if len(p.Models) == 0 {
			errs = append(errs, fmt.Errorf("provider %s: at least one model is required", p.Name))
		}
		if p.MaxRequests < 0 || p.Window <= 0 {
			errs = append(errs, fmt.Errorf("provider %s: maxRequests must be >= 0 and window > 0", p.Name))
		}
	}
	if c.Ingestion.FeedDelay < 0 || c.Ingestion.ItemDelay < 0 {
		errs = append(errs, errors.New("ingestion delays must not be negative"))
	}
	if c.Ingestion.MaxItemsPerFeed <= 0 {
		errs = append(errs, errors.New("ingestion.maxItemsPerFeed must be positive"))
	}
	if c.Retry.Attempts < 1 {
		errs = append(errs, errors.New("retry.attempts must be at least 1"))
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("scheduler.interval must be positive"))
	}

	return errors.Join(errs...)
}

// amazonRegionEnv maps storefront domains to the variables holding their tags.
var amazonRegionEnv = map[string]string{
	"amazon.com":    "AMAZON_US_TAG",
	"amazon.co.uk":  "AMAZON_UK_TAG",
	"amazon.ca":     "AMAZON_CA_TAG",
	"amazon.de":     "AMAZON_DE_TAG",
	"amazon.fr":     "AMAZON_FR_TAG",
	"amazon.it":     "AMAZON_IT_TAG",
	"amazon.es":     "AMAZON_ES_TAG",
	"amazon.co.jp":  "AMAZON_JP_TAG",
	"amazon.in":     "AMAZON_IN_TAG",
	"amazon.com.au": "AMAZON_AU_TAG",
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(httpAddrEnv); v != "" {
		c.HTTP.Addr = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(logFormatEnv); v != "" {
		c.Logging.Format = v
	}

	if v := os.Getenv(schedulerIntervalEnv); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Scheduler.Interval = d
		} else if minutes, err := strconv.Atoi(v); err == nil {
			c.Scheduler.Interval = time.Duration(minutes) * time.Minute
		} else {
			log.Printf("config: ignore %s=%q: not a duration", schedulerIntervalEnv, v)
		}
	}

	for i := range c.Providers {
		if env := c.Providers[i].APIKeyEnv; env != "" {
			if v := os.Getenv(env); v != "" {
				c.Providers[i].APIKey = v
			}
		}
	}

	if v := os.Getenv(unsplashKeyEnv); v != "" {
		c.Images.UnsplashKey = v
	}
	if v := os.Getenv(pexelsKeyEnv); v != "" {
		c.Images.PexelsKey = v
	}
	if v := os.Getenv(pixabayKeyEnv); v != "" {
		c.Images.PixabayKey = v
	}

	for domain, env := range amazonRegionEnv {
		if v := os.Getenv(env); v != "" {
			if c.Affiliate.Amazon.Regions == nil {
				c.Affiliate.Amazon.Regions = map[string]string{}
			}
			c.Affiliate.Amazon.Regions[domain] = v
		}
	}
	if v := os.Getenv(skimlinksEnv); v != "" {
		c.Affiliate.Network.PublisherID = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
}

// DefaultProviders returns the stock provider chain: a free-tier aggregator
// followed by two metered backends.
func DefaultProviders() []ProviderConfig {
	return []ProviderConfig{
		{
			Name:      "openrouter",
			BaseURL:   "https://openrouter.ai/api/v1",
			APIKeyEnv: "OPENROUTER_API_KEY",
			Models: []string{
				"meta-llama/llama-3.1-8b-instruct:free",
				"mistralai/mistral-7b-instruct:free",
				"google/gemma-2-9b-it:free",
			},
			MaxRequests: 20,
			Window:      time.Minute,
			Timeout:     30 * time.Second,
			Headers: map[string]string{
				"HTTP-Referer": "https://contentfeed.local",
				"X-Title":      "ContentFeed",
			},
		},
		{
			Name:        "mistral",
			BaseURL:     "https://api.mistral.ai/v1",
			APIKeyEnv:   "MISTRAL_API_KEY",
			Models:      []string{"mistral-large-latest"},
			MaxRequests: 3,
			Window:      time.Minute,
			Timeout:     30 * time.Second,
		},
		{
			Name:        "openai",
			BaseURL:     "https://api.openai.com/v1",
			APIKeyEnv:   "OPENAI_API_KEY",
			Models:      []string{"gpt-3.5-turbo"},
			MaxRequests: 0,
			Window:      time.Minute,
			Timeout:     30 * time.Second,
			QuotaCodes:  []string{"rate_limit_exceeded", "insufficient_quota"},
		},
	}
}

func defaultConfig() Config {
	return Config{
		Logging:  LoggingConfig{Level: "info", Format: "auto"},
		Database: DatabaseConfig{Driver: DriverSQLite, DSN: "file:contentfeed.db?_pragma=busy_timeout(5000)"},
		HTTP:     HTTPConfig{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		Scheduler: SchedulerConfig{
			Enabled:  false,
			Interval: time.Hour,
		},
		Ingestion: IngestionConfig{
			FeedDelay:       5 * time.Second,
			ItemDelay:       2 * time.Second,
			MaxItemsPerFeed: 10,
			UserAgent:       "ContentFeed/1.0 (+https://contentfeed.local)",
			FetchTimeout:    20 * time.Second,
			LockFile:        filepath.Join(os.TempDir(), "contentfeed-ingest.lock"),
		},
		Providers: DefaultProviders(),
		Retry:     RetryConfig{Attempts: 3, BaseDelay: time.Second},
		Affiliate: AffiliateConfig{
			Amazon: AmazonConfig{Enabled: false, Regions: map[string]string{}},
			Custom: CustomConfig{Enabled: false, Patterns: map[string]string{}},
			Network: NetworkConfig{
				Enabled:  true,
				Endpoint: "https://go.skimresources.com/",
			},
		},
		Images: ImagesConfig{CacheTTL: 24 * time.Hour, Timeout: 10 * time.Second},
		Feeds: []FeedConfig{
			{Name: "TechCrunch", URL: "https://techcrunch.com/feed/", Category: "Technology", Source: "TechCrunch"},
			{Name: "The Verge", URL: "https://www.theverge.com/rss/index.xml", Category: "Technology", Source: "The Verge"},
			{Name: "Lifehacker", URL: "https://lifehacker.com/rss", Category: "Lifestyle", Source: "Lifehacker"},
		},
	}
}
