package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrMissingCredential is returned by Validate when no LLM key is configured.
var ErrMissingCredential = eris.New("config: anthropic api key not found")

// Config holds the full application configuration.
type Config struct {
	Source    SourceConfig    `yaml:"source" mapstructure:"source"`
	Browser   BrowserConfig   `yaml:"browser" mapstructure:"browser"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	OCR       OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	EnvFile   string          `yaml:"env_file" mapstructure:"env_file"`
}

// SourceConfig describes the listing page being harvested.
type SourceConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	ListingURL  string `yaml:"listing_url" mapstructure:"listing_url"`
	FilterLabel string `yaml:"filter_label" mapstructure:"filter_label"`
	Category    string `yaml:"category" mapstructure:"category"`
}

// BrowserConfig configures the Chrome session.
type BrowserConfig struct {
	Enabled          bool   `yaml:"enabled" mapstructure:"enabled"`
	Headless         bool   `yaml:"headless" mapstructure:"headless"`
	ExecPath         string `yaml:"exec_path" mapstructure:"exec_path"`
	UserAgent        string `yaml:"user_agent" mapstructure:"user_agent"`
	RenderWaitSecs   int    `yaml:"render_wait_secs" mapstructure:"render_wait_secs"`
	FilterWaitSecs   int    `yaml:"filter_wait_secs" mapstructure:"filter_wait_secs"`
	NewTabWaitSecs   int    `yaml:"new_tab_wait_secs" mapstructure:"new_tab_wait_secs"`
	TabSettleSecs    int    `yaml:"tab_settle_secs" mapstructure:"tab_settle_secs"`
	NavigateSettleMS int    `yaml:"navigate_settle_ms" mapstructure:"navigate_settle_ms"`
}

// FetchConfig configures PDF downloads.
type FetchConfig struct {
	CacheDir       string  `yaml:"cache_dir" mapstructure:"cache_dir"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MinBytes       int64   `yaml:"min_bytes" mapstructure:"min_bytes"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	UserAgent      string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// OCRConfig configures PDF text extraction.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ExtractConfig configures structured field extraction.
type ExtractConfig struct {
	MaxChars    int     `yaml:"max_chars" mapstructure:"max_chars"`
	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// PipelineConfig configures run orchestration.
type PipelineConfig struct {
	MaxConcurrentExtractions int `yaml:"max_concurrent_extractions" mapstructure:"max_concurrent_extractions"`
	RunTimeoutMins           int `yaml:"run_timeout_mins" mapstructure:"run_timeout_mins"`
}

// OutputConfig holds the dataset and changelog locations.
type OutputConfig struct {
	DatasetPath   string `yaml:"dataset_path" mapstructure:"dataset_path"`
	ChangelogPath string `yaml:"changelog_path" mapstructure:"changelog_path"`
}

// StoreConfig configures the run ledger.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. The env file (env.dev by
// default) is loaded first so its values are visible to viper.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CDA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("env_file", "env.dev")
	v.SetDefault("source.base_url", "https://www.cda-amc.ca")
	v.SetDefault("source.listing_url", "https://www.cda-amc.ca/find-reports")
	v.SetDefault("source.filter_label", "reimbursement review report")
	v.SetDefault("source.category", "Reimbursement Review Report")
	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.render_wait_secs", 10)
	v.SetDefault("browser.filter_wait_secs", 3)
	v.SetDefault("browser.new_tab_wait_secs", 2)
	v.SetDefault("browser.tab_settle_secs", 1)
	v.SetDefault("browser.navigate_settle_ms", 3000)
	v.SetDefault("fetch.cache_dir", "pdf_cache")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.min_bytes", 1000)
	v.SetDefault("fetch.requests_per_sec", 2.0)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36")
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.timeout_secs", 60)
	v.SetDefault("extract.max_chars", 4000)
	v.SetDefault("extract.max_tokens", 1000)
	v.SetDefault("extract.temperature", 0.1)
	v.SetDefault("pipeline.max_concurrent_extractions", 3)
	v.SetDefault("pipeline.run_timeout_mins", 30)
	v.SetDefault("output.dataset_path", "cda_reimbursement_data.csv")
	v.SetDefault("output.changelog_path", "changelog.txt")
	v.SetDefault("store.path", "harvest.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	if err := loadEnvFile(v.GetString("env_file")); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	// The bare SDK variable is honoured when the prefixed one is unset.
	if cfg.Anthropic.Key == "" {
		cfg.Anthropic.Key = os.Getenv("ANTHROPIC_API_KEY")
	}

	return &cfg, nil
}

// loadEnvFile loads KEY=VALUE pairs into the process environment without
// overriding variables that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return eris.Wrapf(err, "config: load env file %s", path)
	}
	return nil
}

// Validate checks settings that must be present before a harvest starts.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Anthropic.Key) == "" {
		return ErrMissingCredential
	}
	if c.Output.DatasetPath == "" {
		return eris.New("config: output.dataset_path is required")
	}
	if c.Fetch.CacheDir == "" {
		return eris.New("config: fetch.cache_dir is required")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
