// Package config loads application configuration from file and environment.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration. It is loaded once and
// passed explicitly into constructors; nothing reads it through a global.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	OpenRouter OpenRouterConfig `yaml:"openrouter" mapstructure:"openrouter"`
	Enrich     EnrichConfig     `yaml:"enrich" mapstructure:"enrich"`
	PDF        PDFConfig        `yaml:"pdf" mapstructure:"pdf"`
	OCR        OCRConfig        `yaml:"ocr" mapstructure:"ocr"`
	Analysis   AnalysisConfig   `yaml:"analysis" mapstructure:"analysis"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// OpenRouterConfig holds scoring-model API settings.
type OpenRouterConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// EnrichConfig configures the metadata enrichment cascade.
type EnrichConfig struct {
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	ContactEmail      string  `yaml:"contact_email" mapstructure:"contact_email"`
	SourceTimeoutSecs int     `yaml:"source_timeout_secs" mapstructure:"source_timeout_secs"`
	// SourceCallsPerSec paces consecutive calls to upstream metadata APIs.
	SourceCallsPerSec float64 `yaml:"source_calls_per_sec" mapstructure:"source_calls_per_sec"`
	// RecordsPerSec paces the start of each record in a run.
	RecordsPerSec float64 `yaml:"records_per_sec" mapstructure:"records_per_sec"`
	MaxLimit      int     `yaml:"max_limit" mapstructure:"max_limit"`
}

// PDFConfig configures PDF download and extraction.
type PDFConfig struct {
	MaxBytes     int64 `yaml:"max_bytes" mapstructure:"max_bytes"`
	MaxPages     int   `yaml:"max_pages" mapstructure:"max_pages"`
	TimeoutSecs  int   `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MinTextChars int   `yaml:"min_text_chars" mapstructure:"min_text_chars"`
}

// OCRConfig configures PDF text extraction.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralKey    string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel  string `yaml:"mistral_ocr_model" mapstructure:"mistral_ocr_model"`
}

// AnalysisConfig configures the batch scorer.
type AnalysisConfig struct {
	SubBatchSize     int     `yaml:"sub_batch_size" mapstructure:"sub_batch_size"`
	MinWordCount     int     `yaml:"min_word_count" mapstructure:"min_word_count"`
	MaxLimit         int     `yaml:"max_limit" mapstructure:"max_limit"`
	TokensPerRecord  int     `yaml:"tokens_per_record" mapstructure:"tokens_per_record"`
	RetryTokenFloor  int     `yaml:"retry_token_floor" mapstructure:"retry_token_floor"`
	RetryTokenMargin int     `yaml:"retry_token_margin" mapstructure:"retry_token_margin"`
	ModelTimeoutSecs int     `yaml:"model_timeout_secs" mapstructure:"model_timeout_secs"`
	SubBatchesPerSec float64 `yaml:"sub_batches_per_sec" mapstructure:"sub_batches_per_sec"`
	BudgetEpsilonUSD float64 `yaml:"budget_epsilon_usd" mapstructure:"budget_epsilon_usd"`
	Temperature      float64 `yaml:"temperature" mapstructure:"temperature"`
}

// PricingConfig holds per-model token pricing (USD per million tokens).
type PricingConfig struct {
	PerMTok        map[string]float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
	DefaultPerMTok float64            `yaml:"default_per_mtok" mapstructure:"default_per_mtok"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("STORYSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "storyscout.db")
	v.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("openrouter.model", "anthropic/claude-sonnet-4")
	v.SetDefault("enrich.user_agent", "storyscout/1.0 (mailto:press@oeaw.ac.at)")
	v.SetDefault("enrich.contact_email", "press@oeaw.ac.at")
	v.SetDefault("enrich.source_timeout_secs", 10)
	v.SetDefault("enrich.source_calls_per_sec", 10.0)
	v.SetDefault("enrich.records_per_sec", 10.0)
	v.SetDefault("enrich.max_limit", 500)
	v.SetDefault("pdf.max_bytes", 10*1024*1024)
	v.SetDefault("pdf.max_pages", 3)
	v.SetDefault("pdf.timeout_secs", 15)
	v.SetDefault("pdf.min_text_chars", 50)
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.mistral_ocr_model", "pixtral-large-latest")
	v.SetDefault("analysis.sub_batch_size", 3)
	v.SetDefault("analysis.min_word_count", 100)
	v.SetDefault("analysis.max_limit", 100)
	v.SetDefault("analysis.tokens_per_record", 500)
	v.SetDefault("analysis.retry_token_floor", 150)
	v.SetDefault("analysis.retry_token_margin", 50)
	v.SetDefault("analysis.model_timeout_secs", 60)
	v.SetDefault("analysis.sub_batches_per_sec", 1.0)
	v.SetDefault("analysis.budget_epsilon_usd", 0.01)
	v.SetDefault("analysis.temperature", 0.4)
	v.SetDefault("pricing.default_per_mtok", 5.0)
	v.SetDefault("pricing.per_mtok", map[string]float64{
		"anthropic/claude-sonnet-4":             9.0,
		"anthropic/claude-3.5-sonnet":           9.0,
		"deepseek/deepseek-chat":                0.5,
		"meta-llama/llama-3.2-3b-instruct:free": 0.0,
		"google/gemini-2.0-flash-001":           0.15,
		"openai/gpt-4o-mini":                    0.6,
		"openai/gpt-4o":                         7.5,
	})
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields required for the given run mode
// ("enrich", "analyze", "serve", "export").
func (c *Config) Validate(mode string) error {
	var missing []string

	requireStore := func() {
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required")
		}
	}

	switch mode {
	case "enrich", "export":
		requireStore()
	case "analyze":
		requireStore()
		if c.OpenRouter.Key == "" {
			missing = append(missing, "openrouter.key is required")
		}
	case "serve":
		requireStore()
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Analysis.SubBatchSize < 1 || c.Analysis.SubBatchSize > 5 {
		missing = append(missing, "analysis.sub_batch_size must be between 1 and 5")
	}
	if c.PDF.MaxBytes <= 0 {
		missing = append(missing, "pdf.max_bytes must be > 0")
	}
	if c.PDF.MaxPages <= 0 {
		missing = append(missing, "pdf.max_pages must be > 0")
	}

	if len(missing) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(missing, "; "))
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
