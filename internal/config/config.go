package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Albert     AlbertConfig     `yaml:"albert" mapstructure:"albert"`
	Mistral    MistralConfig    `yaml:"mistral" mapstructure:"mistral"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	OCR        OCRConfig        `yaml:"ocr" mapstructure:"ocr"`
	Validation ValidationConfig `yaml:"validation" mapstructure:"validation"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AlbertConfig holds settings for the Albert (Etalab) API, used by the
// private-data extractor.
type AlbertConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// MistralConfig holds Mistral API settings, used by the general
// extractor.
type MistralConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings, the alternate backend
// for the general extractor.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// ExtractionConfig configures which strategies run and how remote calls
// are throttled across concurrent quote checks.
type ExtractionConfig struct {
	GeneralBackend    string   `yaml:"general_backend" mapstructure:"general_backend"` // "mistral" or "anthropic"
	Required          []string `yaml:"required" mapstructure:"required"`               // strategy names whose failure aborts the run
	RequestsPerSecond float64  `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	RequestBurst      int      `yaml:"request_burst" mapstructure:"request_burst"`
	CallTimeoutSecs   int      `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
	MaxCallRetries    int      `yaml:"max_call_retries" mapstructure:"max_call_retries"` // extra attempts after a transient transport failure
}

// OCRConfig configures how quote PDFs are turned into text before
// extraction.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"` // "local" (pdftotext) or "mistral"
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	Model         string `yaml:"model" mapstructure:"model"` // mistral OCR model override
}

// ValidationConfig configures the validator.
type ValidationConfig struct {
	RulesFile string `yaml:"rules_file" mapstructure:"rules_file"` // optional override of the embedded geste rules
}

// ServerConfig configures the API server.
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
	v.SetEnvPrefix("QUOTECHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "quotecheck.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("albert.base_url", "https://albert.api.etalab.gouv.fr/v1")
	v.SetDefault("albert.model", "meta-llama/Llama-3.1-70B-Instruct")
	v.SetDefault("mistral.base_url", "https://api.mistral.ai/v1")
	v.SetDefault("mistral.model", "mistral-large-latest")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("extraction.general_backend", "mistral")
	v.SetDefault("extraction.requests_per_second", 2.0)
	v.SetDefault("extraction.request_burst", 4)
	v.SetDefault("extraction.call_timeout_secs", 120)
	v.SetDefault("extraction.max_call_retries", 0)

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
