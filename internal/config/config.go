package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Dataset    DatasetConfig    `yaml:"dataset" mapstructure:"dataset"`
	Docs       DocsConfig       `yaml:"docs" mapstructure:"docs"`
	Checkpoint CheckpointConfig `yaml:"checkpoint" mapstructure:"checkpoint"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Enrich     EnrichConfig     `yaml:"enrich" mapstructure:"enrich"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// DatasetConfig locates the canonical dataset file.
type DatasetConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// DocsConfig configures the raw document store.
type DocsConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	Dir    string `yaml:"dir" mapstructure:"dir"`
	Path   string `yaml:"path" mapstructure:"path"`
}

// CheckpointConfig locates the checkpoint directory.
type CheckpointConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// AnthropicConfig holds annotation service settings.
type AnthropicConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	Model             string  `yaml:"model" mapstructure:"model"`
	MaxTokens         int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	CallTimeoutSecs   int     `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// CallTimeout returns the per-call timeout as a duration.
func (c AnthropicConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSecs) * time.Second
}

// EnrichConfig holds run-level knobs for the enrichment pipeline.
type EnrichConfig struct {
	Workers     int `yaml:"workers" mapstructure:"workers"`
	BatchSize   int `yaml:"batch_size" mapstructure:"batch_size"`
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
	RuleWorkers int `yaml:"rule_workers" mapstructure:"rule_workers"`
}

// ExtractConfig points at an optional vocabulary overlay.
type ExtractConfig struct {
	VocabPath string `yaml:"vocab_path" mapstructure:"vocab_path"`
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
	v.SetEnvPrefix("IMMI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("dataset.path", "data/cases.csv")
	v.SetDefault("docs.driver", "dir")
	v.SetDefault("docs.dir", "data/documents")
	v.SetDefault("docs.path", "data/documents.db")
	v.SetDefault("checkpoint.dir", "data/checkpoints")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.call_timeout_secs", 120)
	v.SetDefault("anthropic.requests_per_second", 2.0)
	v.SetDefault("enrich.workers", 4)
	v.SetDefault("enrich.batch_size", 10)
	v.SetDefault("enrich.max_attempts", 4)
	v.SetDefault("enrich.rule_workers", 8)
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
