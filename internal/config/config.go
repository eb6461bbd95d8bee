package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/expert-registry/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Inbox     InboxConfig     `yaml:"inbox" mapstructure:"inbox"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Scan      ScanConfig      `yaml:"scan" mapstructure:"scan"`
	Screen    ScreenConfig    `yaml:"screen" mapstructure:"screen"`
	Project   ProjectConfig   `yaml:"project" mapstructure:"project"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string           `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	SonnetModel string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
	HaikuModel  string `yaml:"haiku_model" mapstructure:"haiku_model"`
}

// InboxConfig points at the mailbox and tunes the scan filter.
type InboxConfig struct {
	Dir           string   `yaml:"dir" mapstructure:"dir"`
	SenderDomains []string `yaml:"sender_domains" mapstructure:"sender_domains"`
	Keywords      []string `yaml:"keywords" mapstructure:"keywords"`
}

// IngestConfig tunes matching and duplicate resolution.
type IngestConfig struct {
	AutoMergeThreshold float64 `yaml:"auto_merge_threshold" mapstructure:"auto_merge_threshold"`
	MatchThreshold     float64 `yaml:"match_threshold" mapstructure:"match_threshold"`
}

// ScanConfig tunes batch scans.
type ScanConfig struct {
	MaxMessages   int `yaml:"max_messages" mapstructure:"max_messages"`
	MinBodyLength int `yaml:"min_body_length" mapstructure:"min_body_length"`
}

// ScreenConfig tunes bulk screening.
type ScreenConfig struct {
	Concurrency       int     `yaml:"concurrency" mapstructure:"concurrency"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	RubricPath        string  `yaml:"rubric_path" mapstructure:"rubric_path"`
}

// ProjectConfig identifies the active project.
type ProjectConfig struct {
	ID         string `yaml:"id" mapstructure:"id"`
	Hypothesis string `yaml:"hypothesis" mapstructure:"hypothesis"`
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
	v.SetEnvPrefix("EXPERTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "experts.db")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("inbox.dir", "inbox")
	v.SetDefault("inbox.sender_domains", []string{
		"alphasights.com", "guidepoint.com", "glg.it", "glgroup.com",
		"tegus.co", "thirdbridge.com",
	})
	v.SetDefault("inbox.keywords", []string{"expert", "screener", "availability"})
	v.SetDefault("ingest.auto_merge_threshold", 0.85)
	v.SetDefault("ingest.match_threshold", 0.9)
	v.SetDefault("scan.max_messages", 50)
	v.SetDefault("scan.min_body_length", 50)
	v.SetDefault("screen.concurrency", 5)
	v.SetDefault("screen.requests_per_second", 2)
	v.SetDefault("screen.rubric_path", "rubric.yaml")

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
