// Package config loads featsource configuration from config.yaml and
// FEATSOURCE_* environment variables, and sets up logging.
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
	Source  SourceConfig  `yaml:"source" mapstructure:"source"`
	PostGIS PostGISConfig `yaml:"postgis" mapstructure:"postgis"`
	Tiger   TigerConfig   `yaml:"tiger" mapstructure:"tiger"`
	Export  ExportConfig  `yaml:"export" mapstructure:"export"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Fetch   FetchConfig   `yaml:"fetch" mapstructure:"fetch"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// SourceConfig controls how catalogs are opened.
type SourceConfig struct {
	Update   bool `yaml:"update" mapstructure:"update"`
	MaxDepth int  `yaml:"max_depth" mapstructure:"max_depth"`
}

// PostGISConfig configures the postgis store.
type PostGISConfig struct {
	FIDColumn string `yaml:"fid_column" mapstructure:"fid_column"`
}

// TigerConfig configures the TIGER/Line store.
type TigerConfig struct {
	Charset string `yaml:"charset" mapstructure:"charset"`
	Release string `yaml:"release" mapstructure:"release"`
}

// ExportConfig configures PostGIS export.
type ExportConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
	BatchSize   int    `yaml:"batch_size" mapstructure:"batch_size"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// FetchConfig configures archive downloads.
type FetchConfig struct {
	TempDir          string `yaml:"temp_dir" mapstructure:"temp_dir"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts      int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int    `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	UserAgent        string `yaml:"user_agent" mapstructure:"user_agent"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FEATSOURCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("source.update", false)
	v.SetDefault("source.max_depth", 32)
	v.SetDefault("postgis.fid_column", "ogc_fid")
	v.SetDefault("tiger.charset", "ISO-8859-1")
	v.SetDefault("tiger.release", "tiger2006se")
	v.SetDefault("export.database_url", "")
	v.SetDefault("export.schema", "featsource")
	v.SetDefault("export.batch_size", 5000)
	v.SetDefault("export.concurrency", 3)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("fetch.temp_dir", "/tmp/featsource")
	v.SetDefault("fetch.timeout_secs", 300)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.initial_backoff_ms", 1000)
	v.SetDefault("fetch.user_agent", "featsource/1.0")

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

// Validate checks the settings a command mode depends on. Modes are
// "open", "export", "serve" and "fetch".
func (c *Config) Validate(mode string) error {
	var errs []string
	if c.Source.MaxDepth < 1 {
		errs = append(errs, "source.max_depth must be >= 1")
	}

	switch mode {
	case "open":
	case "export":
		if c.Export.DatabaseURL == "" {
			errs = append(errs, "export.database_url is required")
		}
		if c.Export.BatchSize < 1 {
			errs = append(errs, "export.batch_size must be >= 1")
		}
		if c.Export.Concurrency < 1 || c.Export.Concurrency > 32 {
			errs = append(errs, "export.concurrency must be between 1 and 32")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	case "fetch":
		if c.Fetch.TempDir == "" {
			errs = append(errs, "fetch.temp_dir is required")
		}
		if c.Fetch.MaxAttempts < 1 {
			errs = append(errs, "fetch.max_attempts must be >= 1")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
