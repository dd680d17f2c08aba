package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/callflow/internal/telemetry"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig      `yaml:"store" mapstructure:"store"`
	Server    ServerConfig     `yaml:"server" mapstructure:"server"`
	Log       LogConfig        `yaml:"log" mapstructure:"log"`
	Flows     FlowsConfig      `yaml:"flows" mapstructure:"flows"`
	Outcome   OutcomeConfig    `yaml:"outcome" mapstructure:"outcome"`
	Telemetry telemetry.Config `yaml:"telemetry" mapstructure:"telemetry"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// FlowsConfig configures the objection flow catalog and stored flow state.
type FlowsConfig struct {
	// CatalogPath optionally replaces the built-in definitions with a YAML file.
	CatalogPath      string `yaml:"catalog_path" mapstructure:"catalog_path"`
	StateTTLMinutes  int    `yaml:"state_ttl_minutes" mapstructure:"state_ttl_minutes"`
	StrictCompletion bool   `yaml:"strict_completion" mapstructure:"strict_completion"`
}

// StateTTL returns the flow state lifetime.
func (f FlowsConfig) StateTTL() time.Duration {
	return time.Duration(f.StateTTLMinutes) * time.Minute
}

// OutcomeConfig configures outcome recording.
type OutcomeConfig struct {
	// CreateRetries is the total number of attempts for a create that hits
	// lock contention.
	CreateRetries int `yaml:"create_retries" mapstructure:"create_retries"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CALLFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without a default are invisible to Unmarshal unless bound.
	for _, key := range []string{"store.database_url", "flows.catalog_path"} {
		if err := v.BindEnv(key); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit_rps", 20.0)
	v.SetDefault("server.rate_limit_burst", 40)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("flows.state_ttl_minutes", 120)
	v.SetDefault("flows.strict_completion", false)
	v.SetDefault("outcome.create_retries", 3)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.metric_interval_secs", 30)

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

// Validate checks the settings a command needs. mode is "serve" for the
// HTTP server or "store" for commands that only touch the database.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Server.RateLimitRPS < 0 {
			errs = append(errs, "server.rate_limit_rps must be >= 0")
		}
		if c.Server.RateLimitBurst < 0 {
			errs = append(errs, "server.rate_limit_burst must be >= 0")
		}
		if c.Flows.StateTTLMinutes < 1 {
			errs = append(errs, "flows.state_ttl_minutes must be >= 1")
		}
		if c.Outcome.CreateRetries < 1 || c.Outcome.CreateRetries > 10 {
			errs = append(errs, "outcome.create_retries must be between 1 and 10")
		}
	case "store":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
		if c.Store.MaxConns < 1 {
			errs = append(errs, "store.max_conns must be >= 1")
		}
		if c.Store.MinConns < 0 || c.Store.MinConns > c.Store.MaxConns {
			errs = append(errs, "store.min_conns must be between 0 and store.max_conns")
		}
	case "sqlite":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for sqlite (file path)")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be postgres or sqlite, got %q", c.Store.Driver))
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
