// Package config resolves process configuration from defaults, an optional
// config file and the environment. It is read once at start-up.
package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. AIRTABLE_MCP_SERVER_ADDR.
const EnvPrefix = "AIRTABLE_MCP"

// Config is the resolved configuration.
type Config struct {
	Airtable  AirtableConfig  `mapstructure:"airtable"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Server    ServerConfig    `mapstructure:"server"`
	Session   SessionConfig   `mapstructure:"session"`
	Log       LogConfig       `mapstructure:"log"`
}

type AirtableConfig struct {
	APIKey         string        `mapstructure:"api_key" validate:"required"`
	BaseID         string        `mapstructure:"base_id"`
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	CallTimeout    time.Duration `mapstructure:"call_timeout" validate:"gt=0"`
	PageSize       int           `mapstructure:"page_size" validate:"min=1,max=100"`
}

type RateLimitConfig struct {
	Ceiling int           `mapstructure:"ceiling" validate:"min=1"`
	Window  time.Duration `mapstructure:"window" validate:"gt=0"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" validate:"min=1,max=20"`
	BaseDelay   time.Duration `mapstructure:"base_delay" validate:"gt=0"`
	Multiplier  float64       `mapstructure:"multiplier" validate:"gte=1"`
	Jitter      time.Duration `mapstructure:"jitter" validate:"gte=0"`
	MaxDelay    time.Duration `mapstructure:"max_delay" validate:"gtefield=BaseDelay"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	RequireSession  bool          `mapstructure:"require_session"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type SessionConfig struct {
	Timeout         time.Duration `mapstructure:"timeout" validate:"gt=0"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

// SetDefaults registers every key with its default value. Keys must be known
// to viper for environment overrides to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("airtable.api_key", "")
	v.SetDefault("airtable.base_id", "")
	v.SetDefault("airtable.base_url", "https://api.airtable.com/v0")
	v.SetDefault("airtable.request_timeout", "10s")
	v.SetDefault("airtable.call_timeout", "60s")
	v.SetDefault("airtable.page_size", 100)

	v.SetDefault("rate_limit.ceiling", 5)
	v.SetDefault("rate_limit.window", "1s")

	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.base_delay", "1s")
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter", "250ms")
	v.SetDefault("retry.max_delay", "30s")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.require_session", true)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("session.timeout", "1h")
	v.SetDefault("session.cleanup_interval", "5m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Bind wires defaults and environment lookup into v. The credential variables
// of the original deployment are honoured without the prefix.
func Bind(v *viper.Viper) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("airtable.api_key", EnvPrefix+"_AIRTABLE_API_KEY", "AIRTABLE_API_KEY")
	_ = v.BindEnv("airtable.base_id", EnvPrefix+"_AIRTABLE_BASE_ID", "AIRTABLE_BASE_ID")
}

// Load reads the optional config file into v and returns the validated result.
// A missing default config file is not an error; a missing explicit one is.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	Bind(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", configFile)
		}
	} else {
		v.SetConfigName("airtable-mcp")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/airtable-mcp")
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errors.Wrap(err, "read config file")
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Namespace()+" ("+fe.Tag()+")")
			}
			return errors.Newf("invalid configuration: %s", strings.Join(fields, ", "))
		}
		return errors.Wrap(err, "invalid configuration")
	}
	return nil
}

// NewLogger builds the process logger. Console output is for humans; json is
// for log collectors.
func NewLogger(cfg LogConfig, w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), errors.Wrapf(err, "parse log level %q", cfg.Level)
	}

	out := w
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}
