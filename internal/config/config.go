// Package config loads CLI configuration from reporter.yaml, REPORTER_*
// environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/Sternrassler/reporter-client/pkg/client"
	"github.com/Sternrassler/reporter-client/pkg/logging"
	"github.com/Sternrassler/reporter-client/pkg/pagination"
	"github.com/Sternrassler/reporter-client/pkg/table"
)

// EnvPrefix is the prefix for environment overrides, e.g. REPORTER_PAGE_SIZE or
// REPORTER_LOG_LEVEL.
const EnvPrefix = "REPORTER"

// Config is the resolved CLI configuration.
type Config struct {
	Endpoint    string        `mapstructure:"endpoint"`
	UserAgent   string        `mapstructure:"user_agent"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MinInterval time.Duration `mapstructure:"min_interval"`

	PageSize  int    `mapstructure:"page_size"`
	Separator string `mapstructure:"separator"`
	MaxLevel  int    `mapstructure:"max_level"`
	Output    string `mapstructure:"output"`

	Redis  RedisConfig  `mapstructure:"redis"`
	Log    LogConfig    `mapstructure:"log"`
	Server ServerConfig `mapstructure:"server"`
}

// RedisConfig enables the shared request pacer when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// ServerConfig configures the serve command.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	cc := client.DefaultConfig()
	return Config{
		Endpoint:    cc.Endpoint,
		UserAgent:   cc.UserAgent,
		Timeout:     cc.Timeout,
		MinInterval: cc.MinInterval,
		PageSize:    pagination.DefaultPageSize,
		Separator:   table.DefaultSeparator,
		Output:      string(table.FormatJSON),
		Redis:       RedisConfig{},
		Log:         LogConfig{Level: "info"},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Binder registers extra sources, typically cobra flags, on the viper instance
// before the config is decoded.
type Binder func(v *viper.Viper) error

// Load resolves the configuration. Precedence, highest first: bound flags,
// REPORTER_* environment, cfgFile (or ./reporter.yaml if present), defaults.
// An explicit cfgFile that cannot be read is an error.
func Load(cfgFile string, binders ...Binder) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("reporter")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/reporter")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	for _, bind := range binders {
		if err := bind(v); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("endpoint", d.Endpoint)
	v.SetDefault("user_agent", d.UserAgent)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("min_interval", d.MinInterval)
	v.SetDefault("page_size", d.PageSize)
	v.SetDefault("separator", d.Separator)
	v.SetDefault("max_level", d.MaxLevel)
	v.SetDefault("output", d.Output)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.pretty", d.Log.Pretty)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
}

// Validate checks values the client and retriever would otherwise reject later.
func (c *Config) Validate() error {
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be > 0 (got %d)", c.PageSize)
	}
	if c.MaxLevel < 0 {
		return fmt.Errorf("max_level must be >= 0 (got %d)", c.MaxLevel)
	}
	if c.Separator == "" {
		return fmt.Errorf("separator is required")
	}
	if _, err := table.ParseFormat(c.Output); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// Format returns the parsed output format.
func (c *Config) Format() table.Format {
	f, _ := table.ParseFormat(c.Output)
	return f
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = c.Log.Level
	lc.Pretty = c.Log.Pretty
	lc.Service = "reporter"
	return lc
}

// RedisClient returns a client for the shared pacer, or nil when no address is
// configured.
func (c *Config) RedisClient() *redis.Client {
	if c.Redis.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	})
}

// ClientConfig returns the transport configuration. rdb may be nil.
func (c *Config) ClientConfig(rdb *redis.Client) client.Config {
	return client.Config{
		Endpoint:    c.Endpoint,
		UserAgent:   c.UserAgent,
		Timeout:     c.Timeout,
		MinInterval: c.MinInterval,
		Redis:       rdb,
	}
}

// RetrieverConfig returns the pagination configuration.
func (c *Config) RetrieverConfig() pagination.Config {
	return pagination.Config{
		PageSize: c.PageSize,
		Table: table.Options{
			Separator: c.Separator,
			MaxLevel:  c.MaxLevel,
		},
	}
}
