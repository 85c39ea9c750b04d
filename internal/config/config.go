package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode            string        `mapstructure:"mode"`
	Port            int           `mapstructure:"port"`
	ReadLimit       int64         `mapstructure:"read_limit"`
	PingPeriod      time.Duration `mapstructure:"ping_period"`
	PongWait        time.Duration `mapstructure:"pong_wait"`
	WriteWait       time.Duration `mapstructure:"write_wait"`
	SendBuffer      int           `mapstructure:"send_buffer"`
	Secret          string        `mapstructure:"secret"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	MaxBodyBytes    int           `mapstructure:"max_body_bytes"`
	StoreTimeout    time.Duration `mapstructure:"store_timeout"`
	MalformedLimit  int           `mapstructure:"malformed_limit"`
	MalformedWindow time.Duration `mapstructure:"malformed_window"`
	Backpressure    string        `mapstructure:"backpressure"`
	MetricsEnabled  bool          `mapstructure:"metrics_enabled"`

	Auth      AuthConfig      `mapstructure:"auth"`
	Store     StoreConfig     `mapstructure:"store"`
	Cipher    CipherConfig    `mapstructure:"cipher"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	Log       LogConfig       `mapstructure:"log"`
	Directory DirectoryConfig `mapstructure:"directory"`
}

type AuthConfig struct {
	Mode      string `mapstructure:"mode"`
	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Path   string `mapstructure:"path"`
}

type CipherConfig struct {
	Key string `mapstructure:"key"`
}

type BrokerConfig struct {
	Driver    string `mapstructure:"driver"`
	RedisAddr string `mapstructure:"redis_addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type DirectoryConfig struct {
	Seed []SeedEntry `mapstructure:"seed"`
}

type SeedEntry struct {
	ID          string `mapstructure:"id"`
	DisplayName string `mapstructure:"display_name"`
}

const envPrefix = "DUET"

func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile reads fileName if present, then applies DUET_* environment overrides.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Str("store", cfg.Store.Driver).Str("broker", cfg.Broker.Driver).Str("auth", cfg.Auth.Mode).Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("secret", "")
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("max_body_bytes", 4096)
	v.SetDefault("store_timeout", "5s")
	v.SetDefault("malformed_limit", 0)
	v.SetDefault("malformed_window", "1m")
	v.SetDefault("backpressure", "disconnect")
	v.SetDefault("metrics_enabled", true)

	v.SetDefault("auth.mode", "jwt")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "")

	v.SetDefault("store.driver", "badger")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.path", "./data")

	v.SetDefault("cipher.key", "")

	v.SetDefault("broker.driver", "local")
	v.SetDefault("broker.redis_addr", "localhost:6379")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Auth.Mode {
	case "jwt":
		if c.Auth.JWTSecret == "" {
			errs = append(errs, errors.New("auth.jwt_secret is required for auth.mode=jwt"))
		}
	case "cookie":
		if c.Secret == "" {
			errs = append(errs, errors.New("secret is required for auth.mode=cookie"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown auth.mode %q", c.Auth.Mode))
	}
	switch c.Store.Driver {
	case "badger":
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for store.driver=badger"))
		}
	case "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for store.driver=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	switch c.Broker.Driver {
	case "local":
	case "redis":
		if c.Broker.RedisAddr == "" {
			errs = append(errs, errors.New("broker.redis_addr is required for broker.driver=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown broker.driver %q", c.Broker.Driver))
	}
	if c.Cipher.Key == "" && c.Secret == "" {
		errs = append(errs, errors.New("cipher.key or secret is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	return errors.Join(errs...)
}
