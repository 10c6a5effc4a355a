package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/cowin-monitor/src/availability"
	"github.com/cowin-monitor/src/selection"
)

// Config holds all configuration values.
type Config struct {
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	AppPort  string `mapstructure:"APP_PORT"`

	// CoWIN API access.
	CowinBaseURL      string        `mapstructure:"COWIN_BASE_URL"`
	HTTPTimeout       time.Duration `mapstructure:"HTTP_TIMEOUT"`
	RequestsPerMinute int           `mapstructure:"REQUESTS_PER_MINUTE"`
	RequestBurst      int           `mapstructure:"REQUEST_BURST"`
	WorkerPoolSize    int           `mapstructure:"WORKER_POOL_SIZE"`
	ProjectionPolicy  string        `mapstructure:"PROJECTION_POLICY"`

	// Selection persistence.
	SelectionStore string        `mapstructure:"SELECTION_STORE"`
	SelectionTTL   time.Duration `mapstructure:"SELECTION_TTL"`
	RedisAddr      string        `mapstructure:"REDIS_ADDR"`
	RedisPassword  string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB        int           `mapstructure:"REDIS_DB"`
	MySQLDSN       string        `mapstructure:"MYSQL_DSN"`

	// Telegram front end.
	TelegramToken string `mapstructure:"TELEGRAM_TOKEN"`
	WatchSchedule string `mapstructure:"WATCH_SCHEDULE"`
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) Policy() availability.Policy {
	p, _ := availability.ParsePolicy(c.ProjectionPolicy)
	return p
}

func (c Config) SelectionOptions() selection.Options {
	return selection.Options{
		Backend:       c.SelectionStore,
		TTL:           c.SelectionTTL,
		RedisAddr:     c.RedisAddr,
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
		MySQLDSN:      c.MySQLDSN,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("COWIN_BASE_URL", "https://cdn-api.co-vin.in/api/v2/")
	v.SetDefault("HTTP_TIMEOUT", "10s")
	v.SetDefault("REQUESTS_PER_MINUTE", 20)
	v.SetDefault("REQUEST_BURST", 5)
	v.SetDefault("WORKER_POOL_SIZE", availability.ProjectionWeeks)
	v.SetDefault("PROJECTION_POLICY", "best-effort")
	v.SetDefault("SELECTION_STORE", selection.BackendMemory)
	// Five years, like the cookie the web front end used to keep.
	v.SetDefault("SELECTION_TTL", "43800h")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("MYSQL_DSN", "")
	v.SetDefault("TELEGRAM_TOKEN", "")
	v.SetDefault("WATCH_SCHEDULE", "@every 20m")
}

// Load reads config.yaml from . or ./config when present, then environment
// variables, on top of the defaults.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if _, err := availability.ParsePolicy(c.ProjectionPolicy); err != nil {
		return err
	}
	switch c.SelectionStore {
	case selection.BackendMemory, selection.BackendRedis:
	case selection.BackendMySQL:
		if c.MySQLDSN == "" {
			return errors.New("MYSQL_DSN is required for the mysql selection store")
		}
	default:
		return fmt.Errorf("unknown SELECTION_STORE %q", c.SelectionStore)
	}
	if c.RequestsPerMinute <= 0 {
		return fmt.Errorf("REQUESTS_PER_MINUTE must be positive, got %d", c.RequestsPerMinute)
	}
	if c.RequestBurst <= 0 {
		return fmt.Errorf("REQUEST_BURST must be positive, got %d", c.RequestBurst)
	}
	if c.WorkerPoolSize <= 0 {
		return fmt.Errorf("WORKER_POOL_SIZE must be positive, got %d", c.WorkerPoolSize)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout)
	}
	if c.SelectionTTL <= 0 {
		return fmt.Errorf("SELECTION_TTL must be positive, got %s", c.SelectionTTL)
	}
	return nil
}
