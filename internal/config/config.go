package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Engine        EngineConfig        `mapstructure:"engine"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MigrationsPath string `mapstructure:"migrations_path"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type EngineConfig struct {
	EvaluationInterval time.Duration `mapstructure:"evaluation_interval"`
	MaxConcurrentEvals int           `mapstructure:"max_concurrent_evals"`
	HistoryWindow      time.Duration `mapstructure:"history_window"`
}

type NotificationsConfig struct {
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryInterval   time.Duration `mapstructure:"retry_interval"`
	SMTP            SMTPConfig    `mapstructure:"smtp"`
	SMS             SMSConfig     `mapstructure:"sms"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	From     string `mapstructure:"from"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type SMSConfig struct {
	GatewayURL string `mapstructure:"gateway_url"`
	APIKey     string `mapstructure:"api_key"`
	From       string `mapstructure:"from"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from config.yaml (working directory or /etc/bms)
// with BMS_-prefixed environment variable overrides.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/bms")

	v.SetEnvPrefix("BMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.path", "./data/bms.db")
	v.SetDefault("database.migrations_path", "./migrations")
	v.SetDefault("database.max_connections", 10)

	v.SetDefault("engine.evaluation_interval", 5*time.Minute)
	v.SetDefault("engine.max_concurrent_evals", 10)
	v.SetDefault("engine.history_window", 24*time.Hour)

	v.SetDefault("notifications.dispatch_timeout", 15*time.Second)
	v.SetDefault("notifications.max_retries", 3)
	v.SetDefault("notifications.retry_interval", 30*time.Second)
	v.SetDefault("notifications.smtp.port", 587)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
