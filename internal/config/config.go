package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	AppPort     int    `mapstructure:"APP_PORT"`
	AppTimezone string `mapstructure:"APP_TIMEZONE"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogFormat   string `mapstructure:"LOG_FORMAT"`

	SwitchBotToken         string `mapstructure:"SWITCHBOT_TOKEN"`
	SwitchBotSecret        string `mapstructure:"SWITCHBOT_SECRET"`
	SwitchBotBaseURL       string `mapstructure:"SWITCHBOT_BASE_URL"`
	SwitchBotWebhookSecret string `mapstructure:"SWITCHBOT_WEBHOOK_SECRET"`
	SwitchBotRatePerMinute int    `mapstructure:"SWITCHBOT_RATE_PER_MINUTE"`
	SwitchBotRatePerHour   int    `mapstructure:"SWITCHBOT_RATE_PER_HOUR"`
	SwitchBotRatePerDay    int    `mapstructure:"SWITCHBOT_RATE_PER_DAY"`
	SwitchBotMaxRetries    int    `mapstructure:"SWITCHBOT_MAX_RETRIES"`

	CacheDevicesTTL time.Duration `mapstructure:"CACHE_DEVICES_TTL"`
	CacheStatusTTL  time.Duration `mapstructure:"CACHE_STATUS_TTL"`
	CacheScenesTTL  time.Duration `mapstructure:"CACHE_SCENES_TTL"`

	RedisAddr            string `mapstructure:"REDIS_ADDR"`
	TaskQueueEnabled     bool   `mapstructure:"TASKQUEUE_ENABLED"`
	TaskQueueConcurrency int    `mapstructure:"TASKQUEUE_CONCURRENCY"`

	DBURL string `mapstructure:"DB_URL"`

	MQTTBroker      string `mapstructure:"MQTT_BROKER"`
	MQTTClientID    string `mapstructure:"MQTT_CLIENT_ID"`
	MQTTTopicPrefix string `mapstructure:"MQTT_TOPIC_PREFIX"`

	OpenAIAPIKey  string `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL string `mapstructure:"OPENAI_BASE_URL"`
	OpenAIModel   string `mapstructure:"OPENAI_MODEL"`

	MDNSEnabled   bool   `mapstructure:"MDNS_ENABLED"`
	MDNSLocalName string `mapstructure:"MDNS_LOCAL_NAME"`
}

var defaults = map[string]any{
	"APP_PORT":                  8080,
	"APP_TIMEZONE":              "Local",
	"LOG_LEVEL":                 "info",
	"LOG_FORMAT":                "text",
	"SWITCHBOT_BASE_URL":        "https://api.switch-bot.com/v1.1",
	"SWITCHBOT_RATE_PER_MINUTE": 100,
	"SWITCHBOT_RATE_PER_HOUR":   1000,
	"SWITCHBOT_RATE_PER_DAY":    10000,
	"SWITCHBOT_MAX_RETRIES":     3,
	"CACHE_DEVICES_TTL":         "10m",
	"CACHE_STATUS_TTL":          "30s",
	"CACHE_SCENES_TTL":          "30m",
	"TASKQUEUE_ENABLED":         false,
	"TASKQUEUE_CONCURRENCY":     10,
	"MQTT_CLIENT_ID":            "smartgateway",
	"MQTT_TOPIC_PREFIX":         "smartgateway",
	"OPENAI_BASE_URL":           "https://api.openai.com/v1",
	"OPENAI_MODEL":              "gpt-4o-mini",
	"MDNS_ENABLED":              false,
	"MDNS_LOCAL_NAME":           "smartgateway.local",
	// registered so AutomaticEnv picks them up during Unmarshal
	"SWITCHBOT_TOKEN":          "",
	"SWITCHBOT_SECRET":         "",
	"SWITCHBOT_WEBHOOK_SECRET": "",
	"REDIS_ADDR":               "",
	"DB_URL":                   "",
	"MQTT_BROKER":              "",
	"OPENAI_API_KEY":           "",
}

// LoadConfig reads configuration from .env, config.yaml and env vars, in
// increasing precedence
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config.yaml: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Location resolves AppTimezone, falling back to the host zone
func (c *Config) Location() *time.Location {
	if c.AppTimezone == "" || c.AppTimezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.AppTimezone)
	if err != nil {
		slog.Warn("unknown timezone, using host zone", "timezone", c.AppTimezone, "error", err)
		return time.Local
	}
	return loc
}

// Addr is the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.AppPort)
}
