package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	ServerPort      string `mapstructure:"SERVER_PORT"`
	Environment     string `mapstructure:"ENVIRONMENT"`
	LogLevel        string `mapstructure:"LOG_LEVEL"`
	FirebaseProject string `mapstructure:"FIREBASE_PROJECT_ID"`

	// Comma separated. Empty allows every origin.
	AllowedOrigins []string `mapstructure:"ALLOWED_ORIGINS"`

	// Service account credentials: JSON takes precedence over the file path.
	ServiceAccountJSON string `mapstructure:"FIREBASE_SERVICE_ACCOUNT_JSON"`
	ServiceAccountPath string `mapstructure:"FIREBASE_SERVICE_ACCOUNT_PATH"`

	// Client side (cmd/chatroom)
	APIBaseURL     string        `mapstructure:"API_BASE_URL"`
	LiveChannelURL string        `mapstructure:"LIVE_CHANNEL_URL"`
	ReconnectDelay time.Duration `mapstructure:"RECONNECT_DELAY"`
	HTTPTimeout    time.Duration `mapstructure:"HTTP_TIMEOUT"`

	// Token bucket for chat sends, per user.
	SendMessageBurst    int           `mapstructure:"SEND_MESSAGE_BURST"`
	SendMessageInterval time.Duration `mapstructure:"SEND_MESSAGE_INTERVAL"`
}

func Load() (*Config, error) {
	godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("FIREBASE_PROJECT_ID", "")
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("FIREBASE_SERVICE_ACCOUNT_JSON", "")
	v.SetDefault("FIREBASE_SERVICE_ACCOUNT_PATH", "")
	v.SetDefault("API_BASE_URL", "http://localhost:8080")
	v.SetDefault("LIVE_CHANNEL_URL", "ws://localhost:8080/v1/ws")
	v.SetDefault("RECONNECT_DELAY", 5*time.Second)
	v.SetDefault("HTTP_TIMEOUT", 30*time.Second)
	v.SetDefault("SEND_MESSAGE_BURST", 10)
	v.SetDefault("SEND_MESSAGE_INTERVAL", 6*time.Second)

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, err
	}

	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = 5 * time.Second
	}

	return config, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
