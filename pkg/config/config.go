package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the terminal backend
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Provider ProviderConfig `mapstructure:"provider"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
}

type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"` // e.g., "local", "prod"
}

// ProviderConfig selects and configures the active market-data venue.
// Credentials come from the environment; the core never writes them anywhere.
type ProviderConfig struct {
	ID        string `mapstructure:"id"` // "alpaca" or "sim"
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	BaseURL   string `mapstructure:"base_url"` // override REST data base
	WSURL     string `mapstructure:"ws_url"`   // override streaming endpoint
	Sandbox   bool   `mapstructure:"sandbox"`
}

// StreamConfig tunes the streaming layer. Defaults match the venue protocol
// expectations; tests shrink them.
type StreamConfig struct {
	FlushInterval        time.Duration `mapstructure:"flush_interval"`
	ReconnectBase        time.Duration `mapstructure:"reconnect_base"`
	ReconnectMax         time.Duration `mapstructure:"reconnect_max"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	NewsRetryDelay       time.Duration `mapstructure:"news_retry_delay"`
}

// RedisConfig points at the quote snapshot cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig points at the event journal. Empty Brokers disables it.
type KafkaConfig struct {
	Brokers           []string `mapstructure:"brokers"`
	Topic             string   `mapstructure:"topic"`
	Partitions        int      `mapstructure:"partitions"`
	ReplicationFactor int      `mapstructure:"replication_factor"`
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// Load .env into the process environment first so the vars below resolve
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	v.SetDefault("app.port", ":8090")
	v.SetDefault("app.env", "local")

	v.SetDefault("provider.id", "alpaca")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.api_secret", "")
	v.SetDefault("provider.base_url", "")
	v.SetDefault("provider.ws_url", "")
	v.SetDefault("provider.sandbox", true)

	v.SetDefault("stream.flush_interval", 50*time.Millisecond)
	v.SetDefault("stream.reconnect_base", time.Second)
	v.SetDefault("stream.reconnect_max", 30*time.Second)
	v.SetDefault("stream.max_reconnect_attempts", 10)
	v.SetDefault("stream.news_retry_delay", 5*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "market_events")
	v.SetDefault("kafka.partitions", 4)
	v.SetDefault("kafka.replication_factor", 1)

	// Map dot-notation to underscores (e.g., "provider.api_key" -> "PROVIDER_API_KEY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Viper needs explicit binds to map flat env vars onto nested structs
	bindEnv(v, "app.port", "app.env")
	bindEnv(v, "provider.id", "provider.api_key", "provider.api_secret", "provider.base_url", "provider.ws_url", "provider.sandbox")
	bindEnv(v, "stream.flush_interval", "stream.reconnect_base", "stream.reconnect_max", "stream.max_reconnect_attempts", "stream.news_retry_delay")
	bindEnv(v, "redis.addr", "redis.password", "redis.db")
	bindEnv(v, "kafka.brokers", "kafka.topic", "kafka.partitions", "kafka.replication_factor")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %v", err)
	}

	if cfg.Provider.ID == "" {
		return nil, fmt.Errorf("provider id cannot be empty")
	}
	if cfg.Stream.FlushInterval <= 0 {
		return nil, fmt.Errorf("stream flush interval must be positive")
	}
	if cfg.Stream.MaxReconnectAttempts <= 0 {
		return nil, fmt.Errorf("max reconnect attempts must be positive")
	}
	if len(cfg.Kafka.Brokers) > 0 {
		if cfg.Kafka.Partitions <= 0 {
			return nil, fmt.Errorf("kafka partitions must be positive")
		}
		if cfg.Kafka.ReplicationFactor <= 0 {
			return nil, fmt.Errorf("kafka replication factor must be positive")
		}
	}

	return &cfg, nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
