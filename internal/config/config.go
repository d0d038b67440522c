package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // postgres or sqlite
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type VaultConfig struct {
	Provider string `mapstructure:"provider"`
	AESKey   string `mapstructure:"aes_key"`
}

// BillingConfig drives the payment gateway integration layer.
// CallbackBaseURL must match the callback URL registered with the PG
// vendor; the route path and query parameter names are part of the
// vendor wire contract.
type BillingConfig struct {
	CallbackBaseURL string `mapstructure:"callback_base_url"`
	DefaultProvider string `mapstructure:"default_provider"`
	TossBaseURL     string `mapstructure:"toss_base_url"`
	TossAuthPageURL string `mapstructure:"toss_auth_page_url"`
	ExchangeTTLSec  int    `mapstructure:"exchange_ttl_sec"`
}

type NotificationConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

type ObservabilityConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	Environment  string `mapstructure:"environment"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	Development  bool   `mapstructure:"development"`
}

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Vault         VaultConfig         `mapstructure:"vault"`
	Billing       BillingConfig       `mapstructure:"billing"`
	Notification  NotificationConfig  `mapstructure:"notification"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// Load reads config.yaml (if present), .env, and environment variables.
// Environment variables win, with dots replaced by underscores
// (e.g. BILLING_CALLBACK_BASE_URL).
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/billinghub")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config is read once at startup; changes require a restart.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=postgres dbname=billinghub port=5432 sslmode=disable")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("vault.provider", "aes")

	v.SetDefault("billing.callback_base_url", "http://localhost:8080")
	v.SetDefault("billing.default_provider", "TOSS")
	v.SetDefault("billing.toss_base_url", "https://api.tosspayments.com")
	v.SetDefault("billing.toss_auth_page_url", "https://payment.toss.im/billing-auth")
	v.SetDefault("billing.exchange_ttl_sec", 86400)

	v.SetDefault("observability.service_name", "billinghub")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.development", false)
}
