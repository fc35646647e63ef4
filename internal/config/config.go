// Package config loads flowradar's configuration from a .env file (if
// present) layered with FLOWRADAR_*-prefixed environment variables and
// built-in defaults, in the teacher's godotenv style combined with viper's
// structured binding.
package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the top-level application configuration.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`

	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	Watch      WatchConfig      `mapstructure:"watch"`
	Notify     NotifyConfig     `mapstructure:"notify"`
}

type ThresholdsConfig struct {
	LargeOrderUSD        float64 `mapstructure:"large_order_usd"`
	WhaleOrderUSD        float64 `mapstructure:"whale_order_usd"`
	ImbalanceRatio       float64 `mapstructure:"imbalance_ratio"`
	HighSeverityMultiple float64 `mapstructure:"high_severity_multiple"`
}

// WatchConfig lists the instruments watched automatically at startup, in
// addition to whatever clients request via the API at runtime.
type WatchConfig struct {
	Symbols []string `mapstructure:"symbols"`
}

type NotifyConfig struct {
	TelegramEnabled bool   `mapstructure:"telegram_enabled"`
	FirebaseCredFile string `mapstructure:"firebase_cred_file"`
	FirebaseTopic    string `mapstructure:"firebase_topic"`
}

// Load reads .env (if present) then FLOWRADAR_*-prefixed environment
// variables over the defaults below. A missing .env file is not an error —
// only a warning — since production deployments set real env vars instead.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] no .env file found, relying on process environment")
	}

	v := viper.New()
	v.SetEnvPrefix("FLOWRADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8000")
	v.SetDefault("thresholds.large_order_usd", 10_000)
	v.SetDefault("thresholds.whale_order_usd", 50_000)
	v.SetDefault("thresholds.imbalance_ratio", 1.5)
	v.SetDefault("thresholds.high_severity_multiple", 2.0)
	v.SetDefault("watch.symbols", []string{})
	v.SetDefault("notify.telegram_enabled", true)
	v.SetDefault("notify.firebase_cred_file", "serviceAccountKey.json")
	v.SetDefault("notify.firebase_topic", "ALL_WHALES")

	for _, key := range []string{
		"listen_addr",
		"thresholds.large_order_usd", "thresholds.whale_order_usd",
		"thresholds.imbalance_ratio", "thresholds.high_severity_multiple",
		"watch.symbols",
		"notify.telegram_enabled", "notify.firebase_cred_file", "notify.firebase_topic",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}
