// Package config loads the demo binary's configuration from a YAML file
// and ATLASBOOK_-prefixed environment variables via viper.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/atlasbook/atlasbook/internal/book"
	"github.com/atlasbook/atlasbook/internal/feed"
	"github.com/atlasbook/atlasbook/internal/matching"
	"github.com/spf13/viper"
)

// AppConfig is the top-level configuration for the demo entry point,
// composing the engine and feed packages' own config types.
type AppConfig struct {
	Matching matching.Config
	Feed     feed.Config
	Logging  LoggingConfig
	MetricsAddr string
}

// LoggingConfig controls the zap logger the demo binary builds.
type LoggingConfig struct {
	Level string
	JSON  bool
}

// DefaultAppConfig returns the configuration the demo binary runs with
// when no config file or environment overrides are present.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Matching: matching.DefaultConfig(),
		Feed:     feed.DefaultConfig(),
		Logging: LoggingConfig{
			Level: "info",
			JSON:  true,
		},
		MetricsAddr: ":9090",
	}
}

// Load reads configPath (if non-empty and present) and ATLASBOOK_-prefixed
// environment variables on top of DefaultAppConfig, then validates.
func Load(configPath string) (AppConfig, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("ATLASBOOK")

	cfg := DefaultAppConfig()
	bindDefaults(v, cfg)

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.MergeInConfig(); err != nil {
				return AppConfig{}, fmt.Errorf("config: reading %s: %w", configPath, err)
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func bindDefaults(v *viper.Viper, cfg AppConfig) {
	v.SetDefault("matching.selftradeprevention", cfg.Matching.SelfTradePrevention)
	v.SetDefault("matching.allowmarketorders", cfg.Matching.AllowMarketOrders)
	v.SetDefault("matching.allowiocorders", cfg.Matching.AllowIOCOrders)
	v.SetDefault("matching.allowfokorders", cfg.Matching.AllowFOKOrders)
	v.SetDefault("matching.maxorderquantity", uint64(cfg.Matching.MaxOrderQuantity))
	v.SetDefault("matching.poolsize", cfg.Matching.PoolSize)

	v.SetDefault("feed.ringbuffercapacity", cfg.Feed.RingBufferCapacity)
	v.SetDefault("feed.detectgaps", cfg.Feed.DetectGaps)
	v.SetDefault("feed.processtrades", cfg.Feed.ProcessTrades)
	v.SetDefault("feed.maintainorderbook", cfg.Feed.MaintainOrderBook)
	v.SetDefault("feed.maxsymbols", cfg.Feed.MaxSymbols)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.json", cfg.Logging.JSON)
	v.SetDefault("metricsaddr", cfg.MetricsAddr)
}

// Validate delegates to each embedded config's own Validate.
func (c AppConfig) Validate() error {
	if err := c.Matching.Validate(); err != nil {
		return err
	}
	if err := c.Feed.Validate(); err != nil {
		return err
	}
	if c.Matching.MaxOrderQuantity > book.Quantity(^uint32(0)) {
		return fmt.Errorf("config: matching.maxorderquantity unreasonably large")
	}
	return nil
}
