package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tinytelemetry/errwatch/internal/model"
	"github.com/tinytelemetry/errwatch/internal/socketrpc"
)

// cliConfig holds only TUI-relevant configuration.
type cliConfig struct {
	UpdateInterval    time.Duration `mapstructure:"update-interval"`
	RecentLimit       int           `mapstructure:"recent-limit"`
	AggregationWindow time.Duration `mapstructure:"aggregation-window"`
	AggregationBucket time.Duration `mapstructure:"aggregation-bucket"`
	DeltaLookback     time.Duration `mapstructure:"delta-lookback"`
	CivilUTCOffset    time.Duration `mapstructure:"civil-utc-offset"`
	SocketPath        string        `mapstructure:"socket-path"`
}

func loadCLIConfig(configPath string) (cliConfig, error) {
	var cfg cliConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("ERRWATCH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("update-interval", model.DefaultUpdateInterval)
	v.SetDefault("recent-limit", model.DefaultRecentLimit)
	v.SetDefault("aggregation-window", model.DefaultAggregationWindow)
	v.SetDefault("aggregation-bucket", model.DefaultBucketWidth)
	v.SetDefault("delta-lookback", model.DefaultDeltaLookback)
	v.SetDefault("civil-utc-offset", model.DefaultCivilOffset)
	v.SetDefault("socket-path", socketrpc.DefaultSocketPath())

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "errwatch", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
