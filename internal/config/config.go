package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ScanConfig holds configuration for the scan and watch commands,
// merged from config file, environment variables, and flags.
type ScanConfig struct {
	Address          string
	RPCURL           string
	StartBlock       uint64
	BatchSize        uint64
	Concurrency      int
	RequestDelay     time.Duration
	RequestTimeout   time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	MaxBlocksPerTick uint64
	Interval         time.Duration
	Ledger           string
	Progress         string
	LogLevel         string
}

// LoadScan merges config file, environment variables, and flags into
// ScanConfig.
func LoadScan(cfgFile string, flags *pflag.FlagSet) (ScanConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("start-block", uint64(1))
		v.SetDefault("batch-size", uint64(1000))
		v.SetDefault("concurrency", 20)
		v.SetDefault("request-delay", 10*time.Millisecond)
		v.SetDefault("request-timeout", 10*time.Second)
		v.SetDefault("max-retries", 3)
		v.SetDefault("retry-backoff", 100*time.Millisecond)
		v.SetDefault("max-blocks-per-tick", uint64(100))
		v.SetDefault("interval", 60*time.Second)
		v.SetDefault("ledger", "./data/ledger.csv")
		v.SetDefault("progress", "./data/progress.json")
		v.SetDefault("log-level", "info")
	})
	if err != nil {
		return ScanConfig{}, err
	}

	cfg := ScanConfig{
		Address:          v.GetString("address"),
		RPCURL:           v.GetString("rpc"),
		StartBlock:       v.GetUint64("start-block"),
		BatchSize:        v.GetUint64("batch-size"),
		Concurrency:      v.GetInt("concurrency"),
		RequestDelay:     v.GetDuration("request-delay"),
		RequestTimeout:   v.GetDuration("request-timeout"),
		MaxRetries:       v.GetInt("max-retries"),
		RetryBackoff:     v.GetDuration("retry-backoff"),
		MaxBlocksPerTick: v.GetUint64("max-blocks-per-tick"),
		Interval:         v.GetDuration("interval"),
		Ledger:           v.GetString("ledger"),
		Progress:         v.GetString("progress"),
		LogLevel:         v.GetString("log-level"),
	}

	return cfg, nil
}

func newViper(cfgFile string, flags *pflag.FlagSet, defaults func(*viper.Viper)) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("WALLETSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	defaults(v)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return v, nil
}
