package config

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// AnalyzeConfig holds configuration for the analyze, export, and
// publish commands.
type AnalyzeConfig struct {
	Address      string
	AgentAddress string
	Ledger       string
	Stake        string
	Dedupe       bool
	Out          string
	PGDSN        string
	LogLevel     string
}

// LoadAnalyze merges config file, environment variables, and flags
// into AnalyzeConfig.
func LoadAnalyze(cfgFile string, flags *pflag.FlagSet) (AnalyzeConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("ledger", "./data/ledger.csv")
		v.SetDefault("stake", "0.00000001")
		v.SetDefault("dedupe", false)
		v.SetDefault("out", "./data/daily.csv")
		v.SetDefault("log-level", "info")
	})
	if err != nil {
		return AnalyzeConfig{}, err
	}

	cfg := AnalyzeConfig{
		Address:      v.GetString("address"),
		AgentAddress: v.GetString("agent-address"),
		Ledger:       v.GetString("ledger"),
		Stake:        v.GetString("stake"),
		Dedupe:       v.GetBool("dedupe"),
		Out:          v.GetString("out"),
		PGDSN:        v.GetString("pg-dsn"),
		LogLevel:     v.GetString("log-level"),
	}

	return cfg, nil
}
