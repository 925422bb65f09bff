// Package config loads service configuration from the environment (and an
// optional config file) via viper.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"port"`
	Store       string `mapstructure:"store"` // "postgres" or "memory"
	DatabaseURL string `mapstructure:"database_url"`

	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	SweepBatch    int           `mapstructure:"sweep_batch"`

	// MaxDeadlineExtension bounds how far past the current deadline an
	// initiator may push a session.
	MaxDeadlineExtension time.Duration `mapstructure:"max_deadline_extension"`

	CaseServiceURL string        `mapstructure:"case_service_url"`
	AdvisorURL     string        `mapstructure:"advisor_url"`
	AdvisorTimeout time.Duration `mapstructure:"advisor_timeout"`
	NotifyURL      string        `mapstructure:"notify_url"`
	DocgenURL      string        `mapstructure:"docgen_url"`

	// DevAuth accepts the bearer token as the user id directly. Local
	// development only.
	DevAuth bool `mapstructure:"dev_auth"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("negotiation")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", "8086")
	v.SetDefault("store", "postgres")
	v.SetDefault("database_url", "")
	v.SetDefault("sweep_interval", time.Minute)
	v.SetDefault("sweep_batch", 100)
	v.SetDefault("max_deadline_extension", 30*24*time.Hour)
	v.SetDefault("case_service_url", "http://localhost:8081/cases")
	v.SetDefault("advisor_url", "")
	v.SetDefault("advisor_timeout", 15*time.Second)
	v.SetDefault("notify_url", "")
	v.SetDefault("docgen_url", "http://localhost:8085/docgen")
	v.SetDefault("dev_auth", false)

	v.SetConfigName("negotiation")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/negotiation")
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
