// Package config assembles the CLI configuration from flags, environment
// variables and an optional config file, all via viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	pkgerrors "invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"

	"invoice-reconciliation-service/internal/matching"
	"invoice-reconciliation-service/internal/risk"
	"invoice-reconciliation-service/internal/scoring"
	"invoice-reconciliation-service/internal/workflow"
)

// Profile selects a scoring tolerance preset
type Profile string

const (
	ProfileDefault Profile = "default"
	ProfileStrict  Profile = "strict"
	ProfileRelaxed Profile = "relaxed"
)

// IsValid checks if the profile is recognized
func (p Profile) IsValid() bool {
	switch p {
	case ProfileDefault, ProfileStrict, ProfileRelaxed:
		return true
	default:
		return false
	}
}

// Config holds the assembled application configuration
type Config struct {
	DatabasePath string  `mapstructure:"database"`
	ListenAddr   string  `mapstructure:"listen"`
	Profile      Profile `mapstructure:"profile"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	MinExtractionConfidence float64       `mapstructure:"min_extraction_confidence"`
	ReasonerTimeout         time.Duration `mapstructure:"reasoner_timeout"`
}

// Load reads the configuration from viper with defaults applied
func Load() (*Config, error) {
	viper.SetDefault("database", "apreconciler.db")
	viper.SetDefault("listen", ":8080")
	viper.SetDefault("profile", string(ProfileDefault))
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "text")
	viper.SetDefault("min_extraction_confidence", 0.50)
	viper.SetDefault("reasoner_timeout", 10*time.Second)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, pkgerrors.ConfigurationError(pkgerrors.CodeInvalidConfig, "config", nil, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return pkgerrors.ConfigurationError(pkgerrors.CodeMissingConfig, "database", c.DatabasePath, nil)
	}

	if !c.Profile.IsValid() {
		return pkgerrors.ConfigurationError(pkgerrors.CodeInvalidConfig, "profile", string(c.Profile), nil).
			WithSuggestion(fmt.Sprintf("use one of: %s, %s, %s", ProfileDefault, ProfileStrict, ProfileRelaxed))
	}

	if c.MinExtractionConfidence < 0.0 || c.MinExtractionConfidence > 1.0 {
		return pkgerrors.ConfigurationError(pkgerrors.CodeInvalidConfig, "min_extraction_confidence", c.MinExtractionConfidence, nil)
	}

	if c.ReasonerTimeout <= 0 {
		return pkgerrors.ConfigurationError(pkgerrors.CodeInvalidConfig, "reasoner_timeout", c.ReasonerTimeout.String(), nil)
	}

	return nil
}

// ScoringConfig returns the scoring configuration for the selected profile
func (c *Config) ScoringConfig() *scoring.Config {
	switch c.Profile {
	case ProfileStrict:
		return scoring.StrictConfig()
	case ProfileRelaxed:
		return scoring.RelaxedConfig()
	default:
		return scoring.DefaultConfig()
	}
}

// MatchingConfig returns the matching configuration for the selected profile
func (c *Config) MatchingConfig() *matching.Config {
	cfg := matching.DefaultConfig()
	cfg.Scoring = c.ScoringConfig()
	cfg.ReasonerTimeout = c.ReasonerTimeout
	return cfg
}

// RiskConfig returns the risk configuration
func (c *Config) RiskConfig() *risk.Config {
	return risk.DefaultConfig()
}

// WorkflowConfig returns the workflow engine configuration
func (c *Config) WorkflowConfig() *workflow.Config {
	return &workflow.Config{MinExtractionConfidence: c.MinExtractionConfidence}
}

// LoggerConfig returns the logger configuration
func (c *Config) LoggerConfig() *logger.Config {
	return &logger.Config{
		Level:  logger.Level(c.LogLevel),
		Format: logger.Format(c.LogFormat),
	}
}
