// Package config loads the reconciler CLI settings from flags, the optional
// config file and RECONCILER_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"reconciliation-engine/internal/crypto"
	"reconciliation-engine/internal/history"
	"reconciliation-engine/internal/matcher"
	"reconciliation-engine/internal/reporter"
	"reconciliation-engine/internal/storage"
	"reconciliation-engine/pkg/errors"
	"reconciliation-engine/pkg/logger"
)

// EnvPrefix is the prefix for environment overrides, e.g. RECONCILER_DATABASE
const EnvPrefix = "RECONCILER"

// Matching profiles
const (
	ProfileDefault = "default"
	ProfileStrict  = "strict"
	ProfileRelaxed = "relaxed"
)

// Audit sinks
const (
	AuditDatabase = "database"
	AuditLog      = "log"
	AuditOff      = "off"
)

// Config is the resolved CLI configuration
type Config struct {
	Database      string `mapstructure:"database"`
	DeviceID      string `mapstructure:"device_id"`
	EncryptionKey string `mapstructure:"encryption_key"`
	Company       string `mapstructure:"company"`
	User          string `mapstructure:"user"`
	Audit         string `mapstructure:"audit"`

	Output   OutputSettings   `mapstructure:"output"`
	Log      logger.Config    `mapstructure:"log"`
	Matching MatchingSettings `mapstructure:"matching"`
}

// OutputSettings controls report rendering
type OutputSettings struct {
	Format         string `mapstructure:"format"`
	File           string `mapstructure:"file"`
	IncludeMatches bool   `mapstructure:"include_matches"`
	MaxListItems   int    `mapstructure:"max_list_items"`
}

// MatchingSettings picks a matcher profile and optionally overrides parts of it.
// Unset overrides keep the profile's value.
type MatchingSettings struct {
	Profile                        string   `mapstructure:"profile"`
	DateToleranceDays              *int     `mapstructure:"date_tolerance_days"`
	AmountTolerance                *string  `mapstructure:"amount_tolerance"`
	MinConfidenceScore             *float64 `mapstructure:"min_confidence_score"`
	UsePatternLearning             *bool    `mapstructure:"use_pattern_learning"`
	EnableMultiTransactionMatching *bool    `mapstructure:"enable_multi_transaction_matching"`
}

// envOnlyKeys have no default but can still come from the environment
var envOnlyKeys = []string{
	"device_id",
	"encryption_key",
	"output.file",
	"output.include_matches",
	"log.file",
	"matching.date_tolerance_days",
	"matching.amount_tolerance",
	"matching.min_confidence_score",
	"matching.use_pattern_learning",
	"matching.enable_multi_transaction_matching",
}

// SetDefaults registers default values and environment bindings on v
func SetDefaults(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envOnlyKeys {
		_ = v.BindEnv(key)
	}

	v.SetDefault("database", "reconciler.db")
	v.SetDefault("company", "default")
	v.SetDefault("user", "cli")
	v.SetDefault("audit", AuditDatabase)
	v.SetDefault("output.format", string(reporter.FormatConsole))
	v.SetDefault("output.max_list_items", 10)
	v.SetDefault("log.level", string(logger.WarnLevel))
	v.SetDefault("log.format", string(logger.TextFormat))
	v.SetDefault("log.output", string(logger.StderrOutput))
	v.SetDefault("matching.profile", ProfileDefault)
}

// Load resolves the configuration from v. A missing device id falls back to
// the host name.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "config", v.ConfigFileUsed(), err).
			WithSuggestion("Check the config file syntax")
	}

	if strings.TrimSpace(cfg.DeviceID) == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.DeviceID = host
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "database", c.Database, nil).
			WithSuggestion("Set --database or RECONCILER_DATABASE")
	}
	if strings.TrimSpace(c.DeviceID) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "device_id", c.DeviceID, nil).
			WithSuggestion("Set device_id in the config file or RECONCILER_DEVICE_ID")
	}
	if strings.TrimSpace(c.Company) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "company", c.Company, nil).
			WithSuggestion("Set --company or RECONCILER_COMPANY")
	}
	switch c.Audit {
	case AuditDatabase, AuditLog, AuditOff:
	default:
		return errors.ConfigurationError(errors.CodeInvalidConfig, "audit", c.Audit,
			fmt.Errorf("valid audit sinks: database, log, off"))
	}
	if !reporter.OutputFormat(c.Output.Format).IsValid() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output.format", c.Output.Format,
			fmt.Errorf("valid formats: console, json, csv"))
	}
	if err := c.Log.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "log", c.Log, err)
	}
	if _, err := c.MatchingConfig(); err != nil {
		return err
	}
	return nil
}

// MatchingConfig builds the matcher configuration for the selected profile
func (c *Config) MatchingConfig() (*matcher.MatchingConfig, error) {
	var mc *matcher.MatchingConfig
	switch strings.ToLower(strings.TrimSpace(c.Matching.Profile)) {
	case "", ProfileDefault:
		mc = matcher.DefaultMatchingConfig()
	case ProfileStrict:
		mc = matcher.StrictMatchingConfig()
	case ProfileRelaxed:
		mc = matcher.RelaxedMatchingConfig()
	default:
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching.profile", c.Matching.Profile,
			fmt.Errorf("valid profiles: default, strict, relaxed"))
	}

	m := c.Matching
	if m.DateToleranceDays != nil {
		mc.DateToleranceDays = *m.DateToleranceDays
	}
	if m.AmountTolerance != nil {
		tolerance, err := decimal.NewFromString(*m.AmountTolerance)
		if err != nil {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching.amount_tolerance", *m.AmountTolerance, err)
		}
		mc.AmountTolerance = tolerance
	}
	if m.MinConfidenceScore != nil {
		mc.MinConfidenceScore = *m.MinConfidenceScore
	}
	if m.UsePatternLearning != nil {
		mc.UsePatternLearning = *m.UsePatternLearning
	}
	if m.EnableMultiTransactionMatching != nil {
		mc.EnableMultiTransactionMatching = *m.EnableMultiTransactionMatching
	}

	if err := mc.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching", c.Matching.Profile, err)
	}
	return mc, nil
}

// Cipher returns the field cipher. Without an encryption key records are
// stored in the clear.
func (c *Config) Cipher() (crypto.Cipher, error) {
	if c.EncryptionKey == "" {
		return crypto.Noop{}, nil
	}
	aead, err := crypto.NewAEAD([]byte(c.EncryptionKey))
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "encryption_key", "<redacted>", err)
	}
	return aead, nil
}

// Auditor picks the audit sink. database is the store's own audit table.
func (c *Config) Auditor(database storage.AuditLogger) storage.AuditLogger {
	switch c.Audit {
	case AuditLog:
		return storage.NewLoggingAuditor()
	case AuditOff:
		return nil
	default:
		return database
	}
}

// HistoryOptions returns the history service options
func (c *Config) HistoryOptions() (history.Options, error) {
	cipher, err := c.Cipher()
	if err != nil {
		return history.Options{}, err
	}
	return history.Options{DeviceID: c.DeviceID, Cipher: cipher}, nil
}

// ReportConfig creates a report configuration for the configured output format
func (c *Config) ReportConfig() *reporter.ReportConfig {
	config := reporter.DefaultReportConfig()
	config.Format = reporter.OutputFormat(c.Output.Format)
	config.IncludeMatches = c.Output.IncludeMatches
	if c.Output.MaxListItems > 0 {
		config.MaxListItems = c.Output.MaxListItems
	}

	switch config.Format {
	case reporter.FormatCSV:
		// CSV is for transaction rows
		config.IncludeMatches = true
		config.IncludeSuggestions = false
		config.IncludeParseStats = false
	case reporter.FormatJSON:
		config.IncludeSuggestions = true
		config.IncludeParseStats = true
	}
	return config
}
