package config

import (
	"fmt"
	"time"

	"github.com/rpattn/stackshift/internal/db"
	"github.com/rpattn/stackshift/internal/queryplan"
	"github.com/spf13/viper"
)

// Config carries everything a migration run needs: the source database,
// the stack output directory and the knobs for query synthesis, batching
// and asset downloads.
type Config struct {
	Database db.Config
	// QueryTimeout bounds a single source query.
	QueryTimeout time.Duration

	// StackDir is the root of the file-based stack the run writes into.
	StackDir string

	// Strategy selects how per-field tables are read.
	Strategy queryplan.Strategy
	// JoinWidthLimit caps how many field tables one query may join.
	JoinWidthLimit int

	BatchSize   int
	Concurrency int
	// BatchDelay is the pause between consecutive batches.
	BatchDelay time.Duration

	// AssetTimeout bounds a single asset download.
	AssetTimeout time.Duration
	// AssetBaseURL resolves scheme-relative source file URIs.
	AssetBaseURL string

	// MasterLocale is the destination code entries fall back to when the
	// source row carries no resolvable language.
	MasterLocale string
	// LocaleOverrides maps source language codes to destination locale
	// codes ahead of the built-in rules.
	LocaleOverrides map[string]string

	// MappingDir holds the curated content type mapping files.
	MappingDir string

	LogLevel string
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() Config {
	return Config{
		Database:        db.DefaultConfig(),
		QueryTimeout:    30 * time.Second,
		StackDir:        "stack",
		Strategy:        queryplan.StrategyBatched,
		JoinWidthLimit:  50,
		BatchSize:       50,
		Concurrency:     5,
		BatchDelay:      time.Second,
		AssetTimeout:    30 * time.Second,
		MasterLocale:    "en-us",
		LocaleOverrides: map[string]string{},
		MappingDir:      "mappings",
		LogLevel:        "info",
	}
}

// Load reads config.yaml from configPath, layering environment overrides
// (prefix STACKSHIFT) on top of the defaults. A missing file is not an
// error; defaults and environment values apply.
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("STACKSHIFT")

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("stack_dir")
	v.BindEnv("log_level")

	if err := v.ReadInConfig(); err != nil {
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("database.query_timeout") {
		cfg.QueryTimeout = v.GetDuration("database.query_timeout")
	}

	if v.IsSet("stack_dir") {
		cfg.StackDir = v.GetString("stack_dir")
	}
	if v.IsSet("mapping_dir") {
		cfg.MappingDir = v.GetString("mapping_dir")
	}
	if v.IsSet("log_level") {
		cfg.LogLevel = v.GetString("log_level")
	}

	if v.IsSet("query.strategy") {
		cfg.Strategy = queryplan.Strategy(v.GetString("query.strategy"))
	}
	if v.IsSet("query.join_width_limit") {
		cfg.JoinWidthLimit = v.GetInt("query.join_width_limit")
	}

	if v.IsSet("batch.size") {
		cfg.BatchSize = v.GetInt("batch.size")
	}
	if v.IsSet("batch.concurrency") {
		cfg.Concurrency = v.GetInt("batch.concurrency")
	}
	if v.IsSet("batch.delay") {
		cfg.BatchDelay = v.GetDuration("batch.delay")
	}

	if v.IsSet("assets.timeout") {
		cfg.AssetTimeout = v.GetDuration("assets.timeout")
	}
	if v.IsSet("assets.base_url") {
		cfg.AssetBaseURL = v.GetString("assets.base_url")
	}

	if v.IsSet("locales.master") {
		cfg.MasterLocale = v.GetString("locales.master")
	}
	if v.IsSet("locales.overrides") {
		cfg.LocaleOverrides = v.GetStringMapString("locales.overrides")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations a run cannot start with.
func (c Config) Validate() error {
	if !c.Strategy.Valid() {
		return fmt.Errorf("unknown query strategy %q", c.Strategy)
	}
	if c.JoinWidthLimit <= 0 {
		return fmt.Errorf("query.join_width_limit must be positive, got %d", c.JoinWidthLimit)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch.size must be positive, got %d", c.BatchSize)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("batch.concurrency must be positive, got %d", c.Concurrency)
	}
	if c.BatchDelay < 0 {
		return fmt.Errorf("batch.delay must not be negative")
	}
	if c.AssetTimeout <= 0 {
		return fmt.Errorf("assets.timeout must be positive")
	}
	if c.QueryTimeout <= 0 {
		return fmt.Errorf("database.query_timeout must be positive")
	}
	if c.StackDir == "" {
		return fmt.Errorf("stack_dir must not be empty")
	}
	if c.MasterLocale == "" {
		return fmt.Errorf("locales.master must not be empty")
	}
	return nil
}
