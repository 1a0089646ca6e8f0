package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/ehr/dedup/internal/dedup"
)

const (
	SourcePostgres = "postgres"
	SourceSQLite   = "sqlite"
)

type Config struct {
	Port            string   `mapstructure:"PORT"`
	Env             string   `mapstructure:"ENV"`
	LogLevel        string   `mapstructure:"LOG_LEVEL"`
	Source          string   `mapstructure:"SOURCE"`
	DatabaseURL     string   `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32    `mapstructure:"DB_MIN_CONNS"`
	SQLitePath      string   `mapstructure:"SQLITE_PATH"`
	RulesFile       string   `mapstructure:"RULES_FILE"`
	NameMaxDistance int      `mapstructure:"NAME_MAX_DISTANCE"`
	Workers         int      `mapstructure:"WORKERS"`
	MergeStrategy   string   `mapstructure:"MERGE_STRATEGY"`
	AuthSecret      string   `mapstructure:"AUTH_SECRET"`
	AuthIssuer      string   `mapstructure:"AUTH_ISSUER"`
	BodyLimit       string   `mapstructure:"BODY_LIMIT"`
	CORSOrigins     []string `mapstructure:"CORS_ORIGINS"`
	MetricsEnabled  bool     `mapstructure:"METRICS_ENABLED"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SOURCE", SourcePostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("NAME_MAX_DISTANCE", dedup.DefaultMaxNameDistance)
	v.SetDefault("WORKERS", 0)
	v.SetDefault("MERGE_STRATEGY", dedup.StrategyMode)
	v.SetDefault("BODY_LIMIT", "10M")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("METRICS_ENABLED", true)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL", "SOURCE",
		"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "SQLITE_PATH",
		"RULES_FILE", "NAME_MAX_DISTANCE", "WORKERS", "MERGE_STRATEGY",
		"AUTH_SECRET", "AUTH_ISSUER", "BODY_LIMIT", "CORS_ORIGINS",
		"METRICS_ENABLED",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	cfg.Source = strings.ToLower(strings.TrimSpace(cfg.Source))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// HasStore reports whether run results can be persisted. Results always go
// to Postgres, whichever source the patients are read from.
func (c *Config) HasStore() bool {
	return c.DatabaseURL != ""
}

// Level parses LOG_LEVEL, falling back to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Validate checks that the configuration can run. The patient source needs
// its connection setting, production needs AUTH_SECRET, and the matching
// parameters must be usable by the engine.
func (c *Config) Validate() error {
	switch c.Source {
	case SourcePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when SOURCE is %q", SourcePostgres)
		}
	case SourceSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when SOURCE is %q", SourceSQLite)
		}
	default:
		return fmt.Errorf("SOURCE must be %q or %q, got %q", SourcePostgres, SourceSQLite, c.Source)
	}

	if c.IsProduction() && c.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required in production")
	}
	if c.AuthSecret != "" && len(c.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be at least 32 characters, got %d", len(c.AuthSecret))
	}

	if c.NameMaxDistance < 0 {
		return fmt.Errorf("NAME_MAX_DISTANCE must be >= 0, got %d", c.NameMaxDistance)
	}
	if c.Workers < 0 {
		return fmt.Errorf("WORKERS must be >= 0, got %d", c.Workers)
	}
	if _, err := dedup.ResolverFor(c.MergeStrategy); err != nil {
		return fmt.Errorf("MERGE_STRATEGY: %w", err)
	}
	return nil
}

// RuleSet returns the rule set from RULES_FILE, or the reference rule set
// when none is configured. MERGE_STRATEGY sets the merge default of the
// reference rule set and fills in a missing one from a rules file.
func (c *Config) RuleSet() (dedup.RuleSet, error) {
	var rs dedup.RuleSet
	if c.RulesFile == "" {
		rs = dedup.DefaultRuleSet(c.NameMaxDistance)
		rs.Merge.Default = c.MergeStrategy
	} else {
		loaded, err := dedup.LoadRuleSet(c.RulesFile)
		if err != nil {
			return dedup.RuleSet{}, err
		}
		rs = loaded
	}
	if rs.Merge.Default == "" {
		rs.Merge.Default = c.MergeStrategy
	}
	return rs, nil
}

// EngineConfig builds the engine configuration for the given schema.
// NAME_MAX_DISTANCE is passed through as is, so 0 asks for exact names.
func (c *Config) EngineConfig(schema dedup.Schema) (dedup.Config, error) {
	rs, err := c.RuleSet()
	if err != nil {
		return dedup.Config{}, err
	}
	dist := c.NameMaxDistance
	return dedup.Config{
		Schema:          schema,
		Rules:           rs,
		MaxNameDistance: &dist,
		Workers:         c.Workers,
	}, nil
}
