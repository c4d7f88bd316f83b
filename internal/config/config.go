package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/veilora/veil-oracle-go/internal/models"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Oracle      OracleConfig    `mapstructure:"oracle"`
	Privacy     PrivacyConfig   `mapstructure:"privacy"`
	Audit       AuditConfig     `mapstructure:"audit"`
	Security    SecurityConfig  `mapstructure:"security"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	DatabaseURL string `mapstructure:"database_url"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// OracleConfig drives observation collection, aggregation and caching.
type OracleConfig struct {
	Feeds               []models.FeedConfig `mapstructure:"feeds"`
	SourceTimeout       string              `mapstructure:"source_timeout"`
	MaxRetries          int                 `mapstructure:"max_retries"`
	RetryInitialDelay   string              `mapstructure:"retry_initial_delay"`
	RetryBackoffFactor  float64             `mapstructure:"retry_backoff_factor"`
	OutlierThresholdBps int64               `mapstructure:"outlier_threshold_bps"`
	MinSources          int                 `mapstructure:"min_sources"`
	Weighting           string              `mapstructure:"weighting"`
	CacheTTL            string              `mapstructure:"cache_ttl"`
}

// PrivacyConfig drives the commitment/proof/encryption layer.
type PrivacyConfig struct {
	PriceRangeMarginPercent float64 `mapstructure:"price_range_margin_percent"`
	ProofTimeout            string  `mapstructure:"proof_timeout"`
	NonceReplayWindow       string  `mapstructure:"nonce_replay_window"`
	DisableRangeWidening    bool    `mapstructure:"disable_range_widening"`
}

type AuditConfig struct {
	MaxEntries     int  `mapstructure:"max_entries"`
	ArchiveEnabled bool `mapstructure:"archive_enabled"`
}

type SecurityConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" json:"-" yaml:"-"`
	JWTExpiry string `mapstructure:"jwt_expiry"`
}

type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// Set default values
	setDefaults()

	// Enable environment variable support
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.BindEnv("security.jwt_secret", "JWT_SECRET"); err != nil {
		return nil, fmt.Errorf("failed to bind JWT_SECRET environment variable: %w", err)
	}

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Normalize environment to lowercase for consistent comparison
	config.Environment = strings.ToLower(config.Environment)

	if config.Environment != "development" && config.Security.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET environment variable is required in non-development environments")
	}
	if config.Security.JWTExpiry != "" {
		if _, err := time.ParseDuration(config.Security.JWTExpiry); err != nil {
			return nil, fmt.Errorf("invalid JWT expiry duration: %w", err)
		}
	}

	if err := validateOracle(&config.Oracle); err != nil {
		return nil, err
	}
	for _, key := range []struct {
		name  string
		value string
	}{
		{"privacy.proof_timeout", config.Privacy.ProofTimeout},
		{"privacy.nonce_replay_window", config.Privacy.NonceReplayWindow},
	} {
		if _, err := time.ParseDuration(key.value); err != nil {
			return nil, fmt.Errorf("invalid duration for %s: %w", key.name, err)
		}
	}
	if config.Privacy.PriceRangeMarginPercent <= 0 && !config.Privacy.DisableRangeWidening {
		return nil, errors.New("privacy.price_range_margin_percent must be positive unless range widening is disabled")
	}
	if config.Audit.MaxEntries <= 0 {
		return nil, errors.New("audit.max_entries must be positive")
	}

	return &config, nil
}

func validateOracle(cfg *OracleConfig) error {
	for _, key := range []struct {
		name  string
		value string
	}{
		{"oracle.source_timeout", cfg.SourceTimeout},
		{"oracle.retry_initial_delay", cfg.RetryInitialDelay},
		{"oracle.cache_ttl", cfg.CacheTTL},
	} {
		if _, err := time.ParseDuration(key.value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", key.name, err)
		}
	}
	if cfg.MinSources < 1 {
		return errors.New("oracle.min_sources must be at least 1")
	}
	if cfg.OutlierThresholdBps <= 0 {
		return errors.New("oracle.outlier_threshold_bps must be positive")
	}
	switch cfg.Weighting {
	case "confidence", "equal", "priority":
	default:
		return fmt.Errorf("unsupported oracle.weighting %q", cfg.Weighting)
	}
	if cfg.RetryBackoffFactor < 1 {
		return errors.New("oracle.retry_backoff_factor must be >= 1")
	}
	return nil
}

// Durations returns the parsed duration fields of the oracle section. Load
// has already validated them, so parse errors are impossible here.
func (c *OracleConfig) Durations() (sourceTimeout, retryDelay, cacheTTL time.Duration) {
	sourceTimeout, _ = time.ParseDuration(c.SourceTimeout)
	retryDelay, _ = time.ParseDuration(c.RetryInitialDelay)
	cacheTTL, _ = time.ParseDuration(c.CacheTTL)
	return sourceTimeout, retryDelay, cacheTTL
}

// Durations returns the parsed duration fields of the privacy section.
func (c *PrivacyConfig) Durations() (proofTimeout, replayWindow time.Duration) {
	proofTimeout, _ = time.ParseDuration(c.ProofTimeout)
	replayWindow, _ = time.ParseDuration(c.NonceReplayWindow)
	return proofTimeout, replayWindow
}

func setDefaults() {
	// Environment
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Database (optional audit archive)
	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "veil_oracle")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.database_url", "")

	// Redis (optional consensus cache backend)
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Oracle
	viper.SetDefault("oracle.source_timeout", "5s")
	viper.SetDefault("oracle.max_retries", 3)
	viper.SetDefault("oracle.retry_initial_delay", "100ms")
	viper.SetDefault("oracle.retry_backoff_factor", 2.0)
	viper.SetDefault("oracle.outlier_threshold_bps", 500)
	viper.SetDefault("oracle.min_sources", 3)
	viper.SetDefault("oracle.weighting", "confidence")
	viper.SetDefault("oracle.cache_ttl", "30s")

	// Privacy
	viper.SetDefault("privacy.price_range_margin_percent", 10.0)
	viper.SetDefault("privacy.proof_timeout", "30s")
	viper.SetDefault("privacy.nonce_replay_window", "1h")
	viper.SetDefault("privacy.disable_range_widening", false)

	// Audit
	viper.SetDefault("audit.max_entries", 1000)
	viper.SetDefault("audit.archive_enabled", false)

	// Security
	viper.SetDefault("security.jwt_secret", "")
	viper.SetDefault("security.jwt_expiry", "24h")

	// Telemetry
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.otlp_endpoint", "")
	viper.SetDefault("telemetry.sample_rate", 1.0)
}
