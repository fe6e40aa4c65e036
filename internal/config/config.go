package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/swell-fusion/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	SQLitePath string

	// Bundle assembly.
	BatchSize         int
	BundleQuietPeriod time.Duration

	// Detection thresholds.
	MinHeightM      float64
	MinPeriodS      float64
	MinSignificance float64

	// Source scoring.
	StalenessWindow time.Duration
	HistoryDays     int

	// Validation.
	ValidateHoursAfter    int
	ValidationInterval    time.Duration
	ValidationConcurrency int
	MatchWindow           time.Duration
	NDBCTimeout           time.Duration
	NDBCCacheSize         int

	// Accuracy targets for the validate CLI exit code.
	TargetMaxMAEFt       float64
	TargetMinCategorical float64
	TargetMinDirection   float64
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic: sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "swell-source-series"),
		KafkaSinkTopic:   sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "swell-forecasts"),
		KafkaGroupID:     sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "swell-fusion"),
		HTTPAddr:         sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:         sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:  shutdownTimeout,

		SQLitePath: sharedcfg.EnvOrDefault("SQLITE_PATH", "data/swell-fusion.db"),

		BatchSize:         intEnv("BATCH_SIZE", 50),
		BundleQuietPeriod: durationEnv("BUNDLE_QUIET_PERIOD", 30*time.Second),

		MinHeightM:      floatEnv("MIN_HEIGHT_M", 0.5),
		MinPeriodS:      floatEnv("MIN_PERIOD_S", 8.0),
		MinSignificance: floatEnv("MIN_SIGNIFICANCE", 0.4),

		StalenessWindow: durationEnv("STALENESS_WINDOW", 6*time.Hour),
		HistoryDays:     intEnv("HISTORY_DAYS", 30),

		ValidateHoursAfter:    intEnv("VALIDATE_HOURS_AFTER", 24),
		ValidationInterval:    durationEnv("VALIDATION_INTERVAL", time.Hour),
		ValidationConcurrency: intEnv("VALIDATION_CONCURRENCY", 4),
		MatchWindow:           durationEnv("MATCH_WINDOW", 2*time.Hour),
		NDBCTimeout:           durationEnv("NDBC_TIMEOUT", 10*time.Second),
		NDBCCacheSize:         intEnv("NDBC_CACHE_SIZE", 256),

		TargetMaxMAEFt:       floatEnv("TARGET_MAX_MAE_FT", 2.0),
		TargetMinCategorical: floatEnv("TARGET_MIN_CATEGORICAL", 0.7),
		TargetMinDirection:   floatEnv("TARGET_MIN_DIRECTION", 0.7),
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	if cfg.SQLitePath == "" {
		return nil, errors.New("SQLITE_PATH is required")
	}
	if cfg.MinHeightM < 0 || cfg.MinPeriodS <= 0 || cfg.MinSignificance < 0 || cfg.MinSignificance > 1 {
		return nil, errors.New("detection thresholds out of range")
	}
	if cfg.ValidateHoursAfter <= 0 {
		return nil, errors.New("VALIDATE_HOURS_AFTER must be positive")
	}

	return cfg, nil
}

// TierTable returns the provider→tier mapping. The defaults cover the
// collector fleet's known source ids; anything else scores as an
// unverified aggregator.
func (c *Config) TierTable() domain.TierTable {
	return domain.NewTierTable(map[string]domain.Tier{
		"ndbc":         domain.TierGovernmentPrimary,
		"noaa-ww3":     domain.TierGovernmentPrimary,
		"opc-charts":   domain.TierGovernmentPrimary,
		"pacioos":      domain.TierResearch,
		"cdip":         domain.TierResearch,
		"jma-gpv":      domain.TierIntlGovernment,
		"ecmwf-wam":    domain.TierIntlGovernment,
		"surfline":     domain.TierCommercial,
		"stormglass":   domain.TierCommercial,
		"magicseaweed": domain.TierAggregator,
	})
}

func intEnv(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func floatEnv(key string, def float64) float64 {
	if s := os.Getenv(key); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v
		}
	}
	return def
}

func durationEnv(key string, def time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			return d
		}
	}
	return def
}
