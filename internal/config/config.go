// Package config loads the pipeline settings from the environment, with an
// optional .env file for local runs.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/fpang/datalake-ingestion/internal/catalog"
	"github.com/fpang/datalake-ingestion/internal/gatekeeper"
	"github.com/fpang/datalake-ingestion/internal/lifecycle"
	"github.com/fpang/datalake-ingestion/internal/metrics"
	"github.com/fpang/datalake-ingestion/internal/objectstore"
	"github.com/fpang/datalake-ingestion/internal/registry"
	"github.com/fpang/datalake-ingestion/internal/retry"
	"github.com/fpang/datalake-ingestion/internal/sweeper"
	"github.com/fpang/datalake-ingestion/internal/validation"
)

// Environment variable names.
const (
	KeyBucket            = "DATALAKE_BUCKET"
	KeyRootPrefix        = "DATALAKE_ROOT_PREFIX"
	KeyDeliveredMarker   = "DATALAKE_DELIVERED_MARKER"
	KeySourceParam       = "DATALAKE_SOURCE_PARAM"
	KeySourceMatch       = "DATALAKE_SOURCE_MATCH"
	KeyStatusTag         = "DATALAKE_STATUS_TAG"
	KeyPlaceholderMarker = "DATALAKE_PLACEHOLDER_MARKER"
	KeySweepMinAge       = "DATALAKE_SWEEP_MIN_AGE"
	KeyRetryAttempts     = "DATALAKE_RETRY_ATTEMPTS"
	KeyRetryDelay        = "DATALAKE_RETRY_DELAY"
	KeyValidationWorkers = "DATALAKE_VALIDATION_WORKERS"
	KeyCatalogTable      = "DATALAKE_CATALOG_TABLE"
	KeyCatalogDatabase   = "DATALAKE_CATALOG_DATABASE"
	KeyEventBus          = "DATALAKE_EVENT_BUS"
	KeyS3Endpoint        = "DATALAKE_S3_ENDPOINT"
	KeyMetricsNamespace  = "DATALAKE_METRICS_NAMESPACE"
	KeyLogLevel          = "DATALAKE_LOG_LEVEL"
	KeyLogFormat         = "DATALAKE_LOG_FORMAT"
)

// DefaultRootPrefix is the arrival hub root of the lake.
const DefaultRootPrefix = "DataLakeV1/ArrivalHub"

// ErrMissingBucket is returned when DATALAKE_BUCKET is not set.
var ErrMissingBucket = errors.New(KeyBucket + " is required")

// Config is the resolved pipeline configuration.
type Config struct {
	Bucket            string
	RootPrefix        string
	DeliveredMarker   string
	SourceParam       string
	SourceMatch       registry.MatchMode
	StatusTag         string
	PlaceholderMarker string
	SweepMinAge       time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
	ValidationWorkers int
	CatalogTable      string
	CatalogDatabase   string
	EventBus          string
	S3Endpoint        string
	MetricsNamespace  string
	LogLevel          string
	LogFormat         string
}

// New returns a viper instance with every default set, reading the environment.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyBucket, "")
	v.SetDefault(KeyRootPrefix, DefaultRootPrefix)
	v.SetDefault(KeyDeliveredMarker, gatekeeper.DefaultDeliveredMarker)
	v.SetDefault(KeySourceParam, registry.DefaultParameter)
	v.SetDefault(KeySourceMatch, string(registry.MatchSubstring))
	v.SetDefault(KeyStatusTag, lifecycle.DefaultStatusTag)
	v.SetDefault(KeyPlaceholderMarker, lifecycle.DefaultPlaceholderMarker)
	v.SetDefault(KeySweepMinAge, sweeper.DefaultMinAge.String())
	v.SetDefault(KeyRetryAttempts, retry.DefaultMaxAttempts)
	v.SetDefault(KeyRetryDelay, retry.DefaultDelay.String())
	v.SetDefault(KeyValidationWorkers, validation.DefaultWorkers)
	v.SetDefault(KeyCatalogTable, "")
	v.SetDefault(KeyCatalogDatabase, catalog.DefaultDatabase)
	v.SetDefault(KeyEventBus, "")
	v.SetDefault(KeyS3Endpoint, "")
	v.SetDefault(KeyMetricsNamespace, metrics.DefaultNamespace)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "json")
	v.AutomaticEnv()
	return v
}

// LoadDotEnv loads ./.env into the environment if it exists. Variables
// already set are not overridden.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	LoadDotEnv()
	return FromViper(New())
}

// FromViper resolves a Config from v and validates it.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Bucket:            v.GetString(KeyBucket),
		RootPrefix:        v.GetString(KeyRootPrefix),
		DeliveredMarker:   v.GetString(KeyDeliveredMarker),
		SourceParam:       v.GetString(KeySourceParam),
		SourceMatch:       registry.ParseMatchMode(v.GetString(KeySourceMatch)),
		StatusTag:         v.GetString(KeyStatusTag),
		PlaceholderMarker: v.GetString(KeyPlaceholderMarker),
		SweepMinAge:       v.GetDuration(KeySweepMinAge),
		RetryAttempts:     v.GetInt(KeyRetryAttempts),
		RetryDelay:        v.GetDuration(KeyRetryDelay),
		ValidationWorkers: v.GetInt(KeyValidationWorkers),
		CatalogTable:      v.GetString(KeyCatalogTable),
		CatalogDatabase:   v.GetString(KeyCatalogDatabase),
		EventBus:          v.GetString(KeyEventBus),
		S3Endpoint:        v.GetString(KeyS3Endpoint),
		MetricsNamespace:  v.GetString(KeyMetricsNamespace),
		LogLevel:          v.GetString(KeyLogLevel),
		LogFormat:         v.GetString(KeyLogFormat),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the numeric settings. The bucket is checked separately by
// RequireBucket since the gatekeeper takes its bucket from the event.
func (c *Config) Validate() error {
	if c.RetryAttempts < 1 {
		return fmt.Errorf("%s must be at least 1, got %d", KeyRetryAttempts, c.RetryAttempts)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("%s must not be negative, got %s", KeyRetryDelay, c.RetryDelay)
	}
	if c.SweepMinAge <= 0 {
		return fmt.Errorf("%s must be positive, got %s", KeySweepMinAge, c.SweepMinAge)
	}
	if c.ValidationWorkers < 1 {
		return fmt.Errorf("%s must be at least 1, got %d", KeyValidationWorkers, c.ValidationWorkers)
	}
	return nil
}

// RequireBucket returns ErrMissingBucket when no lake bucket is configured.
func (c *Config) RequireBucket() error {
	if c.Bucket == "" {
		return ErrMissingBucket
	}
	return nil
}

// RetryPolicy returns the relocation retry policy. Only transient store
// failures are retried.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.RetryAttempts,
		Backoff:     retry.Fixed(c.RetryDelay),
		Retryable:   objectstore.IsTransient,
	}
}

// GatekeeperConfig returns the gatekeeper settings.
func (c *Config) GatekeeperConfig() gatekeeper.Config {
	return gatekeeper.Config{
		StatusTag:         c.StatusTag,
		PlaceholderMarker: c.PlaceholderMarker,
		Retry:             c.RetryPolicy(),
	}
}

// SweeperConfig returns the sweeper settings.
func (c *Config) SweeperConfig() sweeper.Config {
	return sweeper.Config{
		Bucket:            c.Bucket,
		RootPrefix:        c.RootPrefix,
		StatusTag:         c.StatusTag,
		PlaceholderMarker: c.PlaceholderMarker,
		MinAge:            c.SweepMinAge,
		Retry:             c.RetryPolicy(),
	}
}

// JobConfig returns the validation job settings for sourceID.
func (c *Config) JobConfig(sourceID string) validation.JobConfig {
	return validation.JobConfig{
		Bucket:          c.Bucket,
		RootPrefix:      c.RootPrefix,
		SourceID:        sourceID,
		StatusTag:       c.StatusTag,
		MinAge:          c.SweepMinAge,
		Workers:         c.ValidationWorkers,
		CatalogDatabase: c.CatalogDatabase,
	}
}
