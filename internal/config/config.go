// Package config loads ecswait settings from defaults and ECSWAIT_*
// environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lattiam/ecswait/internal/awsutil"
	"github.com/lattiam/ecswait/internal/waiter"
)

// Result store types
const (
	ResultStoreNone     = "none"
	ResultStoreMemory   = "memory"
	ResultStoreFile     = "file"
	ResultStoreDynamoDB = "dynamodb"
	ResultStoreS3       = "s3"
	ResultStoreRedis    = "redis"
)

// AppVersion is the application version, can be set at build time or runtime
var AppVersion = "dev"

// Config holds all configuration for ecswait
type Config struct {
	Debug bool `json:"debug" env:"ECSWAIT_DEBUG" default:"false" desc:"Include configuration details in diagnostics"`

	Wait WaitConfig `json:"wait"`

	// Concurrency bounds how many waits of a batch run at once
	Concurrency int `json:"concurrency" env:"ECSWAIT_CONCURRENCY" flag:"concurrency" default:"4" desc:"Concurrent waits in a batch"`

	AWS AWSConfig `json:"aws"`

	Results ResultsConfig `json:"results"`
}

// WaitConfig holds the default wait budget
type WaitConfig struct {
	PollInterval       time.Duration `json:"poll_interval" env:"ECSWAIT_POLL_INTERVAL" flag:"poll-interval" default:"5s" desc:"Initial delay between polls"`
	Timeout            time.Duration `json:"timeout" env:"ECSWAIT_TIMEOUT" flag:"timeout" default:"15m" desc:"Total wait budget"`
	Multiplier         float64       `json:"backoff_multiplier" env:"ECSWAIT_BACKOFF_MULTIPLIER" flag:"multiplier" default:"1.5" desc:"Backoff multiplier"`
	MaxInterval        time.Duration `json:"max_interval" env:"ECSWAIT_MAX_INTERVAL" flag:"max-interval" default:"30s" desc:"Poll interval cap"`
	MaxTransientErrors int           `json:"max_transient_errors" env:"ECSWAIT_MAX_TRANSIENT_ERRORS" flag:"max-transient-errors" default:"5" desc:"Consecutive observation errors tolerated"`
	Jitter             float64       `json:"jitter" env:"ECSWAIT_JITTER" default:"0.2" desc:"Random fraction applied to each delay"`

	// maxIntervalSet records an explicit cap, which is never raised
	maxIntervalSet bool
}

// SetPollInterval sets the initial poll interval. A cap that was not set
// explicitly is raised to d when it would fall below it.
func (w *WaitConfig) SetPollInterval(d time.Duration) {
	w.PollInterval = d
	if !w.maxIntervalSet && w.MaxInterval < d {
		w.MaxInterval = d
	}
}

// SetMaxInterval sets the poll interval cap explicitly
func (w *WaitConfig) SetMaxInterval(d time.Duration) {
	w.MaxInterval = d
	w.maxIntervalSet = true
}

// AWSConfig selects the AWS account, region and endpoint
type AWSConfig struct {
	Region   string `json:"region" env:"ECSWAIT_AWS_REGION" flag:"region" default:"" desc:"AWS region (falls back to AWS_REGION)"`
	Profile  string `json:"profile" env:"ECSWAIT_AWS_PROFILE" flag:"profile" default:"" desc:"Shared config profile"`
	Endpoint string `json:"endpoint" env:"ECSWAIT_AWS_ENDPOINT" default:"" desc:"Custom AWS endpoint (for LocalStack)"`
}

// ResultsConfig holds result ledger configuration
type ResultsConfig struct {
	Store         string        `json:"store" env:"ECSWAIT_RESULT_STORE" flag:"result-store" default:"file" desc:"Result store type (none, memory, file, dynamodb, s3, redis)"`
	Path          string        `json:"path" env:"ECSWAIT_RESULT_PATH" default:"~/.ecswait/results" desc:"Directory for the file result store"`
	DynamoDBTable string        `json:"dynamodb_table" env:"ECSWAIT_DYNAMODB_TABLE" desc:"DynamoDB table for results"`
	S3Bucket      string        `json:"s3_bucket" env:"ECSWAIT_S3_BUCKET" desc:"S3 bucket for results"`
	S3Prefix      string        `json:"s3_prefix" env:"ECSWAIT_S3_PREFIX" default:"results/" desc:"S3 key prefix for result objects"`
	RedisURL      string        `json:"redis_url" env:"ECSWAIT_REDIS_URL" desc:"Redis URL for results"`
	TTL           time.Duration `json:"ttl" env:"ECSWAIT_RESULT_TTL" default:"168h" desc:"How long stored results are kept (redis, dynamodb)"`
}

// NewConfig creates a new configuration with defaults
func NewConfig() *Config {
	return &Config{
		Debug: false,
		Wait: WaitConfig{
			PollInterval:       waiter.DefaultPollInterval,
			Timeout:            waiter.DefaultTimeout,
			Multiplier:         waiter.DefaultMultiplier,
			MaxInterval:        waiter.DefaultMaxInterval,
			MaxTransientErrors: waiter.DefaultMaxTransientErrors,
			Jitter:             waiter.DefaultJitter,
		},
		Concurrency: 4,
		Results: ResultsConfig{
			Store:    ResultStoreFile,
			Path:     "~/.ecswait/results",
			S3Prefix: "results/",
			TTL:      7 * 24 * time.Hour,
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error { //nolint:funlen,gocognit,gocyclo // Configuration loading function with many environment variables
	if debug := os.Getenv("ECSWAIT_DEBUG"); debug != "" {
		v, err := parseBool(debug)
		if err != nil {
			return fmt.Errorf("invalid ECSWAIT_DEBUG value: %s", debug)
		}
		c.Debug = v
	}

	// Wait budget
	if os.Getenv("ECSWAIT_MAX_INTERVAL") != "" {
		maxInterval := c.Wait.MaxInterval
		if err := envDuration("ECSWAIT_MAX_INTERVAL", &maxInterval); err != nil {
			return err
		}
		c.Wait.SetMaxInterval(maxInterval)
	}
	if os.Getenv("ECSWAIT_POLL_INTERVAL") != "" {
		pollInterval := c.Wait.PollInterval
		if err := envDuration("ECSWAIT_POLL_INTERVAL", &pollInterval); err != nil {
			return err
		}
		c.Wait.SetPollInterval(pollInterval)
	}
	if err := envDuration("ECSWAIT_TIMEOUT", &c.Wait.Timeout); err != nil {
		return err
	}
	if err := envFloat("ECSWAIT_BACKOFF_MULTIPLIER", &c.Wait.Multiplier); err != nil {
		return err
	}
	if err := envFloat("ECSWAIT_JITTER", &c.Wait.Jitter); err != nil {
		return err
	}
	if err := envInt("ECSWAIT_MAX_TRANSIENT_ERRORS", &c.Wait.MaxTransientErrors); err != nil {
		return err
	}
	if err := envInt("ECSWAIT_CONCURRENCY", &c.Concurrency); err != nil {
		return err
	}

	// AWS
	if region := os.Getenv("AWS_REGION"); region != "" {
		c.AWS.Region = region
	}
	if region := os.Getenv("ECSWAIT_AWS_REGION"); region != "" {
		c.AWS.Region = region
	}
	if profile := os.Getenv("ECSWAIT_AWS_PROFILE"); profile != "" {
		c.AWS.Profile = profile
	}
	if endpoint := os.Getenv("ECSWAIT_AWS_ENDPOINT"); endpoint != "" {
		c.AWS.Endpoint = endpoint
	}

	// Result store
	if store := os.Getenv("ECSWAIT_RESULT_STORE"); store != "" {
		c.Results.Store = strings.ToLower(store)
	}
	if path := os.Getenv("ECSWAIT_RESULT_PATH"); path != "" {
		c.Results.Path = path
	}
	if table := os.Getenv("ECSWAIT_DYNAMODB_TABLE"); table != "" {
		c.Results.DynamoDBTable = table
	}
	if bucket := os.Getenv("ECSWAIT_S3_BUCKET"); bucket != "" {
		c.Results.S3Bucket = bucket
	}
	if prefix := os.Getenv("ECSWAIT_S3_PREFIX"); prefix != "" {
		c.Results.S3Prefix = prefix
	}
	if redisURL := os.Getenv("ECSWAIT_REDIS_URL"); redisURL != "" {
		c.Results.RedisURL = redisURL
	}
	return envDuration("ECSWAIT_RESULT_TTL", &c.Results.TTL)
}

// ExpandPaths expands all paths in the configuration (~ to home directory)
func (c *Config) ExpandPaths() error {
	var err error
	c.Results.Path, err = expandPath(c.Results.Path)
	if err != nil {
		return fmt.Errorf("failed to expand result path: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.Wait.Validate(); err != nil {
		return err
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}

	switch c.Results.Store {
	case ResultStoreNone, ResultStoreMemory:
	case ResultStoreFile:
		if c.Results.Path == "" {
			return fmt.Errorf("result path is required when using the file result store")
		}
	case ResultStoreDynamoDB:
		if c.Results.DynamoDBTable == "" {
			return fmt.Errorf("DynamoDB table is required when using the dynamodb result store")
		}
	case ResultStoreS3:
		if c.Results.S3Bucket == "" {
			return fmt.Errorf("S3 bucket is required when using the s3 result store")
		}
		if c.Results.S3Prefix == "" {
			c.Results.S3Prefix = "results/"
		}
	case ResultStoreRedis:
		if c.Results.RedisURL == "" {
			return fmt.Errorf("redis URL is required when using the redis result store")
		}
	default:
		return fmt.Errorf("invalid result store type: %s", c.Results.Store)
	}

	if c.Results.TTL < 0 {
		return fmt.Errorf("result TTL cannot be negative")
	}
	return nil
}

// Validate checks the wait budget settings
func (w WaitConfig) Validate() error {
	if w.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", w.PollInterval)
	}
	if w.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", w.Timeout)
	}
	if w.Multiplier < 1 {
		return fmt.Errorf("backoff multiplier must be at least 1, got %g", w.Multiplier)
	}
	if w.MaxInterval < w.PollInterval {
		return fmt.Errorf("max interval %s is shorter than poll interval %s", w.MaxInterval, w.PollInterval)
	}
	if w.MaxTransientErrors < 1 {
		return fmt.Errorf("max transient errors must be at least 1, got %d", w.MaxTransientErrors)
	}
	if w.Jitter < 0 || w.Jitter >= 1 {
		return fmt.Errorf("jitter must be in [0, 1), got %g", w.Jitter)
	}
	return nil
}

// Budget returns the wait settings as a budget config
func (w WaitConfig) Budget() waiter.BudgetConfig {
	return waiter.BudgetConfig{
		PollInterval:       w.PollInterval,
		Timeout:            w.Timeout,
		Multiplier:         w.Multiplier,
		MaxInterval:        w.MaxInterval,
		MaxTransientErrors: w.MaxTransientErrors,
		Jitter:             w.Jitter,
	}
}

// Options returns the AWS settings for client construction
func (a AWSConfig) Options() awsutil.Options {
	return awsutil.Options{
		Region:   a.Region,
		Profile:  a.Profile,
		Endpoint: a.Endpoint,
	}
}

// ToJSON returns the configuration as a JSON string
func (c *Config) ToJSON() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// GetSanitized returns a sanitized version of the config safe for logging
func (c *Config) GetSanitized() map[string]interface{} {
	sanitized := map[string]interface{}{
		"debug":                c.Debug,
		"poll_interval":        c.Wait.PollInterval.String(),
		"timeout":              c.Wait.Timeout.String(),
		"backoff_multiplier":   c.Wait.Multiplier,
		"max_interval":         c.Wait.MaxInterval.String(),
		"max_transient_errors": c.Wait.MaxTransientErrors,
		"jitter":               c.Wait.Jitter,
		"concurrency":          c.Concurrency,
		"result_store":         c.Results.Store,
		"aws_region":           c.AWS.Region,
	}

	// In debug mode, report which settings are present without their values
	if c.Debug {
		sanitized["aws_profile_configured"] = c.AWS.Profile != ""
		sanitized["aws_endpoint_configured"] = c.AWS.Endpoint != ""
		sanitized["result_path_configured"] = c.Results.Path != ""
		sanitized["result_ttl"] = c.Results.TTL.String()

		switch c.Results.Store {
		case ResultStoreDynamoDB:
			sanitized["dynamodb_table_configured"] = c.Results.DynamoDBTable != ""
		case ResultStoreS3:
			sanitized["s3_bucket_configured"] = c.Results.S3Bucket != ""
			sanitized["s3_prefix"] = c.Results.S3Prefix
		case ResultStoreRedis:
			sanitized["redis_configured"] = c.Results.RedisURL != ""
		}
	}

	return sanitized
}

// Load builds a configuration from defaults and the environment, then
// expands paths and validates it
func Load() (*Config, error) {
	cfg := NewConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.ExpandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// expandPath expands ~ to the home directory
func expandPath(path string) (string, error) {
	if path == "" {
		return path, nil
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	return filepath.Clean(path), nil
}

func envDuration(key string, dst *time.Duration) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s value: %s", key, raw)
	}
	*dst = d
	return nil
}

func envFloat(key string, dst *float64) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid %s value: %s", key, raw)
	}
	*dst = f
	return nil
}

func envInt(key string, dst *int) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s value: %s", key, raw)
	}
	*dst = n
	return nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", s)
	}
}
