package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/jzx17/goretry/pkg/retry"
	"github.com/jzx17/goretry/pkg/types"
)

// Load reads configuration from a YAML file.
// An empty path yields the defaults.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := Parse(data, &cfg); err != nil {
			return nil, err
		}
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Parse decodes YAML into cfg after expanding environment variables.
func Parse(data []byte, cfg *AppConfig) error {
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// LoadDotEnv loads variables from the given .env files (".env" when none).
// Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyDefaults fills unset fields.
func (c *AppConfig) ApplyDefaults() {
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if c.Retry.BackoffDelay == 0 {
		c.Retry.BackoffDelay = DefaultBackoffDelay
	}
	if len(c.Retry.RetryableKinds) == 0 {
		c.Retry.RetryableKinds = []string{DefaultRetryableKind}
	}
	if c.Retry.TraverseCauses == nil {
		traverse := true
		c.Retry.TraverseCauses = &traverse
	}
	if c.Retry.Label == "" {
		c.Retry.Label = DefaultLabel
	}
	if c.Retry.CacheCapacity == 0 {
		c.Retry.CacheCapacity = retry.DefaultCacheCapacity
	}

	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Endpoint.BaseURL == "" {
		c.Endpoint.BaseURL = DefaultBaseURL
	}
	if c.Endpoint.Timeout == 0 {
		c.Endpoint.Timeout = DefaultTimeout
	}

	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = DefaultInterval
	}
	if c.Scheduler.Workers == 0 {
		c.Scheduler.Workers = DefaultWorkers
	}
	if c.Scheduler.QueueSize == 0 {
		c.Scheduler.QueueSize = DefaultQueueSize
	}
	if c.Scheduler.Mode == "" {
		c.Scheduler.Mode = ModeStateless
		if c.Retry.Stateful {
			c.Scheduler.Mode = ModeStateful
		}
	}
	if c.Scheduler.MessageID == "" {
		c.Scheduler.MessageID = DefaultMessageID
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

// Validate checks value ranges.
func (c *AppConfig) Validate() error {
	var errs []error

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.BackoffDelay < 0 {
		errs = append(errs, fmt.Errorf("retry.backoff_delay must not be negative, got %s", c.Retry.BackoffDelay))
	}
	if c.Retry.CacheCapacity < 0 {
		errs = append(errs, fmt.Errorf("retry.cache_capacity must not be negative, got %d", c.Retry.CacheCapacity))
	}
	if c.Retry.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("retry.cache_ttl must not be negative, got %s", c.Retry.CacheTTL))
	}
	if _, err := c.Retry.Kinds(); err != nil {
		errs = append(errs, err)
	}
	if c.Scheduler.Interval < 0 {
		errs = append(errs, fmt.Errorf("scheduler.interval must not be negative, got %s", c.Scheduler.Interval))
	}
	if c.Scheduler.JobTimeout < 0 {
		errs = append(errs, fmt.Errorf("scheduler.job_timeout must not be negative, got %s", c.Scheduler.JobTimeout))
	}
	if c.Scheduler.Workers < 0 || c.Scheduler.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("scheduler.workers and scheduler.queue_size must not be negative"))
	}
	switch c.Scheduler.Mode {
	case ModeStateless, ModeStateful, ModeBoth:
	default:
		errs = append(errs, fmt.Errorf("scheduler.mode must be one of stateless, stateful, both, got %q", c.Scheduler.Mode))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// Kinds parses the retryable kinds.
func (r RetryConfig) Kinds() ([]types.ErrorKind, error) {
	kinds := make([]types.ErrorKind, 0, len(r.RetryableKinds))
	for _, name := range r.RetryableKinds {
		kind, err := types.ParseErrorKind(name)
		if err != nil {
			return nil, fmt.Errorf("retry.retryable_kinds: %w", err)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// Policy converts the retry options into a retry.Policy labelled label.
// An empty label selects the configured one.
func (r RetryConfig) Policy(label string) (retry.Policy, error) {
	kinds, err := r.Kinds()
	if err != nil {
		return retry.Policy{}, err
	}
	if label == "" {
		label = r.Label
	}

	traverse := r.TraverseCauses == nil || *r.TraverseCauses

	policy := retry.NewPolicy(r.MaxAttempts, r.BackoffDelay,
		retry.WithLabel(label),
		retry.WithRetryableKinds(traverse, kinds...),
		retry.WithRedeliver(r.Redeliver),
	)
	return policy, policy.Validate()
}

// NewCache builds the context cache selected by the options: an expiring LRU
// when cache_ttl is set, the sharded LRU otherwise.
func (r RetryConfig) NewCache(clock types.Clock, onEvict retry.EvictCallback) retry.RetryContextCache {
	if r.CacheTTL > 0 {
		return retry.NewExpiringContextCache(r.CacheCapacity, r.CacheTTL, onEvict)
	}

	opts := []retry.CacheOption{retry.WithCacheClock(clock)}
	if onEvict != nil {
		opts = append(opts, retry.WithEvictCallback(onEvict))
	}
	return retry.NewShardedContextCache(r.CacheCapacity, opts...)
}
