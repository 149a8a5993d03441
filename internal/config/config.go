package config

import (
	"time"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Retry     RetryConfig     `yaml:"retry"`
	Server    ServerConfig    `yaml:"server"`
	Endpoint  EndpointConfig  `yaml:"endpoint"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// RetryConfig holds the retry policy options.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	BackoffDelay   time.Duration `yaml:"backoff_delay"`
	RetryableKinds []string      `yaml:"retryable_kinds"` // remote_access, unknown
	TraverseCauses *bool         `yaml:"traverse_causes"` // nil = true
	Stateful       bool          `yaml:"stateful"`
	Label          string        `yaml:"label"`
	CacheCapacity  int           `yaml:"cache_capacity"`
	CacheTTL       time.Duration `yaml:"cache_ttl"` // 0 = no expiry
	Redeliver      bool          `yaml:"redeliver"`
}

// ServerConfig holds the remote endpoint server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// EndpointConfig holds the client settings for the remote endpoint.
type EndpointConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// SchedulerConfig holds the periodic trigger settings.
type SchedulerConfig struct {
	Interval  time.Duration `yaml:"interval"`
	Workers   int           `yaml:"workers"`
	QueueSize int           `yaml:"queue_size"`
	Mode      string        `yaml:"mode"` // stateless, stateful, both
	MessageID string        `yaml:"message_id"`

	// JobTimeout bounds one firing of a job, 0 = unbounded
	JobTimeout time.Duration `yaml:"job_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// Scheduler modes
const (
	ModeStateless = "stateless"
	ModeStateful  = "stateful"
	ModeBoth      = "both"
)

// Defaults
const (
	DefaultMaxAttempts   = 2
	DefaultBackoffDelay  = 5 * time.Second
	DefaultLabel         = "stateFullRetryTestSendMessage"
	DefaultServerAddr    = ":8080"
	DefaultBaseURL       = "http://localhost:8080"
	DefaultTimeout       = 5 * time.Second
	DefaultInterval      = 30 * time.Second
	DefaultWorkers       = 4
	DefaultQueueSize     = 16
	DefaultMessageID     = "001"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "console"
	DefaultRetryableKind = "remote_access"
)
