package config

// Config is the on-disk configuration. Keys are snake_case; durations are Go
// duration strings ("500ms", "10s", "1m").
type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Scheduler controls polling and next-run math.
	Scheduler SchedulerConfig `json:"scheduler"`

	// TaskEngine controls execution of dispatched runs.
	// If omitted, it follows scheduler.enabled with defaults.
	TaskEngine *TaskEngineConfig `json:"task_engine,omitempty"`

	Storage   *StorageConfig   `json:"storage,omitempty"`
	Lock      *LockConfig      `json:"lock,omitempty"`
	RateLimit *RateLimitConfig `json:"rate_limit,omitempty"`

	Normalizer NormalizerConfig `json:"normalizer"`
	Catalog    CatalogConfig    `json:"catalog"`

	// Admin is the optional operator HTTP API.
	Admin *AdminConfig `json:"admin,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	Format  string      `json:"format,omitempty"` // console|json
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the scheduler (trigger) service.
//
// Defaults (when fields are omitted/zero):
//   - poll_interval: "1m"
//   - run_timeout: "0s" (task_engine.default_timeout applies)
//   - timezone: "UTC"
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`

	// Timezone is the reference zone for next-run math.
	Timezone string `json:"timezone,omitempty"`
	// HonorTimezone uses each schedule's own timezone when it is loadable.
	HonorTimezone bool `json:"honor_timezone,omitempty"`

	PollInterval string `json:"poll_interval,omitempty"`
	RunTimeout   string `json:"run_timeout,omitempty"`
}

// TaskEngineConfig controls the task execution engine.
//
// Enabled is a pointer so we can distinguish "omitted" (default to scheduler.enabled)
// from an explicit false.
//
// Defaults (when fields are omitted/zero):
//   - workers: 4
//   - queue_size: 256
//   - default_timeout: "0s" (disabled)
//   - max_queue_delay: "0s" (disabled)
//   - history_size: 200
type TaskEngineConfig struct {
	Enabled *bool `json:"enabled,omitempty"`
	Workers int   `json:"workers,omitempty"`

	QueueSize int `json:"queue_size,omitempty"`

	DefaultTimeout string `json:"default_timeout,omitempty"`
	MaxQueueDelay  string `json:"max_queue_delay,omitempty"`

	HistorySize int `json:"history_size,omitempty"`
}

// StorageConfig controls persistence. Omitted means in-memory.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./autosched.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
	RunHistory  int    `json:"run_history,omitempty"`  // memory and file drivers
}

// LockConfig selects the per-automation lock. Omitted means in-process.
type LockConfig struct {
	Driver string          `json:"driver"` // memory|redis
	TTL    string          `json:"ttl,omitempty"`
	Redis  LockRedisConfig `json:"redis"`
}

type LockRedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password,omitempty"` // never logged
	DB       int    `json:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
}

// RateLimitConfig limits manual triggers per automation.
type RateLimitConfig struct {
	Enabled         bool    `json:"enabled"`
	ManualPerMinute int     `json:"manual_per_minute"`
	Burst           int     `json:"burst,omitempty"`
	IdleTTL         string  `json:"idle_ttl,omitempty"`
}

// NormalizerConfig overrides the schedule type vocabulary, keyed by family
// then by raw type, e.g. {"data_sync": {"monthly": "MONTHLY"}}.
type NormalizerConfig struct {
	Overrides map[string]map[string]string `json:"overrides,omitempty"`
}

type CatalogConfig struct {
	Path string `json:"path,omitempty"`
}

// AdminConfig controls the operator HTTP API.
//
// Security:
//   - addr defaults to 127.0.0.1:7070.
//   - A non-loopback addr requires token or allow_insecure.
type AdminConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // never logged
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}
