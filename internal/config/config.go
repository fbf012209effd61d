package config

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// Config holds all configuration for the taskpulse application.
// Values are loaded from environment variables; see printUsage() for the full list.
type Config struct {
	BrokerHost     string `json:"broker_host"`
	BrokerHTTPPort string `json:"broker_http_port"`
	PubSubName     string `json:"pubsub_name"`
	StateStoreName string `json:"state_store_name"`

	HTTPAddr    string `json:"http_addr"`
	DatabaseURL string `json:"database_url,omitempty"`
	RedisAddr   string `json:"redis_addr,omitempty"`

	PublishTimeout    time.Duration `json:"-"`
	PublishTimeoutStr string        `json:"publish_timeout"`

	// Circuit breaker defaults applied to every named breaker.
	BreakerThreshold       int           `json:"breaker_threshold"`
	BreakerResetTimeout    time.Duration `json:"-"`
	BreakerResetTimeoutStr string        `json:"breaker_reset_timeout"`

	// IdempotencyTTL applies to the Redis ledger only; 0 retains keys forever.
	IdempotencyTTL    time.Duration `json:"-"`
	IdempotencyTTLStr string        `json:"idempotency_ttl"`

	TickInterval    time.Duration `json:"-"`
	TickIntervalStr string        `json:"tick_interval"`

	ReminderBatchSize  int `json:"reminder_batch_size"`
	EventBusBufferSize int `json:"eventbus_buffer_size"`

	DispatcherDrainTimeout    time.Duration `json:"-"`
	DispatcherDrainTimeoutStr string        `json:"dispatcher_drain_timeout"`

	HTTPShutdownTimeout    time.Duration `json:"-"`
	HTTPShutdownTimeoutStr string        `json:"http_shutdown_timeout"`

	DBOpTimeout    time.Duration `json:"-"`
	DBOpTimeoutStr string        `json:"db_op_timeout"`

	DBMaxOpenConns       int           `json:"db_max_open_conns"`
	DBMaxIdleConns       int           `json:"db_max_idle_conns"`
	DBConnMaxLifetime    time.Duration `json:"-"`
	DBConnMaxLifetimeStr string        `json:"db_conn_max_lifetime"`

	// Conversation state window (adjacent chat subsystem).
	MessageWindowSize int `json:"message_window_size"`
	MaxMessages       int `json:"max_messages"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`
	MetricsPort    string `json:"metrics_port"`

	// LeaderLockKey: all instances sharing the same database must use the same key.
	LeaderEnabled              bool          `json:"leader_enabled"`
	LeaderLockKey              int64         `json:"leader_lock_key"`
	LeaderRetryInterval        time.Duration `json:"-"`
	LeaderRetryIntervalStr     string        `json:"leader_retry_interval"`
	LeaderHeartbeatInterval    time.Duration `json:"-"`
	LeaderHeartbeatIntervalStr string        `json:"leader_heartbeat_interval"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		BrokerHost:                 os.Getenv("BROKER_HOST"),
		BrokerHTTPPort:             os.Getenv("BROKER_HTTP_PORT"),
		PubSubName:                 os.Getenv("PUBSUB_NAME"),
		StateStoreName:             os.Getenv("STATE_STORE_NAME"),
		HTTPAddr:                   os.Getenv("HTTP_ADDR"),
		DatabaseURL:                os.Getenv("DATABASE_URL"),
		RedisAddr:                  os.Getenv("REDIS_ADDR"),
		PublishTimeoutStr:          os.Getenv("PUBLISH_TIMEOUT"),
		BreakerResetTimeoutStr:     os.Getenv("CB_RESET_TIMEOUT"),
		IdempotencyTTLStr:          os.Getenv("IDEMPOTENCY_TTL"),
		TickIntervalStr:            os.Getenv("TICK_INTERVAL"),
		DispatcherDrainTimeoutStr:  os.Getenv("DISPATCHER_DRAIN_TIMEOUT"),
		HTTPShutdownTimeoutStr:     os.Getenv("HTTP_SHUTDOWN_TIMEOUT"),
		DBOpTimeoutStr:             os.Getenv("DB_OP_TIMEOUT"),
		DBConnMaxLifetimeStr:       os.Getenv("DB_CONN_MAX_LIFETIME"),
		MetricsEnabled:             os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:                os.Getenv("METRICS_PATH"),
		MetricsPort:                os.Getenv("METRICS_PORT"),
		LeaderEnabled:              os.Getenv("LEADER_ENABLED") == "true",
		LeaderRetryIntervalStr:     os.Getenv("LEADER_RETRY_INTERVAL"),
		LeaderHeartbeatIntervalStr: os.Getenv("LEADER_HEARTBEAT_INTERVAL"),
	}

	cfg.BreakerThreshold = loadPositiveInt("CB_FAILURE_THRESHOLD", 5)
	cfg.ReminderBatchSize = loadPositiveInt("REMINDER_BATCH_SIZE", 100)
	cfg.EventBusBufferSize = loadPositiveInt("EVENTBUS_BUFFER_SIZE", 100)
	cfg.DBMaxOpenConns = loadPositiveInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = loadPositiveInt("DB_MAX_IDLE_CONNS", 5)
	cfg.MessageWindowSize = loadPositiveInt("MESSAGE_WINDOW_SIZE", 50)
	cfg.MaxMessages = loadPositiveInt("MAX_MESSAGES", 200)
	cfg.LeaderLockKey = int64(loadPositiveInt("LEADER_LOCK_KEY", 918273))

	if cfg.BrokerHost == "" {
		cfg.BrokerHost = "localhost"
	}
	if cfg.BrokerHTTPPort == "" {
		cfg.BrokerHTTPPort = "3500"
	}
	if cfg.PubSubName == "" {
		cfg.PubSubName = "pubsub"
	}
	if cfg.StateStoreName == "" {
		cfg.StateStoreName = "statestore"
	}

	// Support Railway's PORT variable as fallback for HTTP_ADDR.
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}

	if cfg.PublishTimeoutStr == "" {
		cfg.PublishTimeoutStr = "5s"
	}
	if cfg.BreakerResetTimeoutStr == "" {
		cfg.BreakerResetTimeoutStr = "60s"
	}
	if cfg.IdempotencyTTLStr == "" {
		cfg.IdempotencyTTLStr = "24h"
	}
	if cfg.TickIntervalStr == "" {
		cfg.TickIntervalStr = "30s"
	}
	if cfg.DispatcherDrainTimeoutStr == "" {
		cfg.DispatcherDrainTimeoutStr = "30s"
	}
	if cfg.HTTPShutdownTimeoutStr == "" {
		cfg.HTTPShutdownTimeoutStr = "10s"
	}
	if cfg.DBOpTimeoutStr == "" {
		cfg.DBOpTimeoutStr = "5s"
	}
	if cfg.DBConnMaxLifetimeStr == "" {
		cfg.DBConnMaxLifetimeStr = "30m"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.MetricsPort == "" {
		cfg.MetricsPort = "9090"
	}
	if cfg.LeaderRetryIntervalStr == "" {
		cfg.LeaderRetryIntervalStr = "5s"
	}
	if cfg.LeaderHeartbeatIntervalStr == "" {
		cfg.LeaderHeartbeatIntervalStr = "2s"
	}

	// Parse durations; validation is handled separately by Validate().
	if d, err := time.ParseDuration(cfg.PublishTimeoutStr); err == nil {
		cfg.PublishTimeout = d
	}
	if d, err := time.ParseDuration(cfg.BreakerResetTimeoutStr); err == nil {
		cfg.BreakerResetTimeout = d
	}
	if d, err := time.ParseDuration(cfg.IdempotencyTTLStr); err == nil {
		cfg.IdempotencyTTL = d
	}
	if d, err := time.ParseDuration(cfg.TickIntervalStr); err == nil {
		cfg.TickInterval = d
	}
	if d, err := time.ParseDuration(cfg.DispatcherDrainTimeoutStr); err == nil {
		cfg.DispatcherDrainTimeout = d
	}
	if d, err := time.ParseDuration(cfg.HTTPShutdownTimeoutStr); err == nil {
		cfg.HTTPShutdownTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DBOpTimeoutStr); err == nil {
		cfg.DBOpTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxLifetimeStr); err == nil {
		cfg.DBConnMaxLifetime = d
	}
	if d, err := time.ParseDuration(cfg.LeaderRetryIntervalStr); err == nil {
		cfg.LeaderRetryInterval = d
	}
	if d, err := time.ParseDuration(cfg.LeaderHeartbeatIntervalStr); err == nil {
		cfg.LeaderHeartbeatInterval = d
	}

	return cfg
}

// loadPositiveInt reads a positive integer env var, falling back to def on
// absence or invalid input (logged).
func loadPositiveInt(name string, def int) int {
	s := os.Getenv(name)
	if s == "" {
		return def
	}
	n, err := parseInt(s)
	if err != nil || n <= 0 {
		log.Printf("config: invalid %s %q (must be a positive integer), using default %d", name, s, def)
		return def
	}
	return n
}

// parseInt parses a string as a non-negative integer.
func parseInt(s string) (int, error) {
	if s == "" {
		return 0, os.ErrInvalid
	}
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// BrokerBaseURL returns the publish endpoint prefix of the broker sidecar.
func (c Config) BrokerBaseURL() string {
	return "http://" + c.BrokerHost + ":" + c.BrokerHTTPPort + "/v1.0/publish/" + c.PubSubName
}

// StateStoreBaseURL returns the state endpoint prefix of the broker sidecar.
func (c Config) StateStoreBaseURL() string {
	return "http://" + c.BrokerHost + ":" + c.BrokerHTTPPort + "/v1.0/state/" + c.StateStoreName
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := struct {
		BrokerHost              string `json:"broker_host"`
		BrokerHTTPPort          string `json:"broker_http_port"`
		PubSubName              string `json:"pubsub_name"`
		StateStoreName          string `json:"state_store_name"`
		HTTPAddr                string `json:"http_addr"`
		DatabaseURL             string `json:"database_url,omitempty"`
		RedisAddr               string `json:"redis_addr,omitempty"`
		PublishTimeout          string `json:"publish_timeout"`
		BreakerThreshold        int    `json:"breaker_threshold"`
		BreakerResetTimeout     string `json:"breaker_reset_timeout"`
		IdempotencyTTL          string `json:"idempotency_ttl"`
		TickInterval            string `json:"tick_interval"`
		ReminderBatchSize       int    `json:"reminder_batch_size"`
		EventBusBufferSize      int    `json:"eventbus_buffer_size"`
		DispatcherDrainTimeout  string `json:"dispatcher_drain_timeout"`
		HTTPShutdownTimeout     string `json:"http_shutdown_timeout"`
		DBOpTimeout             string `json:"db_op_timeout"`
		DBMaxOpenConns          int    `json:"db_max_open_conns"`
		DBMaxIdleConns          int    `json:"db_max_idle_conns"`
		DBConnMaxLifetime       string `json:"db_conn_max_lifetime"`
		MessageWindowSize       int    `json:"message_window_size"`
		MaxMessages             int    `json:"max_messages"`
		MetricsEnabled          bool   `json:"metrics_enabled"`
		MetricsPath             string `json:"metrics_path"`
		MetricsPort             string `json:"metrics_port"`
		LeaderEnabled           bool   `json:"leader_enabled"`
		LeaderLockKey           int64  `json:"leader_lock_key"`
		LeaderRetryInterval     string `json:"leader_retry_interval"`
		LeaderHeartbeatInterval string `json:"leader_heartbeat_interval"`
	}{
		BrokerHost:              c.BrokerHost,
		BrokerHTTPPort:          c.BrokerHTTPPort,
		PubSubName:              c.PubSubName,
		StateStoreName:          c.StateStoreName,
		HTTPAddr:                c.HTTPAddr,
		DatabaseURL:             maskSecret(c.DatabaseURL),
		RedisAddr:               c.RedisAddr,
		PublishTimeout:          c.PublishTimeoutStr,
		BreakerThreshold:        c.BreakerThreshold,
		BreakerResetTimeout:     c.BreakerResetTimeoutStr,
		IdempotencyTTL:          c.IdempotencyTTLStr,
		TickInterval:            c.TickIntervalStr,
		ReminderBatchSize:       c.ReminderBatchSize,
		EventBusBufferSize:      c.EventBusBufferSize,
		DispatcherDrainTimeout:  c.DispatcherDrainTimeoutStr,
		HTTPShutdownTimeout:     c.HTTPShutdownTimeoutStr,
		DBOpTimeout:             c.DBOpTimeoutStr,
		DBMaxOpenConns:          c.DBMaxOpenConns,
		DBMaxIdleConns:          c.DBMaxIdleConns,
		DBConnMaxLifetime:       c.DBConnMaxLifetimeStr,
		MessageWindowSize:       c.MessageWindowSize,
		MaxMessages:             c.MaxMessages,
		MetricsEnabled:          c.MetricsEnabled,
		MetricsPath:             c.MetricsPath,
		MetricsPort:             c.MetricsPort,
		LeaderEnabled:           c.LeaderEnabled,
		LeaderLockKey:           c.LeaderLockKey,
		LeaderRetryInterval:     c.LeaderRetryIntervalStr,
		LeaderHeartbeatInterval: c.LeaderHeartbeatIntervalStr,
	}
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if len(s) >= len(scheme) && s[:len(scheme)] == scheme {
			return scheme + "***"
		}
	}
	return "***"
}
