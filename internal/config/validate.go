package config

import (
	"fmt"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	if cfg.BrokerHost == "" {
		errs = append(errs, ValidationError{
			Field:   "BROKER_HOST",
			Message: "required",
		})
	}
	if cfg.BrokerHTTPPort == "" {
		errs = append(errs, ValidationError{
			Field:   "BROKER_HTTP_PORT",
			Message: "required",
		})
	}

	errs = appendDurationErrors(errs, "PUBLISH_TIMEOUT", cfg.PublishTimeoutStr, true)
	errs = appendDurationErrors(errs, "CB_RESET_TIMEOUT", cfg.BreakerResetTimeoutStr, true)
	errs = appendDurationErrors(errs, "TICK_INTERVAL", cfg.TickIntervalStr, true)
	// 0 disables expiry for the Redis ledger, so the TTL may be zero.
	errs = appendDurationErrors(errs, "IDEMPOTENCY_TTL", cfg.IdempotencyTTLStr, false)

	if cfg.BreakerThreshold <= 0 {
		errs = append(errs, ValidationError{
			Field:   "CB_FAILURE_THRESHOLD",
			Message: "must be positive",
		})
	}

	// Leader election holds a Postgres advisory lock; it needs a database.
	if cfg.LeaderEnabled && cfg.DatabaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "LEADER_ENABLED",
			Message: "requires DATABASE_URL",
		})
	}

	if cfg.MaxMessages < cfg.MessageWindowSize {
		errs = append(errs, ValidationError{
			Field:   "MAX_MESSAGES",
			Message: fmt.Sprintf("must be >= MESSAGE_WINDOW_SIZE (%d)", cfg.MessageWindowSize),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func appendDurationErrors(errs ValidationErrors, field, value string, positive bool) ValidationErrors {
	if value == "" {
		return errs
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("invalid duration: %v", err),
		})
	}
	if positive && d <= 0 {
		return append(errs, ValidationError{
			Field:   field,
			Message: "must be positive",
		})
	}
	if !positive && d < 0 {
		return append(errs, ValidationError{
			Field:   field,
			Message: "must not be negative",
		})
	}
	return errs
}
