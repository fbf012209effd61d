package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		BrokerHost:             "localhost",
		BrokerHTTPPort:         "3500",
		PubSubName:             "pubsub",
		BreakerThreshold:       5,
		BreakerResetTimeoutStr: "60s",
		PublishTimeoutStr:      "5s",
		TickIntervalStr:        "30s",
		IdempotencyTTLStr:      "24h",
		MessageWindowSize:      50,
		MaxMessages:            200,
	}
}

func TestValidate_Valid(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidate_MissingBrokerHost(t *testing.T) {
	cfg := validConfig()
	cfg.BrokerHost = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for missing BROKER_HOST")
	}
	if !strings.Contains(err.Error(), "BROKER_HOST") {
		t.Errorf("error should name BROKER_HOST: %v", err)
	}
}

func TestValidate_InvalidDuration(t *testing.T) {
	cfg := validConfig()
	cfg.PublishTimeoutStr = "not-a-duration"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for invalid PUBLISH_TIMEOUT")
	}
	if !strings.Contains(err.Error(), "PUBLISH_TIMEOUT") {
		t.Errorf("error should name PUBLISH_TIMEOUT: %v", err)
	}
}

func TestValidate_NegativeTickInterval(t *testing.T) {
	cfg := validConfig()
	cfg.TickIntervalStr = "-5s"

	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative TICK_INTERVAL")
	}
}

func TestValidate_ZeroIdempotencyTTLAllowed(t *testing.T) {
	cfg := validConfig()
	cfg.IdempotencyTTLStr = "0s"

	if err := Validate(cfg); err != nil {
		t.Fatalf("zero TTL disables expiry and must be accepted, got %v", err)
	}
}

func TestValidate_NonPositiveThreshold(t *testing.T) {
	cfg := validConfig()
	cfg.BreakerThreshold = 0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for zero CB_FAILURE_THRESHOLD")
	}
	if !strings.Contains(err.Error(), "CB_FAILURE_THRESHOLD") {
		t.Errorf("error should name CB_FAILURE_THRESHOLD: %v", err)
	}
}

func TestValidate_LeaderRequiresDatabase(t *testing.T) {
	cfg := validConfig()
	cfg.LeaderEnabled = true
	cfg.DatabaseURL = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for LEADER_ENABLED without DATABASE_URL")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("error should mention DATABASE_URL: %v", err)
	}
}

func TestValidate_WindowLargerThanMax(t *testing.T) {
	cfg := validConfig()
	cfg.MessageWindowSize = 300
	cfg.MaxMessages = 200

	if err := Validate(cfg); err == nil {
		t.Fatal("expected error when MESSAGE_WINDOW_SIZE exceeds MAX_MESSAGES")
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.BrokerHost = ""
	cfg.BreakerThreshold = 0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}
	if !strings.Contains(err.Error(), "2 validation errors") {
		t.Errorf("expected aggregated error message, got %v", err)
	}
}
