package handlers

import (
	"fmt"
	"time"
)

// Payload field accessors. Envelope data arrives as map[string]any decoded
// from JSON, so numbers are float64 and timestamps are RFC 3339 strings.

func stringField(data map[string]any, key string) (string, bool) {
	v, ok := data[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func intField(data map[string]any, key string) (int64, bool) {
	switch v := data[key].(type) {
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	default:
		return 0, false
	}
}

func boolField(data map[string]any, key string) (bool, bool) {
	v, ok := data[key].(bool)
	return v, ok
}

func timeField(data map[string]any, key string) (time.Time, bool) {
	s, ok := stringField(data, key)
	if !ok || s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func stringSliceField(data map[string]any, key string) ([]string, bool) {
	raw, ok := data[key].([]any)
	if !ok {
		// Already-typed slices show up when events are built in-process.
		if typed, ok := data[key].([]string); ok {
			return typed, true
		}
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func missingField(eventType, key string) error {
	return fmt.Errorf("%s: missing or invalid field %q", eventType, key)
}
