package config

import (
	"fmt"
	"net/url"
	"strings"
)

// validateRelayDestination checks that a relay target is an rtmp:// URL
// with a host, the same rule the original CLI flag applied.
func validateRelayDestination(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "rtmp" {
		return fmt.Errorf("URL must use rtmp:// scheme, got %s", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

var validHookEventTypes = map[string]bool{
	"connection_accept":  true,
	"connection_close":   true,
	"handshake_complete": true,
	"stream_create":      true,
	"stream_delete":      true,
	"publish_start":      true,
	"publish_stop":       true,
	"play_start":         true,
	"play_stop":          true,
	"codec_detected":     true,
}

// validateHookAssignment checks the event_type=value shape shared by
// -hook-script and -hook-webhook entries.
func validateHookAssignment(flagName, assignment string) error {
	parts := strings.SplitN(assignment, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid %s format %q, expected event_type=value", flagName, assignment)
	}
	eventType, value := parts[0], parts[1]
	if eventType == "" {
		return fmt.Errorf("invalid %s: event type cannot be empty", flagName)
	}
	if value == "" {
		return fmt.Errorf("invalid %s: value cannot be empty", flagName)
	}
	if !validHookEventTypes[eventType] {
		return fmt.Errorf("invalid %s: unknown event type %q", flagName, eventType)
	}
	return nil
}
