package store

import (
	"fmt"
	"regexp"
)

// MaxInstanceNameLength bounds an instance name (DNS-compatible).
const MaxInstanceNameLength = 63

// InstanceNamePattern allows lowercase alphanumerics with inner hyphens, so
// names can never introduce a ':' into a key.
var InstanceNamePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// ValidateInstanceName checks an instance name before it is used as a key namespace.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("instance name cannot be empty")
	}
	if len(name) > MaxInstanceNameLength {
		return fmt.Errorf("instance name too long: %d characters (max: %d)", len(name), MaxInstanceNameLength)
	}
	if !InstanceNamePattern.MatchString(name) {
		return fmt.Errorf("invalid instance name '%s': must be lowercase alphanumeric with hyphens (not at start/end)", name)
	}
	return nil
}

// Redis key pattern helpers
//
// Key pattern: tangle:{instance_name}:{entity}:{uuid}
// Channel pattern: tangle:{instance_name}:{event_type}_events

// RunKey returns the Redis key for a run record.
// Pattern: tangle:{instance_name}:run:{run_id}
func RunKey(instanceName, runID string) string {
	return fmt.Sprintf("tangle:%s:run:%s", instanceName, runID)
}

// RunKeyPrefix returns the prefix shared by every run key of an instance.
func RunKeyPrefix(instanceName string) string {
	return fmt.Sprintf("tangle:%s:run:", instanceName)
}

// ModelKey returns the Redis key for a run's encoded model.
// Pattern: tangle:{instance_name}:model:{run_id}
func ModelKey(instanceName, runID string) string {
	return fmt.Sprintf("tangle:%s:model:%s", instanceName, runID)
}

// GenerationEventsChannel returns the Pub/Sub channel name for generation events.
// Pattern: tangle:{instance_name}:generation_events
func GenerationEventsChannel(instanceName string) string {
	return fmt.Sprintf("tangle:%s:generation_events", instanceName)
}
