package supabase

import (
	"encoding/json"
	"fmt"

	"prophub/internal/session"
)

const keyPrefix = "prophub"

// RoleCacheKey is the Redis key holding a user's cached role tag.
// The braces keep it in the same cluster slot as RoleEpochKey.
func RoleCacheKey(userID string) string {
	return fmt.Sprintf("%s:role:{%s}", keyPrefix, userID)
}

// RoleEpochKey counts invalidations of a user's cached role
func RoleEpochKey(userID string) string {
	return fmt.Sprintf("%s:role-epoch:{%s}", keyPrefix, userID)
}

// SessionChannel is the Redis pub/sub channel carrying a user's session events
func SessionChannel(userID string) string {
	return fmt.Sprintf("%s:session:%s", keyPrefix, userID)
}

// EncodeEvent serializes an event for the session channel
func EncodeEvent(event session.Event) (string, error) {
	if err := event.Validate(); err != nil {
		return "", err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("encode session event: %w", err)
	}
	return string(data), nil
}

// DecodeEvent parses a session channel payload.
// Payloads for another user than expectedUserID are rejected.
func DecodeEvent(payload, expectedUserID string) (session.Event, error) {
	var event session.Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return session.Event{}, fmt.Errorf("decode session event: %w", err)
	}
	if err := event.Validate(); err != nil {
		return session.Event{}, err
	}
	if event.UserID != expectedUserID {
		return session.Event{}, fmt.Errorf("event for user %s on channel of %s", event.UserID, expectedUserID)
	}
	return event, nil
}
