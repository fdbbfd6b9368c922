package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for well-known failure conditions that cross package
// boundaries.  Callers should use [errors.Is] to match these.
var (
	// ErrNoIdentifier means no user-session identifier could be derived
	// from the user record (typically a missing numeric id).
	ErrNoIdentifier = errors.New("no user-session identifier")

	// ErrNotConnected indicates an operation that requires a live hub
	// connection was attempted while disconnected.
	ErrNotConnected = errors.New("not connected to hub")

	// ErrMissingRoomID rejects a room request without a room id.
	ErrMissingRoomID = errors.New("room id is required")

	// ErrMissingCaller rejects a room request without a caller name.
	ErrMissingCaller = errors.New("caller name is required")

	// ErrNoRecipients rejects a room request with an empty recipient list.
	ErrNoRecipients = errors.New("at least one recipient is required")

	// ErrMalformedRoomResponse means the room service answered with a
	// success status but a body that does not parse as a room grant.
	ErrMalformedRoomResponse = errors.New("malformed room service response")

	// ErrUnauthorized indicates missing or invalid credentials.
	ErrUnauthorized = errors.New("unauthorized")
)

// ProvisionError reports a non-success HTTP response from the conferencing
// room service, carrying the status code and raw response body so the
// call-initiation flow can distinguish rejection from transport garbage.
type ProvisionError struct {
	StatusCode int
	Body       string
}

func (e *ProvisionError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("room service returned %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("room service returned %d", e.StatusCode)
}

// CallError wraps an underlying error with call-signaling context.
type CallError struct {
	RoomID string
	Op     string
	Err    error
}

func (e *CallError) Error() string {
	if e.RoomID != "" {
		return fmt.Sprintf("call %s: %s: %v", e.RoomID, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}
