package session

import "time"

// EventKind identifies a session lifecycle notification.
type EventKind int

const (
	SessionOpened EventKind = iota + 1
	SessionInfoRefreshed
	SessionLoginFailed
	SessionClosed
)

func (k EventKind) String() string {
	switch k {
	case SessionOpened:
		return "sessionOpened"
	case SessionInfoRefreshed:
		return "sessionInfoRefreshed"
	case SessionLoginFailed:
		return "sessionLoginFailed"
	case SessionClosed:
		return "sessionClosed"
	}
	return "unknown"
}

// CloseReason explains a SessionClosed event.
type CloseReason string

const (
	CloseUserInitiated    CloseReason = "userInitiated"
	CloseRevoked          CloseReason = "revoked"
	CloseStoreUnavailable CloseReason = "storeUnavailable"
)

// FailureReason explains a SessionLoginFailed event.
type FailureReason string

const (
	FailureUnauthorized     FailureReason = "unauthorized"
	FailureTimeout          FailureReason = "timeout"
	FailureCancelled        FailureReason = "cancelled"
	FailureStoreUnavailable FailureReason = "storeUnavailable"
)

// Event is published on every externally visible lifecycle transition.
// Seq increases by one per event of a controller.
type Event struct {
	Seq  uint64
	At   time.Time
	Kind EventKind

	// Identifier is set on SessionOpened and SessionClosed.
	Identifier string
	// Info is set on SessionInfoRefreshed, and on SessionOpened when known.
	Info *AccountInformation

	CloseReason   CloseReason
	FailureReason FailureReason
}

// Reason returns the close or failure reason as text, or "".
func (e Event) Reason() string {
	switch e.Kind {
	case SessionClosed:
		return string(e.CloseReason)
	case SessionLoginFailed:
		return string(e.FailureReason)
	}
	return ""
}
