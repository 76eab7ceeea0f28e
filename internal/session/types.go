package session

import (
	"fmt"
	"time"

	"github.com/lewisedginton/chatwatch/pkg/prefixed_uuid"
)

// IDPrefix tags conversation session identifiers.
const IDPrefix = "conv"

// Close reasons.
const (
	ReasonDisconnected = "DISCONNECTED"
	ReasonDeactivated  = "MODULE DEACTIVATED"
)

// TimeoutReason is the reason written when the inactivity sweep closes a session.
func TimeoutReason(timeout time.Duration) string {
	return fmt.Sprintf("TIMEOUT (%d minutes)", int(timeout/time.Minute))
}

// Info is a point-in-time view of one correspondent's state.
type Info struct {
	ID            prefixed_uuid.PrefixedUUID `json:"id"`
	Correspondent string                     `json:"correspondent"`
	Open          bool                       `json:"open"`
	MessageCount  int                        `json:"message_count"`
	Rollovers     int                        `json:"rollovers"`
	File          string                     `json:"file"`
	OpenedAt      time.Time                  `json:"opened_at,omitempty"`
	LastActivity  time.Time                  `json:"last_activity"`
}

// Recorded describes what Record did.
type Recorded struct {
	ID   prefixed_uuid.PrefixedUUID
	File string
	// Opened is set when the message started a new session.
	Opened bool
	// RolledOver is set when the message went to a fresh file.
	RolledOver bool
	// Previous is the file completed by a rollover.
	Previous string
}

// Closed describes a session closed by Close, EndAll or Sweep.
type Closed struct {
	ID            prefixed_uuid.PrefixedUUID
	Correspondent string
	Reason        string
	File          string
	Messages      int
}

// Sink appends a formatted record to a correspondent's archive file.
type Sink interface {
	Append(file, record string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(file, record string) error

// Append implements Sink.
func (f SinkFunc) Append(file, record string) error { return f(file, record) }

// Config holds the tracker policy.
type Config struct {
	// MaxMessagesPerFile is the rollover ceiling.
	MaxMessagesPerFile int
	// Timeout closes sessions idle for longer than this.
	Timeout time.Duration
	// Markers enables the start/end separator blocks.
	Markers bool
	// Timestamps prefixes message records with the time.
	Timestamps bool
	// Now defaults to time.Now.
	Now func() time.Time
}
