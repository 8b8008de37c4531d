package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ConnectionState is the single source of truth for transport availability.
// Transitions are driven only by the realtime manager.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StatePolling      ConnectionState = "polling"
	StateOffline      ConnectionState = "offline"
	StateError        ConnectionState = "error"
)

// IsConnected reports whether the socket transport is live.
func (s ConnectionState) IsConnected() bool {
	return s == StateConnected
}

// IsDegraded reports whether updates still flow but over the fallback transport.
func (s ConnectionState) IsDegraded() bool {
	return s == StatePolling
}

// Reserved event types. Produced or consumed by the manager itself; the only
// event names subscribers should treat as well-known.
const (
	// EventConnectionStateChanged announces manager state transitions so UI
	// layers can render online/offline/polling affordances without polling
	// the manager.
	EventConnectionStateChanged = "connection_state_changed"

	// EventPing and EventPong are the heartbeat envelopes. Pong is consumed
	// internally and never dispatched to subscribers.
	EventPing = "ping"
	EventPong = "pong"
)

// Envelope is the wire format for every message over either transport.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StateChange is the payload of EventConnectionStateChanged.
type StateChange struct {
	State    ConnectionState `json:"state"`
	Previous ConnectionState `json:"previous"`
}

// Identity names the dashboard session that owns a manager instance.
// It parameterizes transport paths and namespaces persisted queue storage.
type Identity struct {
	Role string `json:"role"` // e.g. "supervisor"
	ID   string `json:"id"`   // e.g. supervisor ID
}

// Key returns the storage namespace for this identity.
func (i Identity) Key() string {
	return i.Role + ":" + i.ID
}

// Known queued action types. The set is closed but extensible: each tag maps
// to exactly one outbound call contract, idempotent by the entity ID carried
// in the payload.
const (
	ActionApprovalProcess  = "APPROVAL_PROCESS"
	ActionAlertAcknowledge = "ALERT_ACKNOWLEDGE"
)

// QueuedAction is a user action captured while the server was unreachable.
// It survives process restarts via the queue store and is removed only after
// the server confirms receipt.
type QueuedAction struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// NewQueuedAction stamps an action with a fresh ID and enqueue time.
func NewQueuedAction(actionType string, payload json.RawMessage) QueuedAction {
	return QueuedAction{
		ID:         uuid.New(),
		Type:       actionType,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}
}

// ApprovalPayload is the payload carried by ActionApprovalProcess.
type ApprovalPayload struct {
	ApprovalID string `json:"approval_id"`
	Decision   string `json:"decision"` // "approved" or "rejected"
	Note       string `json:"note,omitempty"`
}

// AlertAckPayload is the payload carried by ActionAlertAcknowledge.
type AlertAckPayload struct {
	AlertID string `json:"alert_id"`
}
