package audit

import "time"

// Action names for identity lifecycle events.
const (
	ActionUserSynced      = "user_synced"
	ActionUserResurrected = "user_resurrected"
	ActionUserDeleted     = "user_deleted"
	ActionUserProvisioned = "user_provisioned"
)

// Event is emitted from domain logic to capture key identity actions. Keep it
// transport-agnostic so sinks can fan out.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	Action     string    `json:"action"`
	ExternalID string    `json:"external_id"`
	UserID     string    `json:"user_id,omitempty"`
	EventID    string    `json:"event_id,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
}
