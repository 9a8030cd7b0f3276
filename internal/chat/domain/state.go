package domain

import "time"

// ConversationState state of the active conversation
type ConversationState string

const (
	// StateClosed no contact selected
	StateClosed ConversationState = "closed"
	// StateLoading contact selected, history fetch in flight
	StateLoading ConversationState = "loading"
	// StateOpen history loaded, live updates merged
	StateOpen ConversationState = "open"
)

// Snapshot a consistent copy of the dashboard state
type Snapshot struct {
	SelfID          string            `json:"self_id,omitempty"`
	State           ConversationState `json:"state"`
	ActiveContactID string            `json:"active_contact_id,omitempty"`
	Messages        []Message         `json:"messages"`
	Unread          map[string]int    `json:"unread"`
	Contacts        []Contact         `json:"contacts"`
	Draft           string            `json:"draft,omitempty"`
}

// PresenceRecord the liveness record a session tracks on the presence channel
type PresenceRecord struct {
	OnlineAt time.Time `json:"online_at"`
}
