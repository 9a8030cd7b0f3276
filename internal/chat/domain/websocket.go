package domain

// Action websocket request action
type Action string

const (
	// LoadContacts websocket action load_contacts
	LoadContacts Action = "load_contacts"
	// SelectContact websocket action select_contact
	SelectContact Action = "select_contact"
	// DeselectContact websocket action deselect_contact
	DeselectContact Action = "deselect_contact"
	// SendMessage websocket action send_message
	SendMessage Action = "send_message"
	// RetryMessage websocket action retry_message
	RetryMessage Action = "retry_message"
	// SetDraft websocket action set_draft
	SetDraft Action = "set_draft"
	// Refresh websocket action refresh
	Refresh Action = "refresh"
	// Logout websocket action logout
	Logout Action = "logout"

	// StateUpdate server push with a fresh snapshot
	StateUpdate Action = "state_update"
	// ErrorAction server push for a failed action
	ErrorAction Action = "error"
)

// WSRequest websocket Request
type WSRequest struct {
	Action    string `json:"action"`
	ContactID string `json:"contact_id"`
	Content   string `json:"content"`
	MessageID string `json:"message_id"`
}

// WSResponse websocket Response
type WSResponse struct {
	Action  string                 `json:"action"`
	Success bool                   `json:"success"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Error   string                 `json:"error,omitempty"`
}
