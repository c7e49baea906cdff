package store

// Message direction values.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// ChatMessage is one persisted WhatsApp message, kept for the chat
// history surface. Incoming messages are deduplicated by the
// platform message id.
type ChatMessage struct {
	ID          int64
	UID         string
	PhoneNumber string
	MessageID   string
	Direction   string
	MessageType string
	MessageText string
	MediaID     string
	MediaType   string
	ContactName string
	Status      string
	Payload     string // raw platform JSON for the message
	Ts          int64
}

// FindChatMessage specifies the conditions for listing messages.
type FindChatMessage struct {
	PhoneNumber *string
	Limit       *int
}

// UpdateChatMessageStatus sets the delivery status for a message by
// its platform message id.
type UpdateChatMessageStatus struct {
	MessageID string
	Status    string
}
