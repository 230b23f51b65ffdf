package businesschat

// WebhookEvent is the top-level structure received from the business
// chat platform's webhook.
type WebhookEvent struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry represents a single entry in the webhook payload.
type Entry struct {
	ID        string      `json:"id"`
	Time      int64       `json:"time"`
	Messaging []Messaging `json:"messaging"`
}

// Messaging represents a single messaging event.
type Messaging struct {
	Sender    Peer     `json:"sender"`
	Recipient Peer     `json:"recipient"`
	Timestamp int64    `json:"timestamp"`
	Message   *Message `json:"message,omitempty"`
}

// Peer identifies a conversation participant.
type Peer struct {
	ID string `json:"id"`
}

// Message contains the message content.
type Message struct {
	MID  string `json:"mid"`
	Text string `json:"text"`
}

// SendRequest is the payload sent to the platform API to send a message.
type SendRequest struct {
	Recipient Peer        `json:"recipient"`
	Message   SendMessage `json:"message"`
}

// SendMessage is the message content for outbound messages.
type SendMessage struct {
	Text string `json:"text"`
}

// SendResponse is the response from the platform API after sending.
type SendResponse struct {
	RecipientID string     `json:"recipient_id"`
	MessageID   string     `json:"message_id"`
	Error       *SendError `json:"error,omitempty"`
}

// SendError represents an error returned by the platform API.
type SendError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
	TraceID string `json:"trace_id"`
}
