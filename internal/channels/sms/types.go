package sms

import "time"

// SendRequest is the gateway's outbound message payload.
type SendRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
}

// SendResponse is the gateway's reply to a send.
type SendResponse struct {
	Data *struct {
		ID string `json:"id"`
	} `json:"data,omitempty"`
	Errors []APIError `json:"errors,omitempty"`
}

// APIError is a gateway error entry.
type APIError struct {
	Code   string `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// WebhookEvent is the gateway's inbound webhook envelope.
type WebhookEvent struct {
	EventType string         `json:"event_type"`
	Payload   WebhookPayload `json:"payload"`
}

// WebhookPayload carries the inbound message.
type WebhookPayload struct {
	MessageID  string    `json:"message_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

const eventMessageReceived = "message.received"
