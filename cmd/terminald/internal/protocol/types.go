// Package protocol defines the frames exchanged with UI clients: websocket
// push messages and the envelope wrapping every HTTP pull response.
package protocol

import "github.com/Kyle-Grantland/finterm/pkg/models"

const (
	ActionSubscribe      = "subscribe"
	ActionUnsubscribe    = "unsubscribe"
	ActionUnsubscribeAll = "unsubscribe_all"
)

const (
	TypeAck    = "ack"
	TypeError  = "error"
	TypeQuotes = "quotes"
	TypeTrade  = "trade"
	TypeBar    = "bar"
	TypeStatus = "status"
	TypeNews   = "news"
)

type WSRequest struct {
	Action  string         `json:"action"`
	Payload RequestPayload `json:"payload"`
	ID      string         `json:"id,omitempty"`
}

type RequestPayload struct {
	Channel models.ChannelType `json:"channel"`
	Symbols []string           `json:"symbols"`
}

type WSResponse struct {
	Type    string      `json:"type"`
	ID      string      `json:"id,omitempty"` // Matches request ID
	Status  string      `json:"status,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Envelope wraps every HTTP response. Error is set exactly when Success is
// false.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}
