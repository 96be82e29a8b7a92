package models

import (
	"encoding/json"
	"log/slog"
)

// Event types understood by the bridge.
const (
	EventTypeURLVerification = "url_verification"
	EventTypeMessageReceive  = "im.message.receive_v1"
)

// MessageTypeText is the only message type forwarded to the AI backend.
const MessageTypeText = "text"

// Envelope is the outermost shape of a callback body. Only one of its field groups is populated
// depending on whether the payload is encrypted, a URL verification or a schema 2.0 event.
type Envelope struct {
	Encrypt string `json:"encrypt,omitempty"`

	// URL verification
	Type      string `json:"type,omitempty"`
	Token     string `json:"token,omitempty"`
	Challenge string `json:"challenge,omitempty"`

	// Schema 2.0 event
	Schema string          `json:"schema,omitempty"`
	Header *EventHeader    `json:"header,omitempty"`
	Event  json.RawMessage `json:"event,omitempty"`
}

// URLVerificationEvent is the handshake Lark sends once to confirm endpoint ownership.
type URLVerificationEvent struct {
	Type      string `json:"type"`
	Token     string `json:"token"`
	Challenge string `json:"challenge"`
}

// EventHeader is the common header of a schema 2.0 event.
type EventHeader struct {
	EventID    string `json:"event_id"`
	Token      string `json:"token"`
	CreateTime string `json:"create_time"`
	EventType  string `json:"event_type"`
	TenantKey  string `json:"tenant_key"`
	AppID      string `json:"app_id"`
}

// LogValue implements slog.LogValuer.
func (h *EventHeader) LogValue() slog.Value {
	if h == nil {
		return slog.Value{}
	}
	return slog.GroupValue(
		slog.String("eventID", h.EventID),
		slog.String("eventType", h.EventType),
		slog.String("tenantKey", h.TenantKey),
	)
}

// MessageReceiveEvent is the event body of im.message.receive_v1.
type MessageReceiveEvent struct {
	Sender  Sender  `json:"sender"`
	Message Message `json:"message"`
}

// Sender identifies the author of a message.
type Sender struct {
	SenderID   UserID `json:"sender_id"`
	SenderType string `json:"sender_type"`
	TenantKey  string `json:"tenant_key"`
}

// UserID carries the identifiers Lark assigns to a chat participant.
type UserID struct {
	OpenID  string `json:"open_id"`
	UnionID string `json:"union_id,omitempty"`
	UserID  string `json:"user_id,omitempty"`
}

// Message is a received chat message. Content is itself a JSON document whose shape depends on MessageType.
type Message struct {
	MessageID   string    `json:"message_id"`
	RootID      string    `json:"root_id,omitempty"`
	ParentID    string    `json:"parent_id,omitempty"`
	CreateTime  string    `json:"create_time"`
	ChatID      string    `json:"chat_id"`
	ChatType    string    `json:"chat_type"`
	MessageType string    `json:"message_type"`
	Content     string    `json:"content"`
	Mentions    []Mention `json:"mentions,omitempty"`
}

// Mention describes a mention placeholder (e.g. "@_user_1") within text content.
type Mention struct {
	Key  string `json:"key"`
	ID   UserID `json:"id"`
	Name string `json:"name"`
}

// TextContent is the decoded Content of a text message.
type TextContent struct {
	Text string `json:"text"`
}
