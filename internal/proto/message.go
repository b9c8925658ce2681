package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
// Ref is an optional client token echoed back in the matching ack or error.
type Inbound struct {
	Type string          `json:"type"`
	Ref  string          `json:"ref,omitempty"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeHello         = "hello"
	InboundTypeJoinRoom      = "joinRoom"
	InboundTypeSend          = "send"
	InboundTypeEditMessage   = "editMessage"
	InboundTypeDeleteMessage = "deleteMessage"
	InboundTypeTypingStart   = "typingStart"
	InboundTypeTypingStop    = "typingStop"
	InboundTypeMarkSeen      = "markSeen"

	OutboundTypeEvent = "event"
	OutboundTypeAck   = "ack"
	OutboundTypeError = "error"

	EventReady           = "ready"
	EventPresenceChanged = "presenceChanged"
	EventMessageCreated  = "messageCreated"
	EventMessageEdited   = "messageEdited"
	EventMessageDeleted  = "messageDeleted"
	EventTyping          = "typing"
	EventSeenUpdate      = "seenUpdate"

	ErrCodeInvalidMessage     = "invalid_message"
	ErrCodeUnsupportedVersion = "unsupported_version"
)

// HelloData lets the client check protocol compatibility.
type HelloData struct {
	Protocol int `json:"protocol,omitempty"`
}

// RoomData addresses a room (joinRoom, markSeen).
type RoomData struct {
	RoomID int64 `json:"roomId"`
}

// SendData is a new chat message from the client.
type SendData struct {
	RoomID   int64  `json:"roomId"`
	Body     string `json:"body"`
	MediaURL string `json:"mediaUrl,omitempty"`
}

// EditData replaces the body of an existing message.
type EditData struct {
	MessageID int64  `json:"messageId"`
	Body      string `json:"body"`
}

// DeleteData removes an existing message.
type DeleteData struct {
	MessageID int64 `json:"messageId"`
}

// TypingData targets a typing signal at another user.
type TypingData struct {
	RoomID   int64 `json:"roomId"`
	ToUserID int64 `json:"toUserId"`
}

// Outbound is the envelope for messages sent to the client.
// Channel names the channel an event was published on ("room:<id>" or "user:<id>").
type Outbound struct {
	Type    string `json:"type"`
	Event   string `json:"event,omitempty"`
	Channel string `json:"channel,omitempty"`
	Ref     string `json:"ref,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Ready is sent once the connection is authenticated and bound.
type Ready struct {
	Protocol     int    `json:"protocol"`
	ConnectionID string `json:"connectionId"`
	UserID       int64  `json:"userId"`
	DisplayName  string `json:"displayName"`
}

// Message is the wire shape of a persisted message.
type Message struct {
	ID        int64     `json:"id"`
	RoomID    int64     `json:"roomId"`
	SenderID  int64     `json:"senderId"`
	Body      string    `json:"body"`
	MediaURL  string    `json:"mediaUrl,omitempty"`
	SeenBy    []int64   `json:"seenBy"`
	Edited    bool      `json:"edited"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PresenceChanged reports a user's online transition.
type PresenceChanged struct {
	UserID   int64      `json:"userId"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// MessageDeleted reports a removed message.
type MessageDeleted struct {
	MessageID int64 `json:"messageId"`
	RoomID    int64 `json:"roomId"`
}

// Typing relays a typing signal.
type Typing struct {
	RoomID   int64 `json:"roomId"`
	UserID   int64 `json:"userId"`
	IsTyping bool  `json:"isTyping"`
}

// SeenUpdate tells the client to re-fetch seen indicators of a room.
type SeenUpdate struct {
	RoomID int64 `json:"roomId"`
	UserID int64 `json:"userId,omitempty"`
}

// Ack confirms a command.
type Ack struct {
	RoomID    int64 `json:"roomId,omitempty"`
	MessageID int64 `json:"messageId,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
