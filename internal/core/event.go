package core

import "time"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventPresenceChanged notifies peers that a user came online or went offline.
	EventPresenceChanged EventKind = iota
	// EventMessageCreated delivers a newly persisted message.
	EventMessageCreated
	// EventMessageEdited delivers the new state of an edited message.
	EventMessageEdited
	// EventMessageDeleted notifies room viewers that a message was removed.
	EventMessageDeleted
	// EventTyping relays a typing signal to its target user.
	EventTyping
	// EventSeenUpdate tells room members that seen-state changed and should be re-fetched.
	EventSeenUpdate
	// EventAck confirms a command to the connection that issued it.
	EventAck
	// EventError notifies the issuing connection about a failed command.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventPresenceChanged:
		return "presenceChanged"
	case EventMessageCreated:
		return "messageCreated"
	case EventMessageEdited:
		return "messageEdited"
	case EventMessageDeleted:
		return "messageDeleted"
	case EventTyping:
		return "typing"
	case EventSeenUpdate:
		return "seenUpdate"
	case EventAck:
		return "ack"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is sent to clients to describe what happened in the system.
// Channel is the channel the event was published on; it is empty for
// events delivered straight to a connection (ack, error).
type Event struct {
	Kind      EventKind
	Channel   ChannelID
	Ref       string
	RoomID    int64
	UserID    int64
	MessageID int64
	Online    bool
	LastSeen  *time.Time
	IsTyping  bool
	Message   *Message
	Error     *CoreError
}
