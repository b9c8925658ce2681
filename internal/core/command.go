package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinRoom binds the connection to a room channel the user is a member of.
	CommandJoinRoom CommandKind = iota
	// CommandSend delivers a new chat message to a room.
	CommandSend
	// CommandEditMessage replaces the body of a message sent by the user.
	CommandEditMessage
	// CommandDeleteMessage removes a message sent by the user.
	CommandDeleteMessage
	// CommandTypingStart signals another user that this user is typing.
	CommandTypingStart
	// CommandTypingStop signals another user that this user stopped typing.
	CommandTypingStop
	// CommandMarkSeen marks every message of a room as seen by the user.
	CommandMarkSeen
)

func (k CommandKind) String() string {
	switch k {
	case CommandJoinRoom:
		return "joinRoom"
	case CommandSend:
		return "send"
	case CommandEditMessage:
		return "editMessage"
	case CommandDeleteMessage:
		return "deleteMessage"
	case CommandTypingStart:
		return "typingStart"
	case CommandTypingStop:
		return "typingStop"
	case CommandMarkSeen:
		return "markSeen"
	default:
		return "unknown"
	}
}

// Command represents an action requested by a client.
// Ref is an opaque client token echoed back in the ack or error event.
type Command struct {
	Kind      CommandKind
	Ref       string
	RoomID    int64
	MessageID int64
	ToUserID  int64
	Body      string
	MediaURL  string
}
