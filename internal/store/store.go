package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User represents a user in the system.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	IsOnline     bool
	LastSeen     *time.Time
	CreatedAt    time.Time
}

// RoomType defines different types of rooms.
type RoomType string

const (
	RoomTypeDirect RoomType = "direct"
	RoomTypeGroup  RoomType = "group"
)

// Room represents a persisted conversation.
type Room struct {
	ID            int64
	Type          RoomType
	Name          string
	DirectKey     *string // for direct rooms: "dm:{minUserId}:{maxUserId}"
	LastMessageID *int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RoomMember represents room membership and the member's read watermark.
type RoomMember struct {
	UserID     int64
	RoomID     int64
	JoinedAt   time.Time
	LastReadAt *time.Time
}

// Message represents a persisted chat message.
type Message struct {
	ID        int64
	RoomID    int64
	SenderID  int64
	Body      string
	MediaURL  string
	SeenBy    []int64
	Edited    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InboxEntry is a room summary for a single member.
type InboxEntry struct {
	Room        *Room
	Members     []int64
	LastMessage *Message
	UnreadCount int
}

// Presence is the persisted online flag of a user.
type Presence struct {
	UserID   int64
	Online   bool
	LastSeen *time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, displayName, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// PresenceStore persists the best-effort online/offline record of users.
type PresenceStore interface {
	// SetOnline marks the user online.
	SetOnline(ctx context.Context, userID int64) error

	// SetOffline marks the user offline and records when they were last seen.
	SetOffline(ctx context.Context, userID int64, lastSeen time.Time) error

	// GetPresence returns the persisted presence record of a user.
	GetPresence(ctx context.Context, userID int64) (*Presence, error)
}

// RoomStore handles room persistence.
type RoomStore interface {
	// CreateGroupRoom creates a group room with the given members.
	CreateGroupRoom(ctx context.Context, name string, memberIDs []int64) (*Room, error)

	// CreateDirectRoom returns the direct room between two users, creating it if needed.
	CreateDirectRoom(ctx context.Context, user1ID, user2ID int64) (*Room, error)

	// GetRoomByID retrieves a room by ID.
	GetRoomByID(ctx context.Context, id int64) (*Room, error)

	// ListRoomIDs lists the IDs of all rooms the user is a member of.
	ListRoomIDs(ctx context.Context, userID int64) ([]int64, error)

	// ListInbox returns room summaries for a member, most recently updated first.
	ListInbox(ctx context.Context, userID int64) ([]*InboxEntry, error)

	// AddMember adds a user to a room.
	AddMember(ctx context.Context, userID, roomID int64) error

	// IsMember checks if user is a member of the room.
	IsMember(ctx context.Context, userID, roomID int64) (bool, error)

	// ListMembers lists all members of a room in join order.
	ListMembers(ctx context.Context, roomID int64) ([]int64, error)

	// UpdateRoomLastMessage points the room at its most recent message.
	UpdateRoomLastMessage(ctx context.Context, roomID, messageID int64) error

	// MarkRoomRead stamps the member's last-read time.
	MarkRoomRead(ctx context.Context, roomID, userID int64, at time.Time) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage persists a new message. The sender is part of its seen-set.
	CreateMessage(ctx context.Context, roomID, senderID int64, body, mediaURL string) (*Message, error)

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// EditMessage replaces the body and marks the message as edited.
	EditMessage(ctx context.Context, id int64, body string) (*Message, error)

	// DeleteMessage removes a message and repoints the room's last-message pointer.
	DeleteMessage(ctx context.Context, id int64) error

	// ListMessages retrieves messages from a room in chronological order.
	// If beforeID is provided, returns messages older than that ID.
	ListMessages(ctx context.Context, roomID int64, limit int, beforeID *int64) ([]*Message, error)

	// AddSeenBy adds the user to the seen-set of every message in the room.
	// Returns the number of messages whose seen-set changed.
	AddSeenBy(ctx context.Context, roomID, userID int64) (int64, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	PresenceStore
	RoomStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
