package core

import (
	"time"

	"github.com/vovakirdan/relaychat-server/internal/store"
)

// Message is the domain model for a chat message.
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

func messageFromStore(m *store.Message) *Message {
	return &Message{
		ID:        m.ID,
		RoomID:    m.RoomID,
		SenderID:  m.SenderID,
		Body:      m.Body,
		MediaURL:  m.MediaURL,
		SeenBy:    append([]int64(nil), m.SeenBy...),
		Edited:    m.Edited,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
