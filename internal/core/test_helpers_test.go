package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/relaychat-server/internal/store"
)

var errStoreDown = errors.New("store down")

// memStore is an in-memory ChatStore and PresenceStore with failure injection.
type memStore struct {
	mu       sync.Mutex
	nextID   int64
	members  map[int64][]int64
	messages map[int64]*store.Message
	lastMsg  map[int64]int64
	lastRead map[[2]int64]time.Time
	online   map[int64]bool
	lastSeen map[int64]time.Time

	failCreate   bool
	failPointer  bool
	failPresence bool
	failRooms    bool
}

func newMemStore() *memStore {
	return &memStore{
		members:  make(map[int64][]int64),
		messages: make(map[int64]*store.Message),
		lastMsg:  make(map[int64]int64),
		lastRead: make(map[[2]int64]time.Time),
		online:   make(map[int64]bool),
		lastSeen: make(map[int64]time.Time),
	}
}

func (s *memStore) addRoom(roomID int64, members ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[roomID] = append([]int64(nil), members...)
}

func (s *memStore) ListRoomIDs(_ context.Context, userID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRooms {
		return nil, errStoreDown
	}
	var ids []int64
	for roomID, members := range s.members {
		if slices.Contains(members, userID) {
			ids = append(ids, roomID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *memStore) IsMember(_ context.Context, userID, roomID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.members[roomID], userID), nil
}

func (s *memStore) ListMembers(_ context.Context, roomID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.members[roomID]...), nil
}

func (s *memStore) CreateMessage(_ context.Context, roomID, senderID int64, body, mediaURL string) (*store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate {
		return nil, errStoreDown
	}
	s.nextID++
	now := time.Now().UTC()
	msg := &store.Message{
		ID:        s.nextID,
		RoomID:    roomID,
		SenderID:  senderID,
		Body:      body,
		MediaURL:  mediaURL,
		SeenBy:    []int64{senderID},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.messages[msg.ID] = msg
	return cloneMessage(msg), nil
}

func (s *memStore) UpdateRoomLastMessage(_ context.Context, roomID, messageID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPointer {
		return errStoreDown
	}
	msg, ok := s.messages[messageID]
	if !ok || msg.RoomID != roomID {
		return fmt.Errorf("room message: %w", store.ErrNotFound)
	}
	s.lastMsg[roomID] = messageID
	return nil
}

func (s *memStore) GetMessage(_ context.Context, id int64) (*store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
	}
	return cloneMessage(msg), nil
}

func (s *memStore) EditMessage(_ context.Context, id int64, body string) (*store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
	}
	msg.Body = body
	msg.Edited = true
	msg.UpdatedAt = time.Now().UTC()
	return cloneMessage(msg), nil
}

func (s *memStore) DeleteMessage(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return fmt.Errorf("message %d: %w", id, store.ErrNotFound)
	}
	delete(s.messages, id)
	if s.lastMsg[msg.RoomID] == id {
		delete(s.lastMsg, msg.RoomID)
	}
	return nil
}

func (s *memStore) AddSeenBy(_ context.Context, roomID, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var added int64
	for _, msg := range s.messages {
		if msg.RoomID == roomID && !slices.Contains(msg.SeenBy, userID) {
			msg.SeenBy = append(msg.SeenBy, userID)
			added++
		}
	}
	return added, nil
}

func (s *memStore) MarkRoomRead(_ context.Context, roomID, userID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRead[[2]int64{roomID, userID}] = at
	return nil
}

func (s *memStore) SetOnline(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPresence {
		return errStoreDown
	}
	s.online[userID] = true
	return nil
}

func (s *memStore) SetOffline(_ context.Context, userID int64, lastSeen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPresence {
		return errStoreDown
	}
	s.online[userID] = false
	s.lastSeen[userID] = lastSeen
	return nil
}

func (s *memStore) seenBy(id int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.messages[id]; ok {
		return append([]int64(nil), msg.SeenBy...)
	}
	return nil
}

func (s *memStore) pointer(roomID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMsg[roomID]
}

func (s *memStore) isOnline(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online[userID]
}

func cloneMessage(m *store.Message) *store.Message {
	c := *m
	c.SeenBy = append([]int64(nil), m.SeenBy...)
	return &c
}

func newTestHub(t *testing.T) (*Hub, *memStore) {
	t.Helper()
	st := newMemStore()
	return NewHub(st, st, nil), st
}

func connect(t *testing.T, h *Hub, id string, userID int64) *Conn {
	t.Helper()
	c := NewConn(id, userID, id)
	h.Connect(context.Background(), c)
	t.Cleanup(func() { h.Disconnect(context.Background(), c) })
	return c
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// drain returns every event already queued on the connection.
// Publishing is synchronous, so events of completed hub calls are all queued.
func drain(c *Conn) []*Event {
	var events []*Event
	for {
		select {
		case ev := <-c.Events:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func countEvents(events []*Event, kind EventKind, channel ChannelID) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind && ev.Channel == channel {
			n++
		}
	}
	return n
}

func ofKind(events []*Event, kind EventKind) []*Event {
	var out []*Event
	for _, ev := range events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
