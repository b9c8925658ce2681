package core

import "strconv"

// ChannelID names a fan-out group: "room:<id>" or "user:<id>".
type ChannelID string

const (
	roomChannelPrefix = "room:"
	userChannelPrefix = "user:"
)

// RoomChannel returns the channel of everyone viewing a room.
func RoomChannel(roomID int64) ChannelID {
	return ChannelID(roomChannelPrefix + strconv.FormatInt(roomID, 10))
}

// UserChannel returns the private channel of a user.
func UserChannel(userID int64) ChannelID {
	return ChannelID(userChannelPrefix + strconv.FormatInt(userID, 10))
}

// channel groups connections subscribed to the same id.
type channel struct {
	id    ChannelID
	conns map[*Conn]struct{}
}

func newChannel(id ChannelID) *channel {
	return &channel{
		id:    id,
		conns: make(map[*Conn]struct{}),
	}
}

// add inserts a connection. Returns true if newly added.
func (ch *channel) add(c *Conn) bool {
	if _, exists := ch.conns[c]; exists {
		return false
	}
	ch.conns[c] = struct{}{}
	return true
}

// remove deletes a connection. Returns true if removed.
func (ch *channel) remove(c *Conn) bool {
	if _, exists := ch.conns[c]; !exists {
		return false
	}
	delete(ch.conns, c)
	return true
}

// broadcast sends an event to every connection once and returns how many
// accepted it and which ones dropped it.
func (ch *channel) broadcast(ev *Event) (delivered int, dropped []*Conn) {
	for c := range ch.conns {
		if c.deliver(ev) {
			delivered++
			continue
		}
		// Drop if slow consumer.
		dropped = append(dropped, c)
	}
	return delivered, dropped
}

func (ch *channel) empty() bool {
	return len(ch.conns) == 0
}
