package core

import "sync"

const (
	commandBuffer = 16
	eventBuffer   = 64
)

// Conn is one live connection of a user as seen by the core layer.
// The transport feeds Commands and drains Events.
type Conn struct {
	ID       string
	UserID   int64
	Name     string
	Commands chan *Command
	Events   chan *Event

	done      chan struct{}
	closeOnce sync.Once
}

// NewConn constructs a connection with initialized queues.
func NewConn(id string, userID int64, name string) *Conn {
	if name == "" {
		name = id
	}
	return &Conn{
		ID:       id,
		UserID:   userID,
		Name:     name,
		Commands: make(chan *Command, commandBuffer),
		Events:   make(chan *Event, eventBuffer),
		done:     make(chan struct{}),
	}
}

// Done is closed once the connection has been asked to shut down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close asks the transport to shut the connection down. Safe to call repeatedly.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// deliver queues an event without blocking. Returns false if the queue is full.
func (c *Conn) deliver(ev *Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}
