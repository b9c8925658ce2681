package core

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// ErrNotBound is returned when a channel is joined by a connection that was
// never bound or has already been unbound.
var ErrNotBound = errors.New("connection not bound")

// Router binds connections to channels and publishes events to them.
type Router struct {
	mu       sync.RWMutex
	channels map[ChannelID]*channel
	bindings map[*Conn]map[ChannelID]struct{}
	closed   bool
	log      *zerolog.Logger
}

// NewRouter creates a router with no channels.
func NewRouter(logger *zerolog.Logger) *Router {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Router{
		channels: make(map[ChannelID]*channel),
		bindings: make(map[*Conn]map[ChannelID]struct{}),
		log:      logger,
	}
}

// Bind joins the connection to its user's private channel and to one channel per room.
// Returns false once the router is closed.
func (r *Router) Bind(c *Conn, roomIDs []int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.joinLocked(c, UserChannel(c.UserID))
	for _, id := range roomIDs {
		r.joinLocked(c, RoomChannel(id))
	}
	return true
}

// Join adds a single channel to a bound connection. Returns true if newly joined.
// Connections that are not bound get ErrNotBound.
func (r *Router) Join(c *Conn, id ChannelID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bindings[c]; !ok {
		return false, ErrNotBound
	}
	return r.joinLocked(c, id), nil
}

// JoinUsers adds the channel to every bound connection of the given users.
// Returns the number of connections that newly joined.
func (r *Router) JoinUsers(id ChannelID, userIDs []int64) int {
	users := make(map[int64]struct{}, len(userIDs))
	for _, uid := range userIDs {
		users[uid] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	joined := 0
	for c := range r.bindings {
		if _, ok := users[c.UserID]; !ok {
			continue
		}
		if r.joinLocked(c, id) {
			joined++
		}
	}
	return joined
}

func (r *Router) joinLocked(c *Conn, id ChannelID) bool {
	ch, ok := r.channels[id]
	if !ok {
		ch = newChannel(id)
		r.channels[id] = ch
	}
	if !ch.add(c) {
		return false
	}
	set, ok := r.bindings[c]
	if !ok {
		set = make(map[ChannelID]struct{})
		r.bindings[c] = set
	}
	set[id] = struct{}{}
	return true
}

// Unbind leaves every channel the connection joined. Other connections of the
// same user are untouched. Returns false if the connection was not bound.
func (r *Router) Unbind(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.bindings[c]
	if !ok {
		return false
	}
	for id := range set {
		ch, ok := r.channels[id]
		if !ok {
			continue
		}
		ch.remove(c)
		if ch.empty() {
			delete(r.channels, id)
		}
	}
	delete(r.bindings, c)
	return true
}

// Publish delivers ev to every connection bound to the channel, at most once each.
// Returns the number of connections that accepted the event.
func (r *Router) Publish(id ChannelID, ev *Event) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[id]
	if !ok {
		return 0
	}
	stamped := *ev
	stamped.Channel = id
	delivered, dropped := ch.broadcast(&stamped)
	r.logDropped(id, &stamped, dropped)
	return delivered
}

// Broadcast delivers ev once to every bound connection except one.
func (r *Router) Broadcast(ev *Event, except *Conn) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	delivered := 0
	for c := range r.bindings {
		if c == except {
			continue
		}
		if c.deliver(ev) {
			delivered++
			continue
		}
		r.logDropped("", ev, []*Conn{c})
	}
	return delivered
}

// Bound reports whether the connection is subscribed to the channel.
func (r *Router) Bound(c *Conn, id ChannelID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.bindings[c][id]
	return ok
}

// Subscribers returns the number of connections bound to the channel.
func (r *Router) Subscribers(id ChannelID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ch, ok := r.channels[id]; ok {
		return len(ch.conns)
	}
	return 0
}

// Close refuses further binds and returns every connection bound at that moment.
func (r *Router) Close() []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	conns := make([]*Conn, 0, len(r.bindings))
	for c := range r.bindings {
		conns = append(conns, c)
	}
	return conns
}

// Conns returns a snapshot of every bound connection.
func (r *Router) Conns() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Conn, 0, len(r.bindings))
	for c := range r.bindings {
		conns = append(conns, c)
	}
	return conns
}

func (r *Router) logDropped(id ChannelID, ev *Event, dropped []*Conn) {
	for _, c := range dropped {
		r.log.Warn().
			Str("conn_id", c.ID).
			Int64("user_id", c.UserID).
			Str("channel", string(id)).
			Stringer("event", ev.Kind).
			Msg("dropping event for slow consumer")
	}
}
