package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/relaychat-server/internal/store"
)

const defaultPersistTimeout = 5 * time.Second

// ChatStore is the slice of persistence the hub needs for rooms and messages.
type ChatStore interface {
	ListRoomIDs(ctx context.Context, userID int64) ([]int64, error)
	IsMember(ctx context.Context, userID, roomID int64) (bool, error)
	ListMembers(ctx context.Context, roomID int64) ([]int64, error)
	CreateMessage(ctx context.Context, roomID, senderID int64, body, mediaURL string) (*store.Message, error)
	UpdateRoomLastMessage(ctx context.Context, roomID, messageID int64) error
	GetMessage(ctx context.Context, id int64) (*store.Message, error)
	EditMessage(ctx context.Context, id int64, body string) (*store.Message, error)
	DeleteMessage(ctx context.Context, id int64) error
	AddSeenBy(ctx context.Context, roomID, userID int64) (int64, error)
	MarkRoomRead(ctx context.Context, roomID, userID int64, at time.Time) error
}

// PresenceStore persists the best-effort online record of users.
type PresenceStore interface {
	SetOnline(ctx context.Context, userID int64) error
	SetOffline(ctx context.Context, userID int64, lastSeen time.Time) error
}

// Hub coordinates live connections: presence, channel routing, message fanout
// and the typing/seen relay.
type Hub struct {
	chats    ChatStore
	presence PresenceStore
	registry *Registry
	router   *Router

	userLocks keyedMutex[int64]
	roomLocks keyedMutex[int64]

	log            *zerolog.Logger
	now            func() time.Time
	persistTimeout time.Duration
}

// NewHub creates a hub. A nil presence store disables presence persistence.
func NewHub(chats ChatStore, presence PresenceStore, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	hubLogger := logger.With().Str("component", "hub").Logger()
	return &Hub{
		chats:          chats,
		presence:       presence,
		registry:       NewRegistry(),
		router:         NewRouter(&hubLogger),
		log:            &hubLogger,
		now:            func() time.Time { return time.Now().UTC() },
		persistTimeout: defaultPersistTimeout,
	}
}

// ErrShuttingDown is returned by Connect once Run has started closing connections.
var ErrShuttingDown = errors.New("hub shutting down")

// Connect binds an authenticated connection to its private channel and to the
// channels of every room its user currently belongs to, then registers it.
// After shutdown has begun the connection is closed and ErrShuttingDown returned.
func (h *Hub) Connect(ctx context.Context, c *Conn) error {
	roomIDs, err := h.chats.ListRoomIDs(ctx, c.UserID)
	if err != nil {
		// Rooms can still be joined explicitly once the store recovers.
		h.log.Warn().Err(err).Int64("user_id", c.UserID).Msg("list rooms on connect")
		roomIDs = nil
	}

	unlock := h.userLocks.Lock(c.UserID)
	defer unlock()

	if !h.router.Bind(c, roomIDs) {
		c.Close()
		return ErrShuttingDown
	}
	if h.registry.Register(c.UserID) {
		h.announceOnline(ctx, c)
	}

	h.log.Info().
		Str("conn_id", c.ID).
		Int64("user_id", c.UserID).
		Int("rooms", len(roomIDs)).
		Int("connections", h.registry.Count(c.UserID)).
		Msg("connection registered")
	return nil
}

// Disconnect unbinds and unregisters a connection. Calling it twice is a no-op.
func (h *Hub) Disconnect(ctx context.Context, c *Conn) {
	defer c.Close()

	unlock := h.userLocks.Lock(c.UserID)
	defer unlock()

	if !h.router.Unbind(c) {
		return
	}
	if h.registry.Unregister(c.UserID) {
		h.announceOffline(ctx, c)
	}

	h.log.Info().
		Str("conn_id", c.ID).
		Int64("user_id", c.UserID).
		Int("connections", h.registry.Count(c.UserID)).
		Msg("connection unregistered")
}

// Serve processes the connection's commands one at a time until the context is
// cancelled, the connection is closed, or its command queue is closed.
func (h *Hub) Serve(ctx context.Context, c *Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.Done():
			return
		case cmd, ok := <-c.Commands:
			if !ok {
				return
			}
			if cmd != nil {
				h.Handle(ctx, c, cmd)
			}
		}
	}
}

// Handle executes a single command. Failures are reported to the issuing
// connection only.
func (h *Hub) Handle(ctx context.Context, c *Conn, cmd *Command) {
	var err error
	ack := &Event{Kind: EventAck, Ref: cmd.Ref, RoomID: cmd.RoomID}

	switch cmd.Kind {
	case CommandJoinRoom:
		err = h.JoinRoom(ctx, c, cmd.RoomID)
	case CommandSend:
		var msg *Message
		if msg, err = h.Send(ctx, cmd.RoomID, c.UserID, cmd.Body, cmd.MediaURL); err == nil {
			ack.MessageID = msg.ID
		}
	case CommandEditMessage:
		var msg *Message
		if msg, err = h.EditMessage(ctx, c.UserID, cmd.MessageID, cmd.Body); err == nil {
			ack.RoomID, ack.MessageID = msg.RoomID, msg.ID
		}
	case CommandDeleteMessage:
		var roomID int64
		if roomID, err = h.DeleteMessage(ctx, c.UserID, cmd.MessageID); err == nil {
			ack.RoomID, ack.MessageID = roomID, cmd.MessageID
		}
	case CommandTypingStart:
		err = h.TypingStart(ctx, cmd.RoomID, c.UserID, cmd.ToUserID)
		ack = nil
	case CommandTypingStop:
		err = h.TypingStop(ctx, cmd.RoomID, c.UserID, cmd.ToUserID)
		ack = nil
	case CommandMarkSeen:
		_, err = h.MarkSeen(ctx, cmd.RoomID, c.UserID)
		ack = nil
	default:
		err = fmt.Errorf("%w: unknown command %d", ErrBadRequest, cmd.Kind)
	}

	if err != nil {
		h.log.Debug().
			Err(err).
			Str("conn_id", c.ID).
			Int64("user_id", c.UserID).
			Stringer("command", cmd.Kind).
			Msg("command failed")
		h.reply(c, &Event{Kind: EventError, Ref: cmd.Ref, RoomID: cmd.RoomID, Error: AsCoreError(err)})
		return
	}
	if ack != nil {
		h.reply(c, ack)
	}
}

// Reject reports an error to a single connection without running a command.
func (h *Hub) Reject(c *Conn, ref string, err *CoreError) {
	h.reply(c, &Event{Kind: EventError, Ref: ref, Error: err})
}

func (h *Hub) reply(c *Conn, ev *Event) {
	if !c.deliver(ev) {
		h.router.logDropped("", ev, []*Conn{c})
	}
}

// JoinRoom binds the connection to a room channel after re-checking membership
// against the chat store. Joining twice is a no-op, and so is joining from a
// connection that disconnected while membership was being checked.
func (h *Hub) JoinRoom(ctx context.Context, c *Conn, roomID int64) error {
	if roomID <= 0 {
		return fmt.Errorf("%w: room id required", ErrBadRequest)
	}
	ok, err := h.chats.IsMember(ctx, c.UserID, roomID)
	if err != nil {
		return fmt.Errorf("%w: check membership: %w", ErrPersistence, err)
	}
	if !ok {
		return fmt.Errorf("%w: not a member of room %d", ErrPermission, roomID)
	}
	if _, err := h.router.Join(c, RoomChannel(roomID)); err != nil {
		h.log.Debug().Str("conn_id", c.ID).Int64("room_id", roomID).Msg("join after disconnect ignored")
	}
	return nil
}

// AttachRoom joins the live connections of the given members to a room
// created after they connected.
func (h *Hub) AttachRoom(roomID int64, memberIDs []int64) {
	joined := h.router.JoinUsers(RoomChannel(roomID), memberIDs)
	h.log.Debug().Int64("room_id", roomID).Int("connections", joined).Msg("room attached")
}

// Online reports whether the user has at least one live connection.
func (h *Hub) Online(userID int64) bool {
	return h.registry.Online(userID)
}

// ConnectionCount returns the number of live connections of the user.
func (h *Hub) ConnectionCount(userID int64) int {
	return h.registry.Count(userID)
}

// Run blocks until ctx is cancelled, then asks every live connection to close
// and refuses new ones. Each transport runs the normal disconnect path once its
// connection closes.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	conns := h.router.Close()
	for _, c := range conns {
		c.Close()
	}
	h.log.Info().Int("connections", len(conns)).Msg("hub stopped")
}

// WaitIdle blocks until no connection is registered or ctx is done.
func (h *Hub) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for h.registry.Len() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// persistContext detaches store writes from a connection context that may
// already be cancelled and bounds them with a timeout.
func (h *Hub) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), h.persistTimeout)
}

func storeErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, op)
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
