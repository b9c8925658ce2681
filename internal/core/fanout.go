package core

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// Send persists a message and fans it out: first to the room channel, then to
// the private channel of every member except the sender. Nothing is published
// unless the message was stored. Sends to the same room are serialized, so the
// room channel sees messages in persistence order.
func (h *Hub) Send(ctx context.Context, roomID, senderID int64, body, mediaURL string) (*Message, error) {
	body = strings.TrimSpace(body)
	mediaURL = strings.TrimSpace(mediaURL)
	if roomID <= 0 {
		return nil, fmt.Errorf("%w: room id required", ErrBadRequest)
	}
	if body == "" && mediaURL == "" {
		return nil, fmt.Errorf("%w: message body or media required", ErrBadRequest)
	}

	unlock := h.roomLocks.Lock(roomID)
	defer unlock()

	members, err := h.chats.ListMembers(ctx, roomID)
	if err != nil {
		return nil, storeErr("list members", err)
	}
	if !slices.Contains(members, senderID) {
		return nil, fmt.Errorf("%w: not a member of room %d", ErrPermission, roomID)
	}

	stored, err := h.chats.CreateMessage(ctx, roomID, senderID, body, mediaURL)
	if err != nil {
		return nil, fmt.Errorf("%w: create message: %w", ErrPersistence, err)
	}

	if err := h.chats.UpdateRoomLastMessage(ctx, roomID, stored.ID); err != nil {
		// The message is durable; the inbox pointer catches up on the next send.
		h.log.Warn().Err(err).Int64("room_id", roomID).Int64("message_id", stored.ID).Msg("update last message")
	}

	msg := messageFromStore(stored)
	ev := &Event{Kind: EventMessageCreated, RoomID: roomID, UserID: senderID, MessageID: msg.ID, Message: msg}

	viewers := h.router.Publish(RoomChannel(roomID), ev)
	notified := 0
	for _, member := range members {
		if member == senderID {
			continue
		}
		notified += h.router.Publish(UserChannel(member), ev)
	}

	h.log.Debug().
		Int64("room_id", roomID).
		Int64("message_id", msg.ID).
		Int("viewers", viewers).
		Int("notified", notified).
		Msg("message delivered")
	return msg, nil
}

// EditMessage replaces the body of a message owned by userID and publishes the
// new state to the room channel.
func (h *Hub) EditMessage(ctx context.Context, userID, messageID int64, body string) (*Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: message body required", ErrBadRequest)
	}

	existing, err := h.ownedMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}

	unlock := h.roomLocks.Lock(existing.RoomID)
	defer unlock()

	stored, err := h.chats.EditMessage(ctx, messageID, body)
	if err != nil {
		return nil, storeErr("edit message", err)
	}

	msg := messageFromStore(stored)
	h.router.Publish(RoomChannel(msg.RoomID), &Event{
		Kind:      EventMessageEdited,
		RoomID:    msg.RoomID,
		UserID:    userID,
		MessageID: msg.ID,
		Message:   msg,
	})
	return msg, nil
}

// DeleteMessage removes a message owned by userID and publishes the removal to
// the room channel. Returns the room the message belonged to.
func (h *Hub) DeleteMessage(ctx context.Context, userID, messageID int64) (int64, error) {
	existing, err := h.ownedMessage(ctx, userID, messageID)
	if err != nil {
		return 0, err
	}

	unlock := h.roomLocks.Lock(existing.RoomID)
	defer unlock()

	if err := h.chats.DeleteMessage(ctx, messageID); err != nil {
		return 0, storeErr("delete message", err)
	}

	h.router.Publish(RoomChannel(existing.RoomID), &Event{
		Kind:      EventMessageDeleted,
		RoomID:    existing.RoomID,
		UserID:    userID,
		MessageID: messageID,
	})
	return existing.RoomID, nil
}

func (h *Hub) ownedMessage(ctx context.Context, userID, messageID int64) (*Message, error) {
	if messageID <= 0 {
		return nil, fmt.Errorf("%w: message id required", ErrBadRequest)
	}
	stored, err := h.chats.GetMessage(ctx, messageID)
	if err != nil {
		return nil, storeErr("get message", err)
	}
	if stored.SenderID != userID {
		return nil, fmt.Errorf("%w: message %d belongs to another user", ErrPermission, messageID)
	}
	return messageFromStore(stored), nil
}
