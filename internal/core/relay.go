package core

import (
	"context"
	"fmt"
	"slices"
)

// TypingStart relays a typing signal to the target user's private channel.
// Both users must belong to the room. Nothing is stored; the signal is dropped
// if the target is offline.
func (h *Hub) TypingStart(ctx context.Context, roomID, fromUserID, toUserID int64) error {
	return h.typing(ctx, roomID, fromUserID, toUserID, true)
}

// TypingStop relays the end of a typing signal.
func (h *Hub) TypingStop(ctx context.Context, roomID, fromUserID, toUserID int64) error {
	return h.typing(ctx, roomID, fromUserID, toUserID, false)
}

func (h *Hub) typing(ctx context.Context, roomID, fromUserID, toUserID int64, isTyping bool) error {
	if roomID <= 0 || toUserID <= 0 {
		return fmt.Errorf("%w: room id and target user required", ErrBadRequest)
	}
	if toUserID == fromUserID {
		return nil
	}

	members, err := h.chats.ListMembers(ctx, roomID)
	if err != nil {
		return storeErr("list members", err)
	}
	if !slices.Contains(members, fromUserID) || !slices.Contains(members, toUserID) {
		return fmt.Errorf("%w: users do not share room %d", ErrPermission, roomID)
	}

	h.router.Publish(UserChannel(toUserID), &Event{
		Kind:     EventTyping,
		RoomID:   roomID,
		UserID:   fromUserID,
		IsTyping: isTyping,
	})
	return nil
}

// MarkSeen adds the user to the seen-set of every message in the room and
// stamps their last-read time. When the seen-set changed, the other members get
// a seenUpdate on their private channels. Reports whether anything changed.
func (h *Hub) MarkSeen(ctx context.Context, roomID, userID int64) (bool, error) {
	if roomID <= 0 {
		return false, fmt.Errorf("%w: room id required", ErrBadRequest)
	}

	members, err := h.chats.ListMembers(ctx, roomID)
	if err != nil {
		return false, storeErr("list members", err)
	}
	if !slices.Contains(members, userID) {
		return false, fmt.Errorf("%w: not a member of room %d", ErrPermission, roomID)
	}

	added, err := h.chats.AddSeenBy(ctx, roomID, userID)
	if err != nil {
		return false, fmt.Errorf("%w: add seen: %w", ErrPersistence, err)
	}
	if err := h.chats.MarkRoomRead(ctx, roomID, userID, h.now()); err != nil {
		h.log.Warn().Err(err).Int64("room_id", roomID).Int64("user_id", userID).Msg("mark room read")
	}
	if added == 0 {
		return false, nil
	}

	ev := &Event{Kind: EventSeenUpdate, RoomID: roomID, UserID: userID}
	for _, member := range members {
		if member == userID {
			continue
		}
		h.router.Publish(UserChannel(member), ev)
	}
	return true, nil
}
