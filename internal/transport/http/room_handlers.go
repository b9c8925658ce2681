package http

import (
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/relaychat-server/internal/core"
	"github.com/vovakirdan/relaychat-server/internal/proto"
	"github.com/vovakirdan/relaychat-server/internal/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// RoomHandlers provides HTTP handlers for room management endpoints.
type RoomHandlers struct {
	store store.Store
	hub   *core.Hub
	log   *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(st store.Store, hub *core.Hub, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		store: st,
		hub:   hub,
		log:   logger,
	}
}

// CreateRoomRequest represents the create group room request body.
type CreateRoomRequest struct {
	Name      string  `json:"name" binding:"required,min=1,max=64"`
	MemberIDs []int64 `json:"member_ids"`
}

// CreateDirectRoomRequest represents the direct room request body.
type CreateDirectRoomRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	ID            int64     `json:"id"`
	Type          string    `json:"type"`
	Name          string    `json:"name"`
	Members       []int64   `json:"members"`
	LastMessageID *int64    `json:"last_message_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// InboxEntryResponse represents a room summary in the inbox.
type InboxEntryResponse struct {
	RoomResponse
	LastMessage *proto.Message `json:"last_message,omitempty"`
	UnreadCount int            `json:"unread_count"`
}

func roomResponse(room *store.Room, members []int64) RoomResponse {
	if members == nil {
		members = []int64{}
	}
	return RoomResponse{
		ID:            room.ID,
		Type:          string(room.Type),
		Name:          room.Name,
		Members:       members,
		LastMessageID: room.LastMessageID,
		CreatedAt:     room.CreatedAt,
		UpdatedAt:     room.UpdatedAt,
	}
}

// ListInbox handles listing the rooms of the current user.
// GET /api/rooms
func (h *RoomHandlers) ListInbox(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	entries, err := h.store.ListInbox(c.Request.Context(), uid)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to list inbox")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]InboxEntryResponse, 0, len(entries))
	for _, entry := range entries {
		item := InboxEntryResponse{
			RoomResponse: roomResponse(entry.Room, entry.Members),
			UnreadCount:  entry.UnreadCount,
		}
		if entry.LastMessage != nil {
			msg := storeMessageToProto(entry.LastMessage)
			item.LastMessage = &msg
		}
		response = append(response, item)
	}

	h.log.Debug().Int64("user_id", uid).Int("room_count", len(entries)).Msg("inbox listed")
	c.JSON(http.StatusOK, response)
}

// CreateRoom handles group room creation. The creator is always a member.
// POST /api/rooms
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	members := []int64{uid}
	for _, id := range req.MemberIDs {
		if slices.Contains(members, id) {
			continue
		}
		if !h.userExists(c, id) {
			return
		}
		members = append(members, id)
	}

	room, err := h.store.CreateGroupRoom(c.Request.Context(), req.Name, members)
	if err != nil {
		h.log.Error().Err(err).Str("room_name", req.Name).Msg("failed to create room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.hub.AttachRoom(room.ID, members)

	h.log.Info().Int64("room_id", room.ID).Int64("creator_id", uid).Int("members", len(members)).Msg("room created")
	c.JSON(http.StatusCreated, roomResponse(room, members))
}

// CreateDirectRoom returns the direct room with another user, creating it if needed.
// POST /api/rooms/direct
func (h *RoomHandlers) CreateDirectRoom(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	var req CreateDirectRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid direct room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.UserID == uid {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot create a direct room with yourself"})
		return
	}
	if !h.userExists(c, req.UserID) {
		return
	}

	room, err := h.store.CreateDirectRoom(c.Request.Context(), uid, req.UserID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Int64("peer_id", req.UserID).Msg("failed to create direct room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	members := []int64{uid, req.UserID}
	h.hub.AttachRoom(room.ID, members)

	c.JSON(http.StatusOK, roomResponse(room, members))
}

// ListMessages returns room history, oldest first.
// GET /api/rooms/:id/messages?limit=&before=
func (h *RoomHandlers) ListMessages(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}
	roomID, ok := h.memberRoom(c, uid)
	if !ok {
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	var before *int64
	if raw := c.Query("before"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid before"})
			return
		}
		before = &id
	}

	messages, err := h.store.ListMessages(c.Request.Context(), roomID, limit, before)
	if err != nil {
		h.log.Error().Err(err).Int64("room_id", roomID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]proto.Message, 0, len(messages))
	for _, msg := range messages {
		response = append(response, storeMessageToProto(msg))
	}
	c.JSON(http.StatusOK, response)
}

// MarkRead stamps the member's last-read time.
// POST /api/rooms/:id/read
func (h *RoomHandlers) MarkRead(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}
	roomID, ok := h.memberRoom(c, uid)
	if !ok {
		return
	}

	if err := h.store.MarkRoomRead(c.Request.Context(), roomID, uid, time.Now().UTC()); err != nil {
		h.log.Error().Err(err).Int64("room_id", roomID).Int64("user_id", uid).Msg("failed to mark room read")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.Status(http.StatusNoContent)
}

// memberRoom parses the :id parameter and checks the user belongs to that room.
func (h *RoomHandlers) memberRoom(c *gin.Context, uid int64) (int64, bool) {
	roomID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || roomID <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid room id"})
		return 0, false
	}

	member, err := h.store.IsMember(c.Request.Context(), uid, roomID)
	if err != nil {
		h.log.Error().Err(err).Int64("room_id", roomID).Msg("failed to check membership")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return 0, false
	}
	if !member {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a member of this room"})
		return 0, false
	}
	return roomID, true
}

func (h *RoomHandlers) userExists(c *gin.Context, id int64) bool {
	if _, err := h.store.GetUserByID(c.Request.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown user " + strconv.FormatInt(id, 10)})
			return false
		}
		h.log.Error().Err(err).Int64("user_id", id).Msg("failed to load user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return false
	}
	return true
}
