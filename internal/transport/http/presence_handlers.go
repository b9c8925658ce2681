package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/relaychat-server/internal/core"
	"github.com/vovakirdan/relaychat-server/internal/store"
)

// PresenceHandlers answers presence queries for users.
type PresenceHandlers struct {
	users    store.UserStore
	presence store.PresenceStore
	hub      *core.Hub
	log      *zerolog.Logger
}

// NewPresenceHandlers creates a new presence handlers instance.
func NewPresenceHandlers(users store.UserStore, presence store.PresenceStore, hub *core.Hub, logger *zerolog.Logger) *PresenceHandlers {
	return &PresenceHandlers{
		users:    users,
		presence: presence,
		hub:      hub,
		log:      logger,
	}
}

// PresenceResponse represents a user's presence in API responses.
type PresenceResponse struct {
	UserID      int64      `json:"user_id"`
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name"`
	Online      bool       `json:"online"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
}

// GetPresence reports the live online flag plus the persisted last-seen time.
// GET /api/users/:id/presence
func (h *PresenceHandlers) GetPresence(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return
	}

	user, err := h.users.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to load user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := PresenceResponse{
		UserID:      user.ID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		Online:      h.hub.Online(userID),
	}

	// The persisted record is best-effort; a missing or unreachable one only drops lastSeen.
	record, err := h.presence.GetPresence(c.Request.Context(), userID)
	switch {
	case err == nil:
		response.LastSeen = record.LastSeen
	case !errors.Is(err, store.ErrNotFound):
		h.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to load presence record")
	}

	c.JSON(http.StatusOK, response)
}
