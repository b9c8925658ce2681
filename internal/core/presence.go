package core

import "context"

// announceOnline runs under the user's lock on the 0→1 transition.
// The in-memory registry is authoritative; a failed write is only logged.
func (h *Hub) announceOnline(ctx context.Context, c *Conn) {
	if h.presence != nil {
		pctx, cancel := h.persistContext(ctx)
		if err := h.presence.SetOnline(pctx, c.UserID); err != nil {
			h.log.Warn().Err(err).Int64("user_id", c.UserID).Msg("persist online presence")
		}
		cancel()
	}

	n := h.router.Broadcast(&Event{
		Kind:   EventPresenceChanged,
		UserID: c.UserID,
		Online: true,
	}, c)
	h.log.Debug().Int64("user_id", c.UserID).Int("recipients", n).Msg("user online")
}

// announceOffline runs under the user's lock on the 1→0 transition.
func (h *Hub) announceOffline(ctx context.Context, c *Conn) {
	lastSeen := h.now()

	if h.presence != nil {
		pctx, cancel := h.persistContext(ctx)
		if err := h.presence.SetOffline(pctx, c.UserID, lastSeen); err != nil {
			h.log.Warn().Err(err).Int64("user_id", c.UserID).Msg("persist offline presence")
		}
		cancel()
	}

	n := h.router.Broadcast(&Event{
		Kind:     EventPresenceChanged,
		UserID:   c.UserID,
		Online:   false,
		LastSeen: &lastSeen,
	}, c)
	h.log.Debug().Int64("user_id", c.UserID).Int("recipients", n).Msg("user offline")
}
