package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/vovakirdan/relaychat-server/internal/auth"
	"github.com/vovakirdan/relaychat-server/internal/config"
	"github.com/vovakirdan/relaychat-server/internal/core"
	"github.com/vovakirdan/relaychat-server/internal/proto"
)

const pingTimeout = 5 * time.Second

// WSOptions tunes a WebSocket connection.
type WSOptions struct {
	MaxMessageBytes int64
	AllowedOrigins  []string
	CommandRate     float64
	CommandBurst    int
	PingInterval    time.Duration
}

// WSOptionsFromConfig extracts WebSocket options from the server config.
func WSOptionsFromConfig(cfg *config.Config) WSOptions {
	return WSOptions{
		MaxMessageBytes: cfg.MaxMessageBytes,
		AllowedOrigins:  cfg.AllowedOrigins,
		CommandRate:     cfg.CommandRate,
		CommandBurst:    cfg.CommandBurst,
		PingInterval:    cfg.PingInterval,
	}
}

// WSHandler authenticates HTTP connections, upgrades them and bridges them to core.Conn.
type WSHandler struct {
	hub      *core.Hub
	verifier auth.Verifier
	opts     WSOptions
	accept   *websocket.AcceptOptions
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, verifier auth.Verifier, opts WSOptions, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		hub:      hub,
		verifier: verifier,
		opts:     opts,
		accept:   acceptOptions(opts.AllowedOrigins),
		log:      logger,
	}
}

// acceptOptions turns configured origins ("https://app.example") into host patterns.
// An empty list or "*" disables the origin check.
func acceptOptions(origins []string) *websocket.AcceptOptions {
	patterns := make([]string, 0, len(origins))
	for _, origin := range origins {
		if origin == "*" {
			return &websocket.AcceptOptions{InsecureSkipVerify: true}
		}
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, origin)
	}
	if len(patterns) == 0 {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	return &websocket.AcceptOptions{OriginPatterns: patterns}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	// Credentials are checked before the upgrade so rejected clients get a plain HTTP 401.
	identity, err := h.verifier.Verify(ctx, requestToken(r))
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			h.log.Debug().Err(err).Msg("ws auth rejected")
			writeJSON(w, stdhttp.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			return
		}
		h.log.Error().Err(err).Msg("ws auth failed")
		writeJSON(w, stdhttp.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	conn, err := websocket.Accept(w, r, h.accept)
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	if h.opts.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.opts.MaxMessageBytes)
	}

	client := core.NewConn(uuid.NewString(), identity.UserID, identity.DisplayName)
	logger := h.log.With().Str("conn_id", client.ID).Int64("user_id", client.UserID).Logger()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := h.hub.Connect(ctx, client); err != nil {
		logger.Debug().Err(err).Msg("connection refused")
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.hub.Disconnect(ctx, client)

	ready := proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: proto.EventReady,
		Data: proto.Ready{
			Protocol:     proto.ProtocolVersion,
			ConnectionID: client.ID,
			UserID:       identity.UserID,
			DisplayName:  identity.DisplayName,
		},
	}
	if err := wsjson.Write(ctx, conn, ready); err != nil {
		logger.Warn().Err(err).Msg("write ready")
		return
	}

	// Serve must return before Disconnect so no command runs against an unbound connection.
	served := make(chan struct{})
	go func() {
		defer close(served)
		h.hub.Serve(ctx, client)
	}()

	const loops = 3
	errCh := make(chan error, loops)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, &logger)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client, &logger)
	}()
	go func() {
		errCh <- h.pingLoop(ctx, conn)
	}()

	pending := loops
	select {
	case err = <-errCh:
		pending--
	case <-client.Done():
		err = websocket.CloseError{Code: websocket.StatusGoingAway, Reason: "server shutting down"}
	}
	cancel() // stop the other goroutines
	for ; pending > 0; pending-- {
		<-errCh
	}
	<-served

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusGoingAway {
			reason = "going away"
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			logger.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Conn, logger *zerolog.Logger) error {
	limiter := rate.NewLimiter(h.commandLimit(), h.opts.CommandBurst)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			logger.Debug().Err(err).Msg("read ws inbound")
			return err
		}

		var inbound proto.Inbound
		if typ != websocket.MessageText || json.Unmarshal(data, &inbound) != nil {
			if err := writeError(ctx, conn, "", &proto.Error{Code: proto.ErrCodeInvalidMessage, Msg: "invalid json"}); err != nil {
				return err
			}
			continue
		}

		if inbound.Type == proto.InboundTypeHello {
			if err := h.hello(ctx, conn, inbound); err != nil {
				return err
			}
			continue
		}

		if !limiter.Allow() {
			logger.Debug().Str("type", inbound.Type).Msg("command rate limited")
			if err := writeError(ctx, conn, inbound.Ref, &proto.Error{Code: core.ErrCodeRateLimited, Msg: "too many commands"}); err != nil {
				return err
			}
			continue
		}

		cmd, protoErr := inboundToCommand(inbound)
		if protoErr != nil {
			if err := writeError(ctx, conn, inbound.Ref, protoErr); err != nil {
				return err
			}
			continue
		}

		select {
		case client.Commands <- cmd:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) hello(ctx context.Context, conn *websocket.Conn, inbound proto.Inbound) error {
	var data proto.HelloData
	if len(inbound.Data) > 0 {
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return writeError(ctx, conn, inbound.Ref, badRequest("invalid data for hello"))
		}
	}
	if data.Protocol != 0 && data.Protocol != proto.ProtocolVersion {
		return writeError(ctx, conn, inbound.Ref, &proto.Error{
			Code: proto.ErrCodeUnsupportedVersion,
			Msg:  "unsupported protocol version",
		})
	}
	return wsjson.Write(ctx, conn, proto.Outbound{Type: proto.OutboundTypeAck, Ref: inbound.Ref, Data: proto.Ack{}})
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Conn, logger *zerolog.Logger) error {
	for {
		select {
		case event := <-client.Events:
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				logger.Warn().Err(err).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// pingLoop surfaces dead transports as read errors.
func (h *WSHandler) pingLoop(ctx context.Context, conn *websocket.Conn) error {
	if h.opts.PingInterval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func (h *WSHandler) commandLimit() rate.Limit {
	if h.opts.CommandRate <= 0 {
		return rate.Inf
	}
	return rate.Limit(h.opts.CommandRate)
}

func writeError(ctx context.Context, conn *websocket.Conn, ref string, protoErr *proto.Error) error {
	return wsjson.Write(ctx, conn, proto.Outbound{Type: proto.OutboundTypeError, Ref: ref, Error: protoErr})
}

func writeJSON(w stdhttp.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
