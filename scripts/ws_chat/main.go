package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/relaychat-server/internal/proto"
)

// outbound keeps data raw so it can be decoded per event.
type outbound struct {
	Type    string          `json:"type"`
	Event   string          `json:"event"`
	Channel string          `json:"channel"`
	Ref     string          `json:"ref"`
	Data    json.RawMessage `json:"data"`
	Error   *proto.Error    `json:"error"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", os.Getenv("RELAY_TOKEN"), "bearer token (from /api/login)")
	room := flag.Int64("room", 0, "room to send messages to")
	flag.Parse()

	if *token == "" {
		return errors.New("token is required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + *token}},
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if *room > 0 {
		if err := send(ctx, conn, proto.InboundTypeJoinRoom, proto.RoomData{RoomID: *room}); err != nil {
			return err
		}
	}

	fmt.Printf("Connected to %s, room %d\n", *addr, *room)
	fmt.Println("Type messages and press Enter to send. /typing <userId>, /seen. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *room)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

var refSeq int

func send(ctx context.Context, conn *websocket.Conn, typ string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	refSeq++
	return wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Ref: strconv.Itoa(refSeq), Data: payload})
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var out outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}
		printOutbound(out)
	}
}

func printOutbound(out outbound) {
	switch out.Type {
	case proto.OutboundTypeAck:
		fmt.Printf("ack ref=%s %s\n", out.Ref, out.Data)
		return
	case proto.OutboundTypeError:
		if out.Error != nil {
			fmt.Printf("error ref=%s %s: %s\n", out.Ref, out.Error.Code, out.Error.Msg)
		}
		return
	}

	switch out.Event {
	case proto.EventReady:
		var ready proto.Ready
		if err := json.Unmarshal(out.Data, &ready); err == nil {
			fmt.Printf("ready: user %d (%s), connection %s\n", ready.UserID, ready.DisplayName, ready.ConnectionID)
		}
	case proto.EventMessageCreated, proto.EventMessageEdited:
		// Other members also get a copy on their private channel.
		if !strings.HasPrefix(out.Channel, "room:") {
			return
		}
		var msg proto.Message
		if err := json.Unmarshal(out.Data, &msg); err != nil {
			log.Printf("unmarshal message: %v", err)
			return
		}
		suffix := ""
		if msg.Edited {
			suffix = " (edited)"
		}
		fmt.Printf("[room %d] #%d user %d: %s%s\n", msg.RoomID, msg.ID, msg.SenderID, msg.Body, suffix)
	case proto.EventPresenceChanged:
		var p proto.PresenceChanged
		if err := json.Unmarshal(out.Data, &p); err == nil {
			state := "offline"
			if p.Online {
				state = "online"
			}
			fmt.Printf("user %d is %s\n", p.UserID, state)
		}
	case proto.EventTyping:
		var typing proto.Typing
		if err := json.Unmarshal(out.Data, &typing); err == nil && typing.IsTyping {
			fmt.Printf("[room %d] user %d is typing...\n", typing.RoomID, typing.UserID)
		}
	default:
		fmt.Printf("event=%s channel=%s data=%s\n", out.Event, out.Channel, out.Data)
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, room int64) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if err := handleLine(ctx, conn, room, text); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}

func handleLine(ctx context.Context, conn *websocket.Conn, room int64, text string) error {
	switch {
	case strings.HasPrefix(text, "/typing "):
		to, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(text, "/typing ")), 10, 64)
		if err != nil {
			fmt.Println("usage: /typing <userId>")
			return nil
		}
		return send(ctx, conn, proto.InboundTypeTypingStart, proto.TypingData{RoomID: room, ToUserID: to})
	case text == "/seen":
		return send(ctx, conn, proto.InboundTypeMarkSeen, proto.RoomData{RoomID: room})
	default:
		return send(ctx, conn, proto.InboundTypeSend, proto.SendData{RoomID: room, Body: text})
	}
}
