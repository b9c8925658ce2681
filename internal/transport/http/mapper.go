package http

import (
	"encoding/json"

	"github.com/vovakirdan/relaychat-server/internal/core"
	"github.com/vovakirdan/relaychat-server/internal/proto"
	"github.com/vovakirdan/relaychat-server/internal/store"
)

func badRequest(msg string) *proto.Error {
	return &proto.Error{Code: core.ErrCodeBadRequest, Msg: msg}
}

func decode(inbound proto.Inbound, dst any) *proto.Error {
	if len(inbound.Data) == 0 {
		return badRequest("data is required")
	}
	if err := json.Unmarshal(inbound.Data, dst); err != nil {
		return badRequest("invalid data for " + inbound.Type)
	}
	return nil
}

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	cmd := &core.Command{Ref: inbound.Ref}

	switch inbound.Type {
	case proto.InboundTypeJoinRoom, proto.InboundTypeMarkSeen:
		var data proto.RoomData
		if perr := decode(inbound, &data); perr != nil {
			return nil, perr
		}
		if data.RoomID <= 0 {
			return nil, badRequest("roomId is required")
		}
		cmd.Kind = core.CommandJoinRoom
		if inbound.Type == proto.InboundTypeMarkSeen {
			cmd.Kind = core.CommandMarkSeen
		}
		cmd.RoomID = data.RoomID
	case proto.InboundTypeSend:
		var data proto.SendData
		if perr := decode(inbound, &data); perr != nil {
			return nil, perr
		}
		if data.RoomID <= 0 {
			return nil, badRequest("roomId is required")
		}
		cmd.Kind = core.CommandSend
		cmd.RoomID = data.RoomID
		cmd.Body = data.Body
		cmd.MediaURL = data.MediaURL
	case proto.InboundTypeEditMessage:
		var data proto.EditData
		if perr := decode(inbound, &data); perr != nil {
			return nil, perr
		}
		if data.MessageID <= 0 {
			return nil, badRequest("messageId is required")
		}
		cmd.Kind = core.CommandEditMessage
		cmd.MessageID = data.MessageID
		cmd.Body = data.Body
	case proto.InboundTypeDeleteMessage:
		var data proto.DeleteData
		if perr := decode(inbound, &data); perr != nil {
			return nil, perr
		}
		if data.MessageID <= 0 {
			return nil, badRequest("messageId is required")
		}
		cmd.Kind = core.CommandDeleteMessage
		cmd.MessageID = data.MessageID
	case proto.InboundTypeTypingStart, proto.InboundTypeTypingStop:
		var data proto.TypingData
		if perr := decode(inbound, &data); perr != nil {
			return nil, perr
		}
		if data.RoomID <= 0 || data.ToUserID <= 0 {
			return nil, badRequest("roomId and toUserId are required")
		}
		cmd.Kind = core.CommandTypingStart
		if inbound.Type == proto.InboundTypeTypingStop {
			cmd.Kind = core.CommandTypingStop
		}
		cmd.RoomID = data.RoomID
		cmd.ToUserID = data.ToUserID
	default:
		return nil, &proto.Error{Code: proto.ErrCodeInvalidMessage, Msg: "unknown message type"}
	}

	return cmd, nil
}

func messageToProto(msg *core.Message) proto.Message {
	seenBy := msg.SeenBy
	if seenBy == nil {
		seenBy = []int64{}
	}
	return proto.Message{
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		SenderID:  msg.SenderID,
		Body:      msg.Body,
		MediaURL:  msg.MediaURL,
		SeenBy:    seenBy,
		Edited:    msg.Edited,
		CreatedAt: msg.CreatedAt,
		UpdatedAt: msg.UpdatedAt,
	}
}

func storeMessageToProto(msg *store.Message) proto.Message {
	seenBy := msg.SeenBy
	if seenBy == nil {
		seenBy = []int64{}
	}
	return proto.Message{
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		SenderID:  msg.SenderID,
		Body:      msg.Body,
		MediaURL:  msg.MediaURL,
		SeenBy:    seenBy,
		Edited:    msg.Edited,
		CreatedAt: msg.CreatedAt,
		UpdatedAt: msg.UpdatedAt,
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	out := proto.Outbound{
		Type:    proto.OutboundTypeEvent,
		Channel: string(event.Channel),
		Ref:     event.Ref,
	}

	switch event.Kind {
	case core.EventPresenceChanged:
		out.Event = proto.EventPresenceChanged
		out.Data = proto.PresenceChanged{
			UserID:   event.UserID,
			Online:   event.Online,
			LastSeen: event.LastSeen,
		}
	case core.EventMessageCreated, core.EventMessageEdited:
		out.Event = proto.EventMessageCreated
		if event.Kind == core.EventMessageEdited {
			out.Event = proto.EventMessageEdited
		}
		if event.Message != nil {
			out.Data = messageToProto(event.Message)
		}
	case core.EventMessageDeleted:
		out.Event = proto.EventMessageDeleted
		out.Data = proto.MessageDeleted{MessageID: event.MessageID, RoomID: event.RoomID}
	case core.EventTyping:
		out.Event = proto.EventTyping
		out.Data = proto.Typing{RoomID: event.RoomID, UserID: event.UserID, IsTyping: event.IsTyping}
	case core.EventSeenUpdate:
		out.Event = proto.EventSeenUpdate
		out.Data = proto.SeenUpdate{RoomID: event.RoomID, UserID: event.UserID}
	case core.EventAck:
		out.Type = proto.OutboundTypeAck
		out.Data = proto.Ack{RoomID: event.RoomID, MessageID: event.MessageID}
	case core.EventError:
		out.Type = proto.OutboundTypeError
		if event.Error == nil {
			out.Error = &proto.Error{Code: "unknown", Msg: "unknown error"}
			break
		}
		out.Error = &proto.Error{Code: event.Error.Code, Msg: event.Error.Message}
	}

	return out
}
