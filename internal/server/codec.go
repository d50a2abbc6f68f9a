package server

import (
	"fmt"

	"skirmish/pkg/protocol"
)

// DecodePacket 解析服务器收到的数据包
func DecodePacket(s Session, data []byte) (RoomEvent, error) {
	env, err := protocol.Unmarshal(data)
	if err != nil {
		return RoomEvent{}, fmt.Errorf("解析包失败: %w", err)
	}
	if !clientMessage(env.Message.Type()) {
		return RoomEvent{}, fmt.Errorf("客户端不应发送 %s", env.Message.Type())
	}
	return RoomEvent{Kind: EventMessage, Session: s, Env: env}, nil
}

// clientMessage 客户端允许发送的消息类型
func clientMessage(t protocol.MessageType) bool {
	switch t {
	case protocol.MsgJoinRoom, protocol.MsgStartHostedGame, protocol.MsgWalkActions,
		protocol.MsgCastActions, protocol.MsgLookActions, protocol.MsgAcknowledgeWorldUpdate,
		protocol.MsgKick, protocol.MsgReconnectRoom, protocol.MsgDisconnect, protocol.MsgHeartbeat:
		return true
	}
	return false
}
