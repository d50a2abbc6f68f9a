package server

import "skirmish/pkg/protocol"

// Session 房间眼中的一条客户端连接
type Session interface {
	ID() uint32
	Send(m protocol.Message) error
	// Close 发送 Disconnect{reason} 后关闭；reason 为空时直接关闭
	Close(reason string)
	// SetSessionID 之后发出的消息带上该会话序号
	SetSessionID(id uint32)
}
