package server

import "skirmish/pkg/protocol"

type EventKind int

const (
	EventMessage EventKind = iota
	EventClosed
)

// RoomEvent 连接 goroutine 交给房间的事件，按到达顺序在下一个 tick 处理
type RoomEvent struct {
	Kind    EventKind
	Session Session
	Env     protocol.Envelope
}
