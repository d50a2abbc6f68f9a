package client

import (
	"fmt"

	"skirmish/pkg/core"
	"skirmish/pkg/netcode"
	"skirmish/pkg/protocol"
)

// ScreenKind 界面类别
type ScreenKind int

const (
	ScreenConnecting ScreenKind = iota
	ScreenLobby
	ScreenPlaying
	ScreenDisconnected
)

func (k ScreenKind) String() string {
	switch k {
	case ScreenConnecting:
		return "connecting"
	case ScreenLobby:
		return "lobby"
	case ScreenPlaying:
		return "playing"
	case ScreenDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Screen 当前界面；具体类型决定可用的数据
type Screen interface {
	Kind() ScreenKind
	// Status 状态栏文字
	Status() string
}

// ConnectingScreen 正在连接或重连
type ConnectingScreen struct {
	Addr      string
	Resyncing bool
}

func (ConnectingScreen) Kind() ScreenKind { return ScreenConnecting }

func (s ConnectingScreen) Status() string {
	if s.Resyncing {
		return "resynchronizing with " + s.Addr
	}
	return "connecting to " + s.Addr
}

// LobbyScreen 等待房主开始
type LobbyScreen struct {
	Self   uint32
	IsHost bool
	Roster []protocol.RosterEntry
}

func (LobbyScreen) Kind() ScreenKind { return ScreenLobby }

func (s LobbyScreen) Status() string {
	if s.IsHost {
		return fmt.Sprintf("%d player(s), press Enter to start", len(s.Roster))
	}
	return fmt.Sprintf("%d player(s), waiting for host", len(s.Roster))
}

// PlayingScreen 对局中
type PlayingScreen struct {
	Self              core.EntityNetID
	Frame             netcode.FrameNumber
	World             *core.World // 只读
	Roster            []protocol.RosterEntry
	Stats             []protocol.PlayerNetStatus
	Synced            bool // 已收到全量同步
	Paused            bool
	Lagging           []uint32
	WaitingForNetwork bool
}

func (PlayingScreen) Kind() ScreenKind { return ScreenPlaying }

func (s PlayingScreen) Status() string {
	switch {
	case !s.Synced:
		return "loading world"
	case s.WaitingForNetwork:
		return "waiting for network"
	case s.Paused:
		return fmt.Sprintf("waiting for %d player(s)", len(s.Lagging))
	}
	return fmt.Sprintf("frame %d", s.Frame)
}

// DisconnectedScreen 已断开，Reason 面向玩家
type DisconnectedScreen struct {
	Reason string
}

func (DisconnectedScreen) Kind() ScreenKind { return ScreenDisconnected }

func (s DisconnectedScreen) Status() string {
	return "disconnected: " + s.Reason
}
