package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"skirmish/pkg/core"
	"skirmish/pkg/netcode"
)

// MessageType 消息类型
type MessageType uint32

const (
	MsgUnknown MessageType = iota

	// 客户端 -> 服务器
	MsgJoinRoom
	MsgStartHostedGame
	MsgWalkActions
	MsgCastActions
	MsgLookActions
	MsgAcknowledgeWorldUpdate
	MsgKick
	MsgReconnectRoom

	// 双向
	MsgDisconnect
	MsgHeartbeat

	// 服务器 -> 客户端
	MsgHandshake
	MsgUpdateRoomPlayers
	MsgStartGame
	MsgUpdateWorld
	MsgDiscardWalkActions
	MsgPauseWaitingForPlayers
	MsgUnpauseWaitingForPlayers
	MsgReportPlayersNetStatus
)

var messageNames = map[MessageType]string{
	MsgJoinRoom:                 "JoinRoom",
	MsgStartHostedGame:          "StartHostedGame",
	MsgWalkActions:              "WalkActions",
	MsgCastActions:              "CastActions",
	MsgLookActions:              "LookActions",
	MsgAcknowledgeWorldUpdate:   "AcknowledgeWorldUpdate",
	MsgKick:                     "Kick",
	MsgReconnectRoom:            "ReconnectRoom",
	MsgDisconnect:               "Disconnect",
	MsgHeartbeat:                "Heartbeat",
	MsgHandshake:                "Handshake",
	MsgUpdateRoomPlayers:        "UpdateRoomPlayers",
	MsgStartGame:                "StartGame",
	MsgUpdateWorld:              "UpdateWorld",
	MsgDiscardWalkActions:       "DiscardWalkActions",
	MsgPauseWaitingForPlayers:   "PauseWaitingForPlayers",
	MsgUnpauseWaitingForPlayers: "UnpauseWaitingForPlayers",
	MsgReportPlayersNetStatus:   "ReportPlayersNetStatus",
}

func (t MessageType) String() string {
	if name, ok := messageNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MessageType(%d)", uint32(t))
}

// Delivery 投递级别
type Delivery uint8

const (
	// Unreliable 允许丢失，下一 tick 的消息会覆盖
	Unreliable Delivery = iota
	// Reliable 必须送达，发送队列满时断开连接
	Reliable
)

func (d Delivery) String() string {
	if d == Reliable {
		return "reliable"
	}
	return "unreliable"
}

// DeliveryOf 消息类型的投递级别
func DeliveryOf(t MessageType) Delivery {
	switch t {
	case MsgWalkActions, MsgCastActions, MsgLookActions, MsgAcknowledgeWorldUpdate,
		MsgUpdateWorld, MsgHeartbeat:
		return Unreliable
	}
	return Reliable
}

// Message 所有协议消息
type Message interface {
	Type() MessageType
	appendPayload(b []byte) []byte
	decodePayload(b []byte) error
}

func newMessage(t MessageType) (Message, bool) {
	switch t {
	case MsgJoinRoom:
		return &JoinRoom{}, true
	case MsgStartHostedGame:
		return &StartHostedGame{}, true
	case MsgWalkActions:
		return &WalkActions{}, true
	case MsgCastActions:
		return &CastActions{}, true
	case MsgLookActions:
		return &LookActions{}, true
	case MsgAcknowledgeWorldUpdate:
		return &AcknowledgeWorldUpdate{}, true
	case MsgKick:
		return &Kick{}, true
	case MsgReconnectRoom:
		return &ReconnectRoom{}, true
	case MsgDisconnect:
		return &Disconnect{}, true
	case MsgHeartbeat:
		return &Heartbeat{}, true
	case MsgHandshake:
		return &Handshake{}, true
	case MsgUpdateRoomPlayers:
		return &UpdateRoomPlayers{}, true
	case MsgStartGame:
		return &StartGame{}, true
	case MsgUpdateWorld:
		return &UpdateWorld{}, true
	case MsgDiscardWalkActions:
		return &DiscardWalkActions{}, true
	case MsgPauseWaitingForPlayers:
		return &PauseWaitingForPlayers{}, true
	case MsgUnpauseWaitingForPlayers:
		return &UnpauseWaitingForPlayers{}, true
	case MsgReportPlayersNetStatus:
		return &ReportPlayersNetStatus{}, true
	}
	return nil, false
}

func appendVec(b []byte, num protowire.Number, v core.Vec2) []byte {
	if v.IsZero() {
		return b
	}
	return appendMessage(b, num, func(b []byte) []byte {
		b = appendFloat(b, 1, v.X)
		return appendFloat(b, 2, v.Y)
	})
}

func (f *field) vec() (core.Vec2, error) {
	var v core.Vec2
	err := walk(f.bytes(), func(f *field) error {
		switch f.num {
		case 1:
			v.X = f.float64()
		case 2:
			v.Y = f.float64()
		}
		return nil
	})
	if err == nil && !v.Finite() {
		err = ErrNonFinite
	}
	return v, err
}

// ========== 客户端 -> 服务器 ==========

// JoinRoom 加入房间
type JoinRoom struct {
	Nickname string
	SentAt   int64 // 客户端 Unix 毫秒
}

func (*JoinRoom) Type() MessageType { return MsgJoinRoom }

func (m *JoinRoom) appendPayload(b []byte) []byte {
	b = appendString(b, 1, m.Nickname)
	return appendUint(b, 2, uint64(m.SentAt))
}

func (m *JoinRoom) decodePayload(b []byte) error {
	return walk(b, func(f *field) error {
		switch f.num {
		case 1:
			m.Nickname = f.string()
		case 2:
			m.SentAt = int64(f.uint64())
		}
		return nil
	})
}

// StartHostedGame 房主开始游戏
type StartHostedGame struct{}

func (*StartHostedGame) Type() MessageType            { return MsgStartHostedGame }
func (*StartHostedGame) appendPayload(b []byte) []byte { return b }
func (*StartHostedGame) decodePayload([]byte) error    { return nil }

// WalkUpdate 一条行走指令
type WalkUpdate struct {
	ID        uint64
	Frame     uint64 // 指令生效帧（已加上插值延迟）
	Direction core.Vec2
}

// WalkActions 行走指令；未被服务器确认前客户端会重复发送
type WalkActions struct {
	Frame   uint64 // 发送时的客户端帧
	Updates []WalkUpdate
}

func (*WalkActions) Type() MessageType { return MsgWalkActions }

func (m *WalkActions) appendPayload(b []byte) []byte {
	b = appendUint(b, 1, m.Frame)
	for _, u := range m.Updates {
		b = appendMessage(b, 2, func(b []byte) []byte {
			b = appendUint(b, 1, u.ID)
			b = appendUint(b, 2, u.Frame)
			return appendVec(b, 3, u.Direction)
		})
	}
	return b
}

func (m *WalkActions) decodePayload(b []byte) error {
	return walk(b, func(f *field) error {
		switch f.num {
		case 1:
			m.Frame = f.uint64()
		case 2:
			var u WalkUpdate
			err := walk(f.bytes(), func(f *field) (err error) {
				switch f.num {
				case 1:
					u.ID = f.uint64()
				case 2:
					u.Frame = f.uint64()
				case 3:
					u.Direction, err = f.vec()
				}
				return err
			})
			if err != nil {
				return err
			}
			m.Updates = append(m.Updates, u)
		}
		return nil
	})
}

// CastUpdate 一条施法指令
type CastUpdate struct {
	ClientID uint64
	Frame    uint64
	Target   core.Vec2
}

// CastActions 施法指令
type CastActions struct {
	Frame   uint64
	Updates []CastUpdate
}

func (*CastActions) Type() MessageType { return MsgCastActions }

func (m *CastActions) appendPayload(b []byte) []byte {
	b = appendUint(b, 1, m.Frame)
	for _, u := range m.Updates {
		b = appendMessage(b, 2, func(b []byte) []byte {
			b = appendUint(b, 1, u.ClientID)
			b = appendUint(b, 2, u.Frame)
			return appendVec(b, 3, u.Target)
		})
	}
	return b
}

func (m *CastActions) decodePayload(b []byte) error {
	return walk(b, func(f *field) error {
		switch f.num {
		case 1:
			m.Frame = f.uint64()
		case 2:
			var u CastUpdate
			err := walk(f.bytes(), func(f *field) (err error) {
				switch f.num {
				case 1:
					u.ClientID = f.uint64()
				case 2:
					u.Frame = f.uint64()
				case 3:
					u.Target, err = f.vec()
				}
				return err
			})
			if err != nil {
				return err
			}
			m.Updates = append(m.Updates, u)
		}
		return nil
	})
}

// LookUpdate 某一帧的朝向
type LookUpdate struct {
	Frame     uint64
	Direction core.Vec2
}

// LookActions 多帧朝向
type LookActions struct {
	Updates []LookUpdate
}

func (*LookActions) Type() MessageType { return MsgLookActions }

func (m *LookActions) appendPayload(b []byte) []byte {
	for _, u := range m.Updates {
		b = appendMessage(b, 1, func(b []byte) []byte {
			b = appendUint(b, 1, u.Frame)
			return appendVec(b, 2, u.Direction)
		})
	}
	return b
}

func (m *LookActions) decodePayload(b []byte) error {
	return walk(b, func(f *field) error {
		if f.num != 1 {
			return nil
		}
		var u LookUpdate
		err := walk(f.bytes(), func(f *field) (err error) {
			switch f.num {
			case 1:
				u.Frame = f.uint64()
			case 2:
				u.Direction, err = f.vec()
			}
			return err
		})
		if err != nil {
			return err
		}
		m.Updates = append(m.Updates, u)
		return nil
	})
}

// AcknowledgeWorldUpdate 确认收到的最新世界更新 ID
type AcknowledgeWorldUpdate struct {
	Frame uint64
}

func (*AcknowledgeWorldUpdate) Type() MessageType { return MsgAcknowledgeWorldUpdate }

func (m *AcknowledgeWorldUpdate) appendPayload(b []byte) []byte {
	return appendUint(b, 1, m.Frame)
}

func (m *AcknowledgeWorldUpdate) decodePayload(b []byte) error {
	return walk(b, func(f *field) error {
		if f.num == 1 {
			m.Frame = f.uint64()
		}
		return nil
	})
}

// Kick 房主踢人
type Kick struct {
	Target uint32 // 连接 ID
}

func (*Kick) Type() MessageType { return MsgKick }

func (m *Kick) appendPayload(b []byte) []byte {
	return appendUint(b, 1, uint64(m.Target))
}

func (m *Kick) decodePayload(b []byte) error {
	return walk(b, func(f *field) error {
		if f.num == 1 {
			m.Target = f.uint32()
		}
		return nil
	})
}

// ReconnectRoom 使用会话令牌重连到原来的位置
type ReconnectRoom struct {
	Token string
}

func (*ReconnectRoom) Type() MessageType { return MsgReconnectRoom }

func (m *ReconnectRoom) appendPayload(b []byte) []byte {
	return appendString(b, 1, m.Token)
}

func (m *ReconnectRoom) decodePayload(b []byte) error {
	return walk(b, func(f *field) error {
		if f.num == 1 {
			m.Token = f.string()
		}
		return nil
	})
}

// ========== 双向 ==========

// Disconnect 断开连接；服务器发出时带原因
type Disconnect struct {
	Reason string
}

func (*Disconnect) Type() MessageType { return MsgDisconnect }

func (m *Disconnect) appendPayload(b []byte) []byte {
	return appendString(b, 1, m.Reason)
}

func (m *Disconnect) decodePayload(b []byte) error {
	return walk(b, func(f *field) error {
		if f.num == 1 {
			m.Reason = f.string()
		}
		return nil
	})
}

// Heartbeat 心跳；服务器发出 Seq，客户端原样回传
type Heartbeat struct {
	Seq    uint64
	SentAt int64
}

func (*Heartbeat) Type() MessageType { return MsgHeartbeat }

func (m *Heartbeat) appendPayload(b []byte) []byte {
	b = appendUint(b, 1, m.Seq)
	return appendUint(b, 2, uint64(m.SentAt))
}

func (m *Heartbeat) decodePayload(b []byte) error {
	return walk(b, func(f *field) error {
		switch f.num {
		case 1:
			m.Seq = f.uint64()
		case 2:
			m.SentAt = int64(f.uint64())
		}
		return nil
	})
}

// ========== 服务器 -> 客户端 ==========

// Handshake 加入成功
type Handshake struct {
	NetID        uint32
	IsHost       bool
	ConnectionID uint32
	SessionID    uint32
	Token        string // 重连令牌
}

func (*Handshake) Type() MessageType { return MsgHandshake }

func (m *Handshake) appendPayload(b []byte) []byte {
	b = appendUint(b, 1, uint64(m.NetID))
	b = appendBool(b, 2, m.IsHost)
	b = appendUint(b, 3, uint64(m.ConnectionID))
	b = appendUint(b, 4, uint64(m.SessionID))
	return appendString(b, 5, m.Token)
}

func (m *Handshake) decodePayload(b []byte) error {
	return walk(b, func(f *field) error {
		switch f.num {
		case 1:
			m.NetID = f.uint32()
		case 2:
			m.IsHost = f.bool()
		case 3:
			m.ConnectionID = f.uint32()
		case 4:
			m.SessionID = f.uint32()
		case 5:
			m.Token = f.string()
		}
		return nil
	})
}

// RosterEntry 房间内的一名玩家
type RosterEntry struct {
	ConnectionID uint32
	Nickname     string
	Color        uint32 // 0xRRGGBBAA
	NetID        uint32
	IsHost       bool
	Connected    bool
}

// UpdateRoomPlayers 房间玩家列表
type UpdateRoomPlayers struct {
	Roster []RosterEntry
}

func (*UpdateRoomPlayers) Type() MessageType { return MsgUpdateRoomPlayers }

func (m *UpdateRoomPlayers) appendPayload(b []byte) []byte {
	for _, e := range m.Roster {
		b = appendMessage(b, 1, func(b []byte) []byte {
			b = appendUint(b, 1, uint64(e.ConnectionID))
			b = appendString(b, 2, e.Nickname)
			b = appendUint(b, 3, uint64(e.Color))
			b = appendUint(b, 4, uint64(e.NetID))
			b = appendBool(b, 5, e.IsHost)
			return appendBool(b, 6, e.Connected)
		})
	}
	return b
}

func (m *UpdateRoomPlayers) decodePayload(b []byte) error {
	return walk(b, func(f *field) error {
		if f.num != 1 {
			return nil
		}
		var e RosterEntry
		err := walk(f.bytes(), func(f *field) error {
			switch f.num {
			case 1:
				e.ConnectionID = f.uint32()
			case 2:
				e.Nickname = f.string()
			case 3:
				e.Color = f.uint32()
			case 4:
				e.NetID = f.uint32()
			case 5:
				e.IsHost = f.bool()
			case 6:
				e.Connected = f.bool()
			}
			return nil
		})
		if err != nil {
			return err
		}
		m.Roster = append(m.Roster, e)
		return nil
	})
}

// StartGame 游戏开始
type StartGame struct {
	NetIDs     []uint32
	StartFrame uint64
}

func (*StartGame) Type() MessageType { return MsgStartGame }

func (m *StartGame) appendPayload(b []byte) []byte {
	ids := make([]uint64, len(m.NetIDs))
	for i, id := range m.NetIDs {
		ids[i] = uint64(id)
	}
	b = appendPacked(b, 1, ids)
	return appendUint(b, 2, m.StartFrame)
}

func (m *StartGame) decodePayload(b []byte) error {
	var ids []uint64
	err := walk(b, func(f *field) error {
		switch f.num {
		case 1:
			ids = f.packed(ids)
		case 2:
			m.StartFrame = f.uint64()
		}
		return nil
	})
	for _, id := range ids {
		m.NetIDs = append(m.NetIDs, uint32(id))
	}
	return err
}

// UpdateWorld 世界更新：UpdateID 为本批记录中最大的修订号，客户端据此确认
type UpdateWorld struct {
	UpdateID uint64
	Keyframe bool
	Updates  []netcode.ServerWorldUpdate
}

func (*UpdateWorld) Type() MessageType { return MsgUpdateWorld }

func (m *UpdateWorld) appendPayload(b []byte) []byte {
	b = appendUint(b, 1, m.UpdateID)
	b = appendBool(b, 2, m.Keyframe)
	for i := range m.Updates {
		b = appendMessage(b, 3, func(b []byte) []byte {
			return appendWorldUpdate(b, &m.Updates[i])
		})
	}
	return b
}

func (m *UpdateWorld) decodePayload(b []byte) error {
	return walk(b, func(f *field) error {
		switch f.num {
		case 1:
			m.UpdateID = f.uint64()
		case 2:
			m.Keyframe = f.bool()
		case 3:
			u, err := decodeWorldUpdate(f.bytes())
			if err != nil {
				return err
			}
			m.Updates = append(m.Updates, u)
		}
		return nil
	})
}

// DiscardWalkActions 通知客户端撤回被丢弃的行走指令
type DiscardWalkActions struct {
	ActionIDs []uint64
}

func (*DiscardWalkActions) Type() MessageType { return MsgDiscardWalkActions }

func (m *DiscardWalkActions) appendPayload(b []byte) []byte {
	return appendPacked(b, 1, m.ActionIDs)
}

func (m *DiscardWalkActions) decodePayload(b []byte) error {
	return walk(b, func(f *field) error {
		if f.num == 1 {
			m.ActionIDs = f.packed(m.ActionIDs)
		}
		return nil
	})
}

// PauseWaitingForPlayers 等待落后的玩家
type PauseWaitingForPlayers struct {
	Epoch   uint64
	Lagging []uint32 // 连接 ID
}

func (*PauseWaitingForPlayers) Type() MessageType { return MsgPauseWaitingForPlayers }

func (m *PauseWaitingForPlayers) appendPayload(b []byte) []byte {
	ids := make([]uint64, len(m.Lagging))
	for i, id := range m.Lagging {
		ids[i] = uint64(id)
	}
	b = appendUint(b, 1, m.Epoch)
	return appendPacked(b, 2, ids)
}

func (m *PauseWaitingForPlayers) decodePayload(b []byte) error {
	var ids []uint64
	err := walk(b, func(f *field) error {
		switch f.num {
		case 1:
			m.Epoch = f.uint64()
		case 2:
			ids = f.packed(ids)
		}
		return nil
	})
	for _, id := range ids {
		m.Lagging = append(m.Lagging, uint32(id))
	}
	return err
}

// UnpauseWaitingForPlayers 结束等待
type UnpauseWaitingForPlayers struct {
	Epoch uint64
}

func (*UnpauseWaitingForPlayers) Type() MessageType { return MsgUnpauseWaitingForPlayers }

func (m *UnpauseWaitingForPlayers) appendPayload(b []byte) []byte {
	return appendUint(b, 1, m.Epoch)
}

func (m *UnpauseWaitingForPlayers) decodePayload(b []byte) error {
	return walk(b, func(f *field) error {
		if f.num == 1 {
			m.Epoch = f.uint64()
		}
		return nil
	})
}

// PlayerNetStatus 一名玩家的网络状况
type PlayerNetStatus struct {
	ConnectionID uint32
	RTTMillis    uint32
	LagFrames    uint32
	State        uint32
}

// ReportPlayersNetStatus 周期性网络状况报告
type ReportPlayersNetStatus struct {
	Epoch uint64
	Stats []PlayerNetStatus
}

func (*ReportPlayersNetStatus) Type() MessageType { return MsgReportPlayersNetStatus }

func (m *ReportPlayersNetStatus) appendPayload(b []byte) []byte {
	b = appendUint(b, 1, m.Epoch)
	for _, s := range m.Stats {
		b = appendMessage(b, 2, func(b []byte) []byte {
			b = appendUint(b, 1, uint64(s.ConnectionID))
			b = appendUint(b, 2, uint64(s.RTTMillis))
			b = appendUint(b, 3, uint64(s.LagFrames))
			return appendUint(b, 4, uint64(s.State))
		})
	}
	return b
}

func (m *ReportPlayersNetStatus) decodePayload(b []byte) error {
	return walk(b, func(f *field) error {
		switch f.num {
		case 1:
			m.Epoch = f.uint64()
		case 2:
			var s PlayerNetStatus
			err := walk(f.bytes(), func(f *field) error {
				switch f.num {
				case 1:
					s.ConnectionID = f.uint32()
				case 2:
					s.RTTMillis = f.uint32()
				case 3:
					s.LagFrames = f.uint32()
				case 4:
					s.State = f.uint32()
				}
				return nil
			})
			if err != nil {
				return err
			}
			m.Stats = append(m.Stats, s)
		}
		return nil
	})
}
