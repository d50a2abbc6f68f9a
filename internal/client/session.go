package client

import (
	"slices"

	"skirmish/pkg/protocol"
)

// Session 一次加入房间后的协议状态：身份、暂停纪元、确认进度
type Session struct {
	ConnectionID uint32
	NetID        uint32
	SessionID    uint32
	IsHost       bool
	Token        string

	Roster []protocol.RosterEntry

	// 暂停纪元只增不减，跨重连保留
	epoch   uint64
	paused  bool
	lagging []uint32

	highest uint64 // 已应用的最大 UpdateID
	acked   uint64 // 最近一次发出的确认

	statsEpoch uint64
	stats      []protocol.PlayerNetStatus

	reason string
}

// OnHandshake 加入或重连成功；确认进度随新会话清零
func (s *Session) OnHandshake(m *protocol.Handshake) {
	s.ConnectionID = m.ConnectionID
	s.NetID = m.NetID
	s.SessionID = m.SessionID
	s.IsHost = m.IsHost
	if m.Token != "" {
		s.Token = m.Token
	}
	s.highest = 0
	s.acked = 0
	s.reason = ""
}

// OnRoster 更新房间玩家列表，顺带同步房主身份
func (s *Session) OnRoster(m *protocol.UpdateRoomPlayers) {
	s.Roster = m.Roster
	for _, e := range m.Roster {
		if e.ConnectionID == s.ConnectionID {
			s.IsHost = e.IsHost
		}
	}
}

// OnPause 只接受更新的纪元，重复或乱序的暂停不生效
func (s *Session) OnPause(m *protocol.PauseWaitingForPlayers) bool {
	if m.Epoch <= s.epoch {
		return false
	}
	s.epoch = m.Epoch
	s.paused = true
	s.lagging = slices.Clone(m.Lagging)
	return true
}

// OnUnpause 旧纪元的恢复被忽略；同一纪元只恢复一次
func (s *Session) OnUnpause(m *protocol.UnpauseWaitingForPlayers) bool {
	if m.Epoch < s.epoch || (m.Epoch == s.epoch && !s.paused) {
		return false
	}
	s.epoch = m.Epoch
	s.paused = false
	s.lagging = nil
	return true
}

// Paused 服务器是否在等待玩家
func (s *Session) Paused() bool {
	return s.paused
}

// Epoch 最近一次生效的暂停纪元
func (s *Session) Epoch() uint64 {
	return s.epoch
}

// Lagging 导致暂停的连接
func (s *Session) Lagging() []uint32 {
	return s.lagging
}

// OnApplied 记录已应用的更新 ID
func (s *Session) OnApplied(id uint64) {
	if id > s.highest {
		s.highest = id
	}
}

// Highest 已应用的最大 UpdateID
func (s *Session) Highest() uint64 {
	return s.highest
}

// Ack 需要发送的确认；force 为真时即使没有新进度也重发
func (s *Session) Ack(force bool) (*protocol.AcknowledgeWorldUpdate, bool) {
	if s.highest == 0 || (!force && s.highest == s.acked) {
		return nil, false
	}
	s.acked = s.highest
	return &protocol.AcknowledgeWorldUpdate{Frame: s.highest}, true
}

// OnNetStatus 网络状况报告，旧纪元的报告被忽略
func (s *Session) OnNetStatus(m *protocol.ReportPlayersNetStatus) {
	if m.Epoch < s.statsEpoch {
		return
	}
	s.statsEpoch = m.Epoch
	s.stats = m.Stats
}

// NetStatus 最近一次网络状况
func (s *Session) NetStatus() []protocol.PlayerNetStatus {
	return s.stats
}

// OnDisconnect 记录断线原因
func (s *Session) OnDisconnect(reason string) {
	if reason != "" {
		s.reason = reason
	}
}

// Reason 断线原因
func (s *Session) Reason() string {
	return s.reason
}
