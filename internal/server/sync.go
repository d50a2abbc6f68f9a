package server

import (
	"time"

	"skirmish/pkg/core"
	"skirmish/pkg/netcode"
)

// PeerState 连接的同步状态
type PeerState int

const (
	PeerUninitialized PeerState = iota
	PeerJoining                 // 等待首个全量同步被确认
	PeerActive
	PeerLagging
	PeerCatchingUp
	PeerDisconnected
)

func (s PeerState) String() string {
	switch s {
	case PeerUninitialized:
		return "uninitialized"
	case PeerJoining:
		return "joining"
	case PeerActive:
		return "active"
	case PeerLagging:
		return "lagging"
	case PeerCatchingUp:
		return "catching_up"
	case PeerDisconnected:
		return "disconnected"
	}
	return "unknown"
}

var peerStates = []PeerState{PeerUninitialized, PeerJoining, PeerActive, PeerLagging, PeerCatchingUp, PeerDisconnected}

// lagSmoothing 确认延迟的指数滑动平均系数
const lagSmoothing = 0.1

// thresholds 背压阈值
type thresholds struct {
	heartbeatLag uint64  // 心跳确认超过该 tick 数视为落后
	pauseLag     float64 // 平均确认延迟超过该值视为落后
	resumeLag    float64 // 追赶时平均延迟降到该值以下恢复
}

// peer 房间中的一个玩家槽位；重连后沿用同一槽位
type peer struct {
	conn     netcode.ConnID
	session  Session // 断线时为 nil
	sid      uint32  // 当前会话序号
	tokenID  string
	nickname string
	color    uint32
	netID    core.EntityNetID
	slot     int // 出生点序号
	host     bool
	state    PeerState

	lastRecv     uint64 // 最近收到消息的 tick
	heartbeatAck uint64 // 最近被回显的心跳序号（即发送时的 tick）
	rtt          time.Duration
	lag          float64 // 确认延迟（更新修订数）的滑动平均

	needKeyframe bool
	keyframeSent uint64 // 最近一次发送全量同步的 tick
}

// connected 是否有活动会话
func (p *peer) connected() bool {
	return p.session != nil && p.state != PeerDisconnected
}

// waiting 是否让房间等待（暂停）
func (p *peer) waiting() bool {
	switch p.state {
	case PeerJoining, PeerLagging, PeerCatchingUp:
		return true
	}
	return false
}

// onHeartbeat 处理心跳回显
func (p *peer) onHeartbeat(seq uint64, sentAt time.Time, now time.Time) {
	if seq <= p.heartbeatAck {
		return
	}
	p.heartbeatAck = seq
	if !sentAt.IsZero() && now.After(sentAt) {
		p.rtt = now.Sub(sentAt)
	}
}

// sampleLag 记录一次确认延迟采样
func (p *peer) sampleLag(behind uint64) {
	p.lag += lagSmoothing * (float64(behind) - p.lag)
}

// advance 根据心跳与确认延迟推进状态：
// Active → Lagging → CatchingUp → Active，追赶中再次超限回到 Lagging
func (p *peer) advance(ticks uint64, t thresholds) PeerState {
	stale := ticks > p.heartbeatAck && ticks-p.heartbeatAck > t.heartbeatLag
	behind := stale || p.lag > t.pauseLag
	switch p.state {
	case PeerActive:
		if behind {
			p.state = PeerLagging
		}
	case PeerLagging:
		if !behind {
			p.state = PeerCatchingUp
		}
	case PeerCatchingUp:
		if behind {
			p.state = PeerLagging
		} else if p.lag <= t.resumeLag {
			p.state = PeerActive
		}
	}
	return p.state
}

// joined 首个全量同步被确认
func (p *peer) joined(ticks uint64) {
	p.needKeyframe = false
	p.lag = 0
	p.heartbeatAck = max(p.heartbeatAck, ticks)
	if p.state == PeerJoining {
		p.state = PeerActive
	}
}
