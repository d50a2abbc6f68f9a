package client

import (
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"skirmish/internal/config"
	"skirmish/internal/logging"
	"skirmish/pkg/core"
	"skirmish/pkg/netcode"
	"skirmish/pkg/protocol"
)

// ErrResync 本地历史已无法容纳服务器的修正，只能重新同步
var ErrResync = errors.New("需要重新同步")

// GameConfig 客户端同步参数
type GameConfig struct {
	Capacity              int
	LagCompensationFrames netcode.FrameNumber
	InterpolationDelay    netcode.FrameNumber
	Rules                 core.Rules
}

// GameConfigFrom 从共享配置中取出客户端需要的部分
func GameConfigFrom(n config.NetConfig) GameConfig {
	return GameConfig{
		Capacity:              n.LedgerCapacity,
		LagCompensationFrames: netcode.FrameNumber(n.LagCompensationFrames),
		InterpolationDelay:    netcode.FrameNumber(n.InterpolationDelay),
	}
}

// pendingWalk 已发送、尚未被服务器转发或撤回的行走指令
type pendingWalk struct {
	action netcode.WalkAction
	frame  netcode.FrameNumber // 本地预测写入的帧
}

// Game 客户端对局：预测模式的重算循环加上本地指令的发送与撤回。
// 只在界面更新的 goroutine 中使用。
type Game struct {
	cfg    GameConfig
	logger *zap.Logger
	self   core.EntityNetID

	clock *netcode.FrameClock
	sim   *netcode.Simulation
	base  netcode.FrameNumber // 全量同步的基准帧

	nextWalkID uint64
	nextCastID uint64
	walks      []pendingWalk
	casts      []protocol.CastUpdate
	looks      []protocol.LookUpdate
	lastWalk   core.Vec2
	lastLook   core.Vec2
	reissue    bool // 行走指令被丢弃后重新发出当前方向
}

// NewGame 创建对局，收到全量同步之前不会模拟
func NewGame(cfg GameConfig, self core.EntityNetID, logger *zap.Logger) *Game {
	if cfg.InterpolationDelay == 0 {
		cfg.InterpolationDelay = 10
	}
	return &Game{
		cfg:    cfg,
		logger: logging.Or(logger).Named("game"),
		self:   self,
	}
}

// Synced 是否已收到全量同步
func (g *Game) Synced() bool {
	return g.sim != nil
}

// Self 本地玩家的网络 ID
func (g *Game) Self() core.EntityNetID {
	return g.self
}

// Frame 当前帧
func (g *Game) Frame() netcode.FrameNumber {
	if g.clock == nil {
		return 0
	}
	return g.clock.Frame()
}

// World 当前帧末的预测世界
func (g *Game) World() *core.World {
	if g.sim == nil {
		return nil
	}
	return g.sim.Live()
}

// Simulation 重算循环
func (g *Game) Simulation() *netcode.Simulation {
	return g.sim
}

// ApplyKeyframe 用全量状态重建本地模拟；其余记录是基准帧之后的更新
func (g *Game) ApplyKeyframe(m *protocol.UpdateWorld) error {
	if len(m.Updates) == 0 {
		return errors.New("全量同步为空")
	}
	kf := &m.Updates[0]
	g.base = kf.Frame
	g.sim = netcode.NewSimulation(netcode.Config{
		Capacity:              g.cfg.Capacity,
		LagCompensationFrames: g.cfg.LagCompensationFrames,
		Mode:                  netcode.ModePredicting,
		Rules:                 g.cfg.Rules,
		Logger:                g.logger,
	}, kf.Frame, netcode.WorldFromKeyframe(kf))
	g.clock = netcode.NewFrameClock(kf.Frame)

	// 重新同步后旧的未确认指令已无从对账
	g.walks, g.casts, g.looks = nil, nil, nil
	g.lastWalk, g.lastLook = core.Vec2{}, core.Vec2{}

	g.logger.Info("全量同步",
		zap.Stringer("frame", kf.Frame),
		zap.Uint64("update", m.UpdateID),
		zap.Int("players", kf.Players.Len()),
		zap.Int("monsters", kf.Monsters.Len()))
	return g.apply(m.Updates[1:])
}

// ApplyUpdates 合并增量更新，并据此撤回本地已被服务器挪动的预测指令
func (g *Game) ApplyUpdates(m *protocol.UpdateWorld) error {
	if g.sim == nil {
		return nil
	}
	return g.apply(m.Updates)
}

func (g *Game) apply(updates []netcode.ServerWorldUpdate) error {
	for i := range updates {
		u := &updates[i]
		if u.Frame <= g.base {
			// 基准帧及之前的修正已经体现在全量状态里
			continue
		}
		if err := g.sim.ApplyServerUpdate(u); err != nil {
			if errors.Is(err, netcode.ErrFrameTooOld) {
				return fmt.Errorf("%w: %v", ErrResync, err)
			}
			return err
		}
		g.confirm(u)
	}
	return nil
}

// confirm 转发回来的本地指令视为已送达
func (g *Game) confirm(u *netcode.ServerWorldUpdate) {
	if walk, ok := u.Actions.Walk.Get(g.self); ok {
		if i := slices.IndexFunc(g.walks, func(p pendingWalk) bool { return p.action.ID == walk.ID }); i >= 0 {
			if placed := g.walks[i].frame; placed != u.Frame {
				g.retract(placed, walk.ID)
			}
			g.walks = slices.Delete(g.walks, i, i+1)
		}
	}
	if cast, ok := u.Actions.Cast.Get(g.self); ok {
		g.casts = slices.DeleteFunc(g.casts, func(c protocol.CastUpdate) bool { return c.ClientID == cast.ClientID })
	}
	if _, ok := u.Actions.Look.Get(g.self); ok {
		g.looks = slices.DeleteFunc(g.looks, func(l protocol.LookUpdate) bool { return netcode.FrameNumber(l.Frame) == u.Frame })
	}
}

// retract 从本地账本撤掉某条预测行走指令（仅当该帧仍是这条指令）
func (g *Game) retract(frame netcode.FrameNumber, id uint64) {
	slot, ok := g.sim.Actions().Get(frame)
	if !ok {
		return
	}
	if walk, ok := slot.Walk.Get(g.self); !ok || walk.ID != id {
		return
	}
	slot, _, err := g.sim.Actions().UpdateFrame(frame, false)
	if err != nil {
		g.logger.Debug("撤回预测指令失败", zap.Uint64("action", id), zap.Error(err))
		return
	}
	slot.Walk.Remove(g.self)
}

// Discard 服务器丢弃了这些行走指令
func (g *Game) Discard(ids []uint64) {
	for _, id := range ids {
		i := slices.IndexFunc(g.walks, func(p pendingWalk) bool { return p.action.ID == id })
		if i < 0 {
			continue
		}
		if g.sim != nil {
			g.retract(g.walks[i].frame, id)
		}
		g.logger.Debug("行走指令被服务器丢弃", zap.Uint64("action", id), zap.Stringer("frame", g.walks[i].frame))
		g.walks = slices.Delete(g.walks, i, i+1)
		g.reissue = true
	}
}

// Advance 推进一帧；暂停时帧号不变，也不预留新帧
func (g *Game) Advance(paused bool) (netcode.FrameNumber, bool) {
	if g.sim == nil {
		return 0, false
	}
	now, advanced := g.clock.Tick(paused)
	if advanced {
		g.sim.Reserve(now)
	}
	return now, advanced
}

// CatchUp 服务器已模拟到更晚的帧时直接跳过去
func (g *Game) CatchUp(frame netcode.FrameNumber) bool {
	if g.sim == nil || !g.clock.SyncTo(frame) {
		return false
	}
	g.sim.Reserve(frame)
	return true
}

// Input 把本帧输入写成生效帧为 current+D 的指令，本地立即预测
func (g *Game) Input(in Input) {
	if g.sim == nil {
		return
	}
	p, ok := g.sim.Live().Player(g.self)
	if !ok || p.Dead {
		return
	}
	frame := g.clock.Frame() + g.cfg.InterpolationDelay
	g.sim.Reserve(frame)

	if walk := in.Walk.Normalize(); walk != g.lastWalk || g.reissue {
		g.lastWalk = walk
		g.reissue = false
		g.nextWalkID++
		action := netcode.WalkAction{ID: g.nextWalkID, OriginFrame: frame, Direction: walk}
		if slot, _, err := g.sim.Actions().UpdateFrame(frame, false); err == nil {
			slot.Walk.Put(g.self, action)
		}
		g.walks = append(g.walks, pendingWalk{action: action, frame: frame})
	}

	if in.HasAim {
		if look := in.Aim.Sub(p.Position).Normalize(); !look.IsZero() && look != g.lastLook {
			g.lastLook = look
			if slot, _, err := g.sim.Actions().UpdateFrame(frame, false); err == nil {
				slot.Look.Put(g.self, netcode.LookAction{Direction: look})
			}
			g.looks = slices.DeleteFunc(g.looks, func(l protocol.LookUpdate) bool { return l.Frame == uint64(frame) })
			g.looks = append(g.looks, protocol.LookUpdate{Frame: uint64(frame), Direction: look})
		}
	}

	// 投射物 ID 由服务器分配，施法不做本地预测；同一时间只有一条待确认的施法
	if in.Cast && in.HasAim && p.CastCooldown == 0 && len(g.casts) == 0 {
		g.nextCastID++
		g.casts = append(g.casts, protocol.CastUpdate{ClientID: g.nextCastID, Frame: uint64(frame), Target: in.Aim})
	}
}

// Step 重算到当前帧
func (g *Game) Step() (netcode.StepReport, error) {
	if g.sim == nil {
		return netcode.StepReport{}, nil
	}
	report, err := g.sim.Step(g.clock.Frame())
	if err != nil {
		if errors.Is(err, netcode.ErrFrameTooOld) {
			return report, fmt.Errorf("%w: %v", ErrResync, err)
		}
		return report, err
	}
	g.expire()
	return report, nil
}

// expire 超过两倍补偿窗口仍未确认的指令服务器不会再接受
func (g *Game) expire() {
	now := g.clock.Frame()
	horizon := 2 * g.sim.LagCompensationFrames()
	stale := func(frame netcode.FrameNumber) bool { return frame+horizon < now }
	g.walks = slices.DeleteFunc(g.walks, func(p pendingWalk) bool { return stale(p.frame) })
	g.casts = slices.DeleteFunc(g.casts, func(c protocol.CastUpdate) bool { return stale(netcode.FrameNumber(c.Frame)) })
	g.looks = slices.DeleteFunc(g.looks, func(l protocol.LookUpdate) bool { return stale(netcode.FrameNumber(l.Frame)) })
}

// Outbound 本帧要发送的指令：未确认的指令每帧重发，服务器按 ID 去重
func (g *Game) Outbound() []protocol.Message {
	if g.sim == nil {
		return nil
	}
	now := uint64(g.clock.Frame())
	var out []protocol.Message
	if len(g.walks) > 0 {
		m := &protocol.WalkActions{Frame: now}
		for _, p := range g.walks {
			m.Updates = append(m.Updates, protocol.WalkUpdate{
				ID:        p.action.ID,
				Frame:     uint64(p.action.OriginFrame),
				Direction: p.action.Direction,
			})
		}
		out = append(out, m)
	}
	if len(g.casts) > 0 {
		out = append(out, &protocol.CastActions{Frame: now, Updates: slices.Clone(g.casts)})
	}
	if len(g.looks) > 0 {
		out = append(out, &protocol.LookActions{Updates: slices.Clone(g.looks)})
	}
	return out
}

// PendingWalks 尚未确认的行走指令 ID
func (g *Game) PendingWalks() []uint64 {
	ids := make([]uint64, len(g.walks))
	for i, p := range g.walks {
		ids[i] = p.action.ID
	}
	return ids
}
