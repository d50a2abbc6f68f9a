package netcode

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"skirmish/pkg/core"
)

// Mode 重算循环的角色
type Mode int

const (
	// ModeAuthoritative 服务器：本地模拟结果即权威
	ModeAuthoritative Mode = iota
	// ModePredicting 客户端：本地预测，收到服务器状态后覆盖
	ModePredicting
)

func (m Mode) String() string {
	if m == ModePredicting {
		return "predicting"
	}
	return "authoritative"
}

// Config 重算循环配置
type Config struct {
	Capacity              int
	LagCompensationFrames FrameNumber
	Mode                  Mode
	Rules                 core.Rules
	Logger                *zap.Logger
}

func (c *Config) withDefaults() {
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
	if c.LagCompensationFrames == 0 {
		c.LagCompensationFrames = DefaultLagCompensationFrames
	}
	if c.Rules == nil {
		c.Rules = core.DefaultRules{}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// StepReport 一次重算的结果
type StepReport struct {
	From     FrameNumber
	To       FrameNumber
	Replayed int
	Revised  []FrameNumber // 重算后状态与上次保存不同的已模拟帧
	Removed  []core.EntityNetID
}

// Simulation 回滚重算循环。
// 拥有指令、生成、服务器更新三本账本和快照环，只能在一个 goroutine 中使用。
type Simulation struct {
	cfg Config

	actions *FramedUpdates[ActionUpdates]
	spawns  *FramedUpdates[SpawnActions]
	server  *FramedUpdates[ServerWorldUpdate]
	states  *WorldStates

	live    *core.World
	current FrameNumber
}

// NewSimulation 以 initial 作为 start 帧的帧末状态创建重算循环
func NewSimulation(cfg Config, start FrameNumber, initial *core.World) *Simulation {
	cfg.withDefaults()
	// 客户端接受保留窗口内任意帧的权威修正，只有服务器限制延迟补偿窗口
	lag := cfg.LagCompensationFrames
	if cfg.Mode == ModePredicting {
		lag = 0
	}
	s := &Simulation{
		cfg:     cfg,
		actions: NewFramedUpdates(cfg.Capacity, lag, NewActionUpdates),
		spawns:  NewFramedUpdates(cfg.Capacity, lag, NewSpawnActions),
		server:  NewFramedUpdates(cfg.Capacity, lag, NewServerWorldUpdate),
		states:  NewWorldStates(cfg.Capacity, start),
		current: start,
	}
	if initial == nil {
		initial = core.NewWorld()
	}
	s.Reserve(start)
	if err := s.states.Save(start, initial); err != nil {
		invariant("save initial snapshot: %v", err)
	}
	s.settle(start)
	s.live = initial.Clone()
	return s
}

// Reserve 同步扩展账本与快照到 frame
func (s *Simulation) Reserve(frame FrameNumber) {
	s.actions.Reserve(frame)
	s.spawns.Reserve(frame)
	s.server.Reserve(frame)
	for s.states.Len() == 0 || s.states.Latest() < frame {
		s.states.AddSnapshot()
	}
	if s.actions.Oldest() != s.states.Oldest() || s.spawns.Oldest() != s.states.Oldest() || s.server.Oldest() != s.states.Oldest() {
		invariant("ledger oldest %d/%d/%d, snapshot oldest %d",
			s.actions.Oldest(), s.spawns.Oldest(), s.server.Oldest(), s.states.Oldest())
	}
}

// Watermark 三本账本中最早需要重算的帧
func (s *Simulation) Watermark() FrameNumber {
	return min(s.actions.OldestUpdatedFrame(), s.spawns.OldestUpdatedFrame(), s.server.OldestUpdatedFrame())
}

func (s *Simulation) settle(frame FrameNumber) {
	s.actions.Settle(frame)
	s.spawns.Settle(frame)
	s.server.Settle(frame)
}

// Step 重算到 current：回退到 watermark 前一帧的快照，逐帧回放并保存，最后结算
func (s *Simulation) Step(current FrameNumber) (StepReport, error) {
	s.Reserve(current)

	from := s.Watermark()
	report := StepReport{From: from, To: current}
	if from > current {
		return report, nil
	}
	if err := s.states.CheckReplayable(from); err != nil {
		return report, errors.Wrapf(err, "rewind for frame %d", current)
	}

	world, err := s.states.Load(from - 1)
	if err != nil {
		return report, err
	}
	for frame := from; frame <= current; frame++ {
		removed := s.simulate(frame, world)
		if frame > s.current {
			report.Removed = append(report.Removed, removed...)
		} else if prev, ok := s.states.Get(frame); ok && !prev.Equal(world) {
			report.Revised = append(report.Revised, frame)
		}
		if err := s.states.Save(frame, world); err != nil {
			invariant("save frame %d: %v", frame, err)
		}
		report.Replayed++
	}

	s.live = world
	if current > s.current {
		s.current = current
	}
	s.settle(current)

	if len(report.Revised) > 0 {
		s.cfg.Logger.Debug("回滚重算",
			zap.Stringer("from", from),
			zap.Stringer("to", current),
			zap.Int("revised", len(report.Revised)))
	}
	return report, nil
}

// simulate 单帧流水线：生成 → 指令 → 规则 → 服务器覆盖（仅客户端）→ 移除
func (s *Simulation) simulate(frame FrameNumber, w *core.World) []core.EntityNetID {
	spawns, _ := s.spawns.Get(frame)
	if spawns != nil {
		spawns.ApplySpawns(w)
	}
	if actions, ok := s.actions.Get(frame); ok {
		actions.Apply(w)
	}
	removed := core.Step(w, s.cfg.Rules)
	if s.cfg.Mode == ModePredicting {
		if update, ok := s.server.Get(frame); ok {
			update.Override(w)
		}
	}
	if spawns != nil {
		spawns.ApplyDespawns(w)
	}
	return removed
}

// Current 最近一次模拟到的帧
func (s *Simulation) Current() FrameNumber {
	return s.current
}

// Live 当前帧末的世界状态（只读）
func (s *Simulation) Live() *core.World {
	return s.live
}

// Snapshot 某一帧的帧末状态（只读）
func (s *Simulation) Snapshot(frame FrameNumber) (*core.World, bool) {
	return s.states.Get(frame)
}

// Actions 指令账本
func (s *Simulation) Actions() *FramedUpdates[ActionUpdates] {
	return s.actions
}

// Spawns 生成账本
func (s *Simulation) Spawns() *FramedUpdates[SpawnActions] {
	return s.spawns
}

// ServerUpdates 收到的服务器更新账本（客户端）
func (s *Simulation) ServerUpdates() *FramedUpdates[ServerWorldUpdate] {
	return s.server
}

// States 快照环
func (s *Simulation) States() *WorldStates {
	return s.states
}

// Mode 重算角色
func (s *Simulation) Mode() Mode {
	return s.cfg.Mode
}

// Logger 日志
func (s *Simulation) Logger() *zap.Logger {
	return s.cfg.Logger
}

// LagCompensationFrames 延迟补偿窗口
func (s *Simulation) LagCompensationFrames() FrameNumber {
	return s.cfg.LagCompensationFrames
}

// ApplyServerUpdate 合并服务器发来的某一帧更新（客户端）。
// 转发的指令与生成写入各自的账本，实体状态写入服务器账本；都会降低 watermark。
// 修订号更新的记录整体替换旧记录，修订号更旧的记录被忽略。
func (s *Simulation) ApplyServerUpdate(u *ServerWorldUpdate) error {
	if u.Frame > s.server.Latest() {
		s.Reserve(u.Frame)
	}
	if stored, ok := s.server.Get(u.Frame); ok && u.Revision < stored.Revision {
		return nil
	}
	record, _, err := s.server.UpdateFrame(u.Frame, false)
	if err != nil {
		return errors.Wrapf(err, "server update for frame %d", u.Frame)
	}
	if u.Revision > record.Revision {
		*record = u.Clone()
	} else {
		record.Merge(u)
	}

	if !u.Actions.IsEmpty() {
		actions, _, err := s.actions.UpdateFrame(u.Frame, false)
		if err != nil {
			return errors.Wrapf(err, "relayed actions for frame %d", u.Frame)
		}
		actions.Merge(&u.Actions)
	}
	if !u.Spawns.IsEmpty() {
		spawns, _, err := s.spawns.UpdateFrame(u.Frame, false)
		if err != nil {
			return errors.Wrapf(err, "spawns for frame %d", u.Frame)
		}
		spawns.Merge(&u.Spawns)
	}
	return nil
}
