package netcode

import (
	"slices"

	"skirmish/pkg/core"
)

// WalkAction 行走指令，持续生效直到同一实体的下一条指令
type WalkAction struct {
	ID          uint64 // 客户端分配，用于 DiscardWalkActions
	OriginFrame FrameNumber
	Direction   core.Vec2
}

// LookAction 朝向指令
type LookAction struct {
	Direction core.Vec2
}

// CastAction 施法指令
type CastAction struct {
	ID        uint64 // 服务器分配的序号
	ClientID  uint64 // 客户端提交时的序号
	MissileID core.EntityNetID
	Target    core.Vec2
}

// ActionUpdates 某一帧内所有玩家的指令，每类指令每个实体最多一条
type ActionUpdates struct {
	Frame FrameNumber
	Walk  NetUpdates[WalkAction]
	Look  NetUpdates[LookAction]
	Cast  NetUpdates[CastAction]
}

// NewActionUpdates 空指令帧
func NewActionUpdates(frame FrameNumber) ActionUpdates {
	return ActionUpdates{Frame: frame}
}

// Merge 合并同一帧的指令
func (a *ActionUpdates) Merge(o *ActionUpdates) {
	a.Walk.Merge(o.Walk)
	a.Look.Merge(o.Look)
	a.Cast.Merge(o.Cast)
}

// IsEmpty 是否没有任何指令
func (a *ActionUpdates) IsEmpty() bool {
	return a.Walk.Len() == 0 && a.Look.Len() == 0 && a.Cast.Len() == 0
}

// Clone 深拷贝
func (a *ActionUpdates) Clone() ActionUpdates {
	return ActionUpdates{Frame: a.Frame, Walk: a.Walk.Clone(), Look: a.Look.Clone(), Cast: a.Cast.Clone()}
}

// Apply 把指令作用到世界上：朝向 → 行走 → 施法
func (a *ActionUpdates) Apply(w *core.World) {
	for id, look := range a.Look.All() {
		w.SetLook(id, look.Direction)
	}
	for id, walk := range a.Walk.All() {
		w.SetWalk(id, walk.Direction)
	}
	for id, cast := range a.Cast.All() {
		w.Cast(id, cast.MissileID, cast.Target)
	}
}

func (a *ActionUpdates) equal(o *ActionUpdates) bool {
	return equalNetUpdates(&a.Walk, &o.Walk) && equalNetUpdates(&a.Look, &o.Look) && equalNetUpdates(&a.Cast, &o.Cast)
}

// PlayerSpawn 玩家出生
type PlayerSpawn struct {
	Position core.Vec2
}

// MonsterSpawn 怪物出生
type MonsterSpawn struct {
	Kind     core.MonsterKind
	Position core.Vec2
}

// SpawnActions 服务器在某一帧生成或移除的实体
type SpawnActions struct {
	Frame    FrameNumber
	Players  NetUpdates[PlayerSpawn]
	Monsters NetUpdates[MonsterSpawn]
	Despawns []core.EntityNetID // 升序、去重
}

// NewSpawnActions 空生成帧
func NewSpawnActions(frame FrameNumber) SpawnActions {
	return SpawnActions{Frame: frame}
}

// Despawn 记录移除
func (s *SpawnActions) Despawn(id core.EntityNetID) {
	s.Despawns = insertSorted(s.Despawns, id)
}

// Merge 合并同一帧的生成
func (s *SpawnActions) Merge(o *SpawnActions) {
	s.Players.Merge(o.Players)
	s.Monsters.Merge(o.Monsters)
	for _, id := range o.Despawns {
		s.Despawns = insertSorted(s.Despawns, id)
	}
}

// IsEmpty 是否为空
func (s *SpawnActions) IsEmpty() bool {
	return s.Players.Len() == 0 && s.Monsters.Len() == 0 && len(s.Despawns) == 0
}

// Clone 深拷贝
func (s *SpawnActions) Clone() SpawnActions {
	return SpawnActions{
		Frame:    s.Frame,
		Players:  s.Players.Clone(),
		Monsters: s.Monsters.Clone(),
		Despawns: slices.Clone(s.Despawns),
	}
}

// ApplySpawns 生成本帧的新实体；已存在的实体不受影响
func (s *SpawnActions) ApplySpawns(w *core.World) {
	for id, sp := range s.Players.All() {
		if _, ok := w.Player(id); !ok {
			w.SpawnPlayer(core.NewPlayer(id, sp.Position))
		}
	}
	for id, sp := range s.Monsters.All() {
		if _, ok := w.Monster(id); !ok {
			w.SpawnMonster(core.NewMonster(id, sp.Kind, sp.Position))
		}
	}
}

// ApplyDespawns 移除本帧标记的实体
func (s *SpawnActions) ApplyDespawns(w *core.World) {
	for _, id := range s.Despawns {
		w.Despawn(id)
	}
}

func (s *SpawnActions) equal(o *SpawnActions) bool {
	return equalNetUpdates(&s.Players, &o.Players) && equalNetUpdates(&s.Monsters, &o.Monsters) && slices.Equal(s.Despawns, o.Despawns)
}

// MonsterState 怪物的网络状态；追逐目标以网络 ID 表示，各端本地引用不同
type MonsterState struct {
	Kind     core.MonsterKind
	Position core.Vec2
	Velocity core.Vec2
	Health   int32
	Dead     bool
	Target   core.EntityNetID
}

// MonsterStateOf 从世界中的怪物导出网络状态
func MonsterStateOf(w *core.World, m *core.Monster) MonsterState {
	s := MonsterState{
		Kind:     m.Kind,
		Position: m.Position,
		Velocity: m.Velocity,
		Health:   m.Health,
		Dead:     m.Dead,
	}
	if p, ok := w.Players.Get(m.Target); ok {
		s.Target = p.NetID
	}
	return s
}

// Monster 在世界 w 中还原怪物
func (s MonsterState) Monster(w *core.World, id core.EntityNetID) core.Monster {
	m := core.Monster{
		NetID:    id,
		Kind:     s.Kind,
		Position: s.Position,
		Velocity: s.Velocity,
		Health:   s.Health,
		Dead:     s.Dead,
	}
	if s.Target != 0 {
		if kind, ref, ok := w.Lookup(s.Target); ok && kind == core.KindPlayer {
			m.Target = ref
		}
	}
	return m
}

// ServerWorldUpdate 服务器某一帧的权威更新：
// 帧末实体状态、转发的指令、生成与移除。Revision 为最后一次修改该记录时的服务器修订号。
type ServerWorldUpdate struct {
	Frame    FrameNumber
	Revision FrameNumber

	Players  NetUpdates[core.Player]
	Monsters NetUpdates[MonsterState]
	Missiles NetUpdates[core.Missile]
	Removed  []core.EntityNetID // 升序、去重

	Actions ActionUpdates
	Spawns  SpawnActions
}

// NewServerWorldUpdate 空的权威更新
func NewServerWorldUpdate(frame FrameNumber) ServerWorldUpdate {
	return ServerWorldUpdate{
		Frame:   frame,
		Actions: NewActionUpdates(frame),
		Spawns:  NewSpawnActions(frame),
	}
}

// Merge 合并同一帧的另一份更新，按实体后写覆盖；重复合并结果不变
func (u *ServerWorldUpdate) Merge(o *ServerWorldUpdate) {
	if o.Revision > u.Revision {
		u.Revision = o.Revision
	}
	u.Players.Merge(o.Players)
	u.Monsters.Merge(o.Monsters)
	u.Missiles.Merge(o.Missiles)
	for _, id := range o.Removed {
		u.Removed = insertSorted(u.Removed, id)
	}
	u.Actions.Merge(&o.Actions)
	u.Spawns.Merge(&o.Spawns)
}

// HasStates 是否带有实体状态
func (u *ServerWorldUpdate) HasStates() bool {
	return u.Players.Len() > 0 || u.Monsters.Len() > 0 || u.Missiles.Len() > 0 || len(u.Removed) > 0
}

// IsEmpty 是否没有任何内容
func (u *ServerWorldUpdate) IsEmpty() bool {
	return !u.HasStates() && u.Actions.IsEmpty() && u.Spawns.IsEmpty()
}

// Clone 深拷贝
func (u *ServerWorldUpdate) Clone() ServerWorldUpdate {
	return ServerWorldUpdate{
		Frame:    u.Frame,
		Revision: u.Revision,
		Players:  u.Players.Clone(),
		Monsters: u.Monsters.Clone(),
		Missiles: u.Missiles.Clone(),
		Removed:  slices.Clone(u.Removed),
		Actions:  u.Actions.Clone(),
		Spawns:   u.Spawns.Clone(),
	}
}

// Override 用权威状态覆盖本地模拟结果
func (u *ServerWorldUpdate) Override(w *core.World) {
	for id, p := range u.Players.All() {
		p.NetID = id
		w.SpawnPlayer(p)
	}
	for id, m := range u.Monsters.All() {
		w.SpawnMonster(m.Monster(w, id))
	}
	for id, m := range u.Missiles.All() {
		m.NetID = id
		w.SpawnMissile(m)
	}
	for _, id := range u.Removed {
		w.Despawn(id)
	}
}

// SameContent 除 Revision 以外内容是否相同
func (u *ServerWorldUpdate) SameContent(o *ServerWorldUpdate) bool {
	return u.Frame == o.Frame &&
		equalNetUpdates(&u.Players, &o.Players) &&
		equalNetUpdates(&u.Monsters, &o.Monsters) &&
		equalNetUpdates(&u.Missiles, &o.Missiles) &&
		slices.Equal(u.Removed, o.Removed) &&
		u.Actions.equal(&o.Actions) &&
		u.Spawns.equal(&o.Spawns)
}

func insertSorted(ids []core.EntityNetID, id core.EntityNetID) []core.EntityNetID {
	i, found := slices.BinarySearch(ids, id)
	if found {
		return ids
	}
	return slices.Insert(ids, i, id)
}
