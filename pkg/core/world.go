package core

import "maps"

// entityLoc 网络 ID 在实体表中的位置
type entityLoc struct {
	kind EntityKind
	ref  EntityRef
}

// World 一帧的完整仿真状态（纯逻辑，按值复制即可作为快照）
type World struct {
	Players  Arena[Player]
	Monsters Arena[Monster]
	Missiles Arena[Missile]

	// 网络 ID -> 实体表位置，加载快照后重建
	index map[EntityNetID]entityLoc
}

// NewWorld 创建空世界
func NewWorld() *World {
	return &World{index: make(map[EntityNetID]entityLoc)}
}

// Clone 深拷贝世界
func (w *World) Clone() *World {
	c := &World{
		Players:  w.Players.Clone(),
		Monsters: w.Monsters.Clone(),
		Missiles: w.Missiles.Clone(),
	}
	if w.index != nil {
		c.index = maps.Clone(w.index)
	} else {
		c.RebuildIndex()
	}
	return c
}

// RebuildIndex 根据实体表重建网络 ID 索引
func (w *World) RebuildIndex() {
	w.index = make(map[EntityNetID]entityLoc, w.Players.Len()+w.Monsters.Len()+w.Missiles.Len())
	for ref, p := range w.Players.All() {
		w.index[p.NetID] = entityLoc{kind: KindPlayer, ref: ref}
	}
	for ref, m := range w.Monsters.All() {
		w.index[m.NetID] = entityLoc{kind: KindMonster, ref: ref}
	}
	for ref, m := range w.Missiles.All() {
		w.index[m.NetID] = entityLoc{kind: KindMissile, ref: ref}
	}
}

// Equal 比较两个世界的仿真状态
func (w *World) Equal(o *World) bool {
	return w.Players.Equal(&o.Players) && w.Monsters.Equal(&o.Monsters) && w.Missiles.Equal(&o.Missiles)
}

// Lookup 查找网络 ID 对应的实体类别与引用
func (w *World) Lookup(id EntityNetID) (EntityKind, EntityRef, bool) {
	loc, ok := w.index[id]
	if !ok {
		return KindUnknown, EntityRef{}, false
	}
	return loc.kind, loc.ref, true
}

func (w *World) ensureIndex() {
	if w.index == nil {
		w.RebuildIndex()
	}
}

// SpawnPlayer 生成玩家；同一网络 ID 已存在时覆盖其状态
func (w *World) SpawnPlayer(p Player) EntityRef {
	w.ensureIndex()
	if existing, ok := w.Player(p.NetID); ok {
		*existing = p
		return w.index[p.NetID].ref
	}
	w.Despawn(p.NetID)
	ref := w.Players.Insert(p)
	w.index[p.NetID] = entityLoc{kind: KindPlayer, ref: ref}
	return ref
}

// SpawnMonster 生成怪物；同一网络 ID 已存在时覆盖其状态
func (w *World) SpawnMonster(m Monster) EntityRef {
	w.ensureIndex()
	if existing, ok := w.Monster(m.NetID); ok {
		*existing = m
		return w.index[m.NetID].ref
	}
	w.Despawn(m.NetID)
	ref := w.Monsters.Insert(m)
	w.index[m.NetID] = entityLoc{kind: KindMonster, ref: ref}
	return ref
}

// SpawnMissile 生成投射物；同一网络 ID 已存在时覆盖其状态
func (w *World) SpawnMissile(m Missile) EntityRef {
	w.ensureIndex()
	if existing, ok := w.Missile(m.NetID); ok {
		*existing = m
		return w.index[m.NetID].ref
	}
	w.Despawn(m.NetID)
	ref := w.Missiles.Insert(m)
	w.index[m.NetID] = entityLoc{kind: KindMissile, ref: ref}
	return ref
}

// Despawn 删除任意类别的实体
func (w *World) Despawn(id EntityNetID) bool {
	w.ensureIndex()
	loc, ok := w.index[id]
	if !ok {
		return false
	}
	delete(w.index, id)
	switch loc.kind {
	case KindPlayer:
		return w.Players.Remove(loc.ref)
	case KindMonster:
		return w.Monsters.Remove(loc.ref)
	case KindMissile:
		return w.Missiles.Remove(loc.ref)
	}
	return false
}

// Player 按网络 ID 查找玩家
func (w *World) Player(id EntityNetID) (*Player, bool) {
	w.ensureIndex()
	loc, ok := w.index[id]
	if !ok || loc.kind != KindPlayer {
		return nil, false
	}
	return w.Players.Get(loc.ref)
}

// Monster 按网络 ID 查找怪物
func (w *World) Monster(id EntityNetID) (*Monster, bool) {
	w.ensureIndex()
	loc, ok := w.index[id]
	if !ok || loc.kind != KindMonster {
		return nil, false
	}
	return w.Monsters.Get(loc.ref)
}

// Missile 按网络 ID 查找投射物
func (w *World) Missile(id EntityNetID) (*Missile, bool) {
	w.ensureIndex()
	loc, ok := w.index[id]
	if !ok || loc.kind != KindMissile {
		return nil, false
	}
	return w.Missiles.Get(loc.ref)
}

// SetWalk 设置玩家行走方向（持续生效直到下一次设置）
func (w *World) SetWalk(id EntityNetID, dir Vec2) bool {
	p, ok := w.Player(id)
	if !ok || p.Dead {
		return false
	}
	p.WalkDirection = dir.Normalize()
	return true
}

// SetLook 设置玩家朝向
func (w *World) SetLook(id EntityNetID, dir Vec2) bool {
	p, ok := w.Player(id)
	if !ok || p.Dead {
		return false
	}
	if !dir.IsZero() {
		p.LookDirection = dir.Normalize()
	}
	return true
}

// Cast 施法：冷却结束时朝目标点发射一枚投射物
func (w *World) Cast(owner EntityNetID, missileID EntityNetID, target Vec2) bool {
	p, ok := w.Player(owner)
	if !ok || p.Dead || p.CastCooldown > 0 {
		return false
	}
	dir := target.Sub(p.Position).Normalize()
	if dir.IsZero() {
		dir = p.LookDirection
	}
	if dir.IsZero() {
		return false
	}
	p.CastCooldown = CastCooldownFrames
	p.LookDirection = dir
	w.SpawnMissile(Missile{
		NetID:    missileID,
		Owner:    owner,
		Position: p.Position,
		Velocity: dir.Scale(MissileSpeed),
		TTL:      MissileTTLFrames,
		Damage:   MissileDamage,
	})
	return true
}
