package netcode

import "skirmish/pkg/core"

// BuildWorldUpdate 生成 frame 的权威更新：next 相对 prev（上一帧快照）有变化的实体，
// 以及上一版记录 previous 中出现过的实体（重算后需要覆盖客户端收到的旧值）。
// prev 中存在而 next 中不存在的实体记为移除。
func BuildWorldUpdate(frame FrameNumber, prev, next *core.World, previous *ServerWorldUpdate) ServerWorldUpdate {
	u := NewServerWorldUpdate(frame)

	for _, p := range next.Players.All() {
		old, ok := prev.Player(p.NetID)
		if !ok || *old != *p || (previous != nil && previous.Players.Has(p.NetID)) {
			u.Players.Put(p.NetID, *p)
		}
	}
	for _, m := range next.Monsters.All() {
		state := MonsterStateOf(next, m)
		old, ok := prev.Monster(m.NetID)
		if !ok || MonsterStateOf(prev, old) != state || (previous != nil && previous.Monsters.Has(m.NetID)) {
			u.Monsters.Put(m.NetID, state)
		}
	}
	for _, m := range next.Missiles.All() {
		old, ok := prev.Missile(m.NetID)
		if !ok || *old != *m || (previous != nil && previous.Missiles.Has(m.NetID)) {
			u.Missiles.Put(m.NetID, *m)
		}
	}

	removed := func(id core.EntityNetID) {
		if _, _, ok := next.Lookup(id); !ok {
			u.Removed = insertSorted(u.Removed, id)
		}
	}
	for _, p := range prev.Players.All() {
		removed(p.NetID)
	}
	for _, m := range prev.Monsters.All() {
		removed(m.NetID)
	}
	for _, m := range prev.Missiles.All() {
		removed(m.NetID)
	}
	if previous != nil {
		for _, id := range previous.Removed {
			removed(id)
		}
	}
	return u
}

// Keyframe 完整世界状态，用于新会话或重连后的全量同步
func Keyframe(frame FrameNumber, w *core.World) ServerWorldUpdate {
	return BuildWorldUpdate(frame, core.NewWorld(), w, nil)
}

// WorldFromKeyframe 由全量更新重建世界
func WorldFromKeyframe(u *ServerWorldUpdate) *core.World {
	w := core.NewWorld()
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
	return w
}
