package core

// Rules 单帧玩法规则（移动、怪物 AI、投射物、伤害结算）。
// 回滚核心只要求实现是确定性的：相同输入必须得到相同输出。
type Rules interface {
	AdvancePlayer(p Player) Player
	DecideMonster(m Monster, w *World) Monster
	AdvanceMissile(m Missile) Missile
	ResolveHits(w *World)
}

// Step 推进世界一帧，返回本帧被移除的实体
func Step(w *World, rules Rules) []EntityNetID {
	for _, p := range w.Players.All() {
		*p = rules.AdvancePlayer(*p)
	}
	for _, m := range w.Monsters.All() {
		*m = rules.DecideMonster(*m, w)
	}
	for _, m := range w.Missiles.All() {
		*m = rules.AdvanceMissile(*m)
	}
	rules.ResolveHits(w)

	var removed []EntityNetID
	for _, m := range w.Missiles.All() {
		if m.Expired() {
			removed = append(removed, m.NetID)
		}
	}
	for _, m := range w.Monsters.All() {
		if m.Dead {
			removed = append(removed, m.NetID)
		}
	}
	for _, id := range removed {
		w.Despawn(id)
	}
	return removed
}

// DefaultRules 默认玩法规则
type DefaultRules struct{}

var _ Rules = DefaultRules{}

func (DefaultRules) AdvancePlayer(p Player) Player {
	if p.CastCooldown > 0 {
		p.CastCooldown--
	}
	if p.Dead {
		p.Velocity = Vec2{}
		return p
	}
	p.Velocity = p.WalkDirection.Normalize().Scale(PlayerSpeed)
	p.Position = ClampToArena(p.Position.Add(p.Velocity), PlayerRadius)
	return p
}

// DecideMonster 追逐视野内最近的存活玩家，距离相同时取槽位靠前者
func (DefaultRules) DecideMonster(m Monster, w *World) Monster {
	if m.Dead {
		m.Velocity = Vec2{}
		return m
	}

	sight := float64(MonsterSightRange * MonsterSightRange)
	if p, ok := w.Players.Get(m.Target); !ok || p.Dead || p.Position.DistSq(m.Position) > sight {
		m.Target = EntityRef{}
		best := sight
		for ref, p := range w.Players.All() {
			if p.Dead {
				continue
			}
			if d := p.Position.DistSq(m.Position); d <= best {
				if d == best && m.Target.Valid() {
					continue
				}
				best = d
				m.Target = ref
			}
		}
	}

	target, ok := w.Players.Get(m.Target)
	if !ok {
		m.Velocity = Vec2{}
		return m
	}
	m.Velocity = target.Position.Sub(m.Position).Normalize().Scale(m.speed())
	m.Position = ClampToArena(m.Position.Add(m.Velocity), MonsterRadius)
	return m
}

func (DefaultRules) AdvanceMissile(m Missile) Missile {
	m.Position = m.Position.Add(m.Velocity)
	m.TTL--
	return m
}

// ResolveHits 投射物命中怪物、怪物接触玩家
func (DefaultRules) ResolveHits(w *World) {
	for _, missile := range w.Missiles.All() {
		if missile.Expired() {
			continue
		}
		for _, monster := range w.Monsters.All() {
			if monster.Dead || !overlaps(missile.Position, MissileRadius, monster.Position, MonsterRadius) {
				continue
			}
			monster.Health -= missile.Damage
			if monster.Health <= 0 {
				monster.Health = 0
				monster.Dead = true
			}
			missile.TTL = 0
			break
		}
	}

	for _, monster := range w.Monsters.All() {
		if monster.Dead {
			continue
		}
		for _, player := range w.Players.All() {
			if player.Dead || !overlaps(monster.Position, MonsterRadius, player.Position, PlayerRadius) {
				continue
			}
			player.Health -= MonsterContactDamage
			if player.Health <= 0 {
				player.Health = 0
				player.Dead = true
				player.WalkDirection = Vec2{}
			}
		}
	}
}
