package core

// Missile 投射物
type Missile struct {
	NetID    EntityNetID
	Owner    EntityNetID // 施法玩家
	Position Vec2
	Velocity Vec2
	TTL      int32
	Damage   int32
}

// Expired 生命周期结束或飞出场地
func (m *Missile) Expired() bool {
	return m.TTL <= 0 || !InsideArena(m.Position)
}
