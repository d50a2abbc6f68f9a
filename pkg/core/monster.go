package core

// MonsterKind 怪物种类
type MonsterKind uint8

const (
	MonsterRat MonsterKind = iota
	MonsterBrute
)

// Monster 怪物
type Monster struct {
	NetID    EntityNetID
	Kind     MonsterKind
	Position Vec2
	Velocity Vec2
	Health   int32
	Dead     bool
	Target   EntityRef // 追逐的玩家（Players 表中的引用）
}

// NewMonster 创建怪物
func NewMonster(id EntityNetID, kind MonsterKind, position Vec2) Monster {
	health := int32(MonsterMaxHealth)
	if kind == MonsterBrute {
		health *= 2
	}
	return Monster{
		NetID:    id,
		Kind:     kind,
		Position: position,
		Health:   health,
	}
}

func (m *Monster) speed() float64 {
	if m.Kind == MonsterBrute {
		return float64(MonsterSpeed * 0.6)
	}
	return MonsterSpeed
}
