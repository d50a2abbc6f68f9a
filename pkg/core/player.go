package core

// Player 玩家（纯逻辑，不包含渲染）
type Player struct {
	NetID         EntityNetID
	Position      Vec2
	Velocity      Vec2
	WalkDirection Vec2 // 最近一次行走指令（单位向量或零）
	LookDirection Vec2 // 朝向（单位向量）
	Health        int32
	Dead          bool
	CastCooldown  int32 // 剩余冷却帧数
}

// NewPlayer 创建新玩家
func NewPlayer(id EntityNetID, position Vec2) Player {
	return Player{
		NetID:         id,
		Position:      position,
		LookDirection: V(0, 1),
		Health:        PlayerMaxHealth,
	}
}

// SpawnPosition 根据玩家序号获取出生点（四个角落）
func SpawnPosition(slot int) Vec2 {
	spawns := []Vec2{
		{X: 64, Y: 64},
		{X: ArenaWidth - 64, Y: 64},
		{X: 64, Y: ArenaHeight - 64},
		{X: ArenaWidth - 64, Y: ArenaHeight - 64},
	}
	if slot < 0 {
		slot = -slot
	}
	return spawns[slot%len(spawns)]
}
