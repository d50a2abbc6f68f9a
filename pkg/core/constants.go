package core

// 仿真帧率
const (
	FPS          = 60
	FrameSeconds = 1.0 / FPS
)

// 竞技场尺寸（世界单位，俯视角）
const (
	ArenaWidth  = 640.0
	ArenaHeight = 480.0
)

// 玩家配置（速度单位：世界单位/帧）
const (
	PlayerSpeed        = 2.0
	PlayerRadius       = 12.0
	PlayerMaxHealth    = 100
	CastCooldownFrames = 30
)

// 怪物配置
const (
	MonsterSpeed         = 1.25
	MonsterRadius        = 14.0
	MonsterMaxHealth     = 60
	MonsterContactDamage = 1 // 每帧接触伤害
	MonsterSightRange    = 400.0
)

// 投射物配置
const (
	MissileSpeed     = 6.0
	MissileRadius    = 4.0
	MissileTTLFrames = 90
	MissileDamage    = 20
)
