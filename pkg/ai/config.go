package ai

// Config 机器人行为参数，控制反应速度与失误
type Config struct {
	// ThinkIntervalFrames 思考间隔（帧），期间沿用上次的决定；威胁出现时立即重新思考
	ThinkIntervalFrames int

	// MistakeRate 随机失误率 (0.0-1.0)
	MistakeRate float64

	// DangerRadius 怪物进入该距离即优先躲避
	DangerRadius float64

	// PreferredRange 交战时与目标保持的距离
	PreferredRange float64
}

// 预设配置：普通难度
var ConfigNormal = Config{
	ThinkIntervalFrames: 12,
	MistakeRate:         0.05,
	DangerRadius:        60,
	PreferredRange:      160,
}

// 预设配置：困难难度
var ConfigHard = Config{
	ThinkIntervalFrames: 4,
	MistakeRate:         0,
	DangerRadius:        72,
	PreferredRange:      200,
}
