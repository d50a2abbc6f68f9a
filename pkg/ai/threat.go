package ai

import (
	"math"

	"skirmish/pkg/core"
)

// Threat 附近怪物构成的危险：逃离方向为各怪物斥力之和，越近权重越大
type Threat struct {
	Count   int
	Nearest float64
	Away    core.Vec2
}

// Update 重新统计 radius 内的活怪物
func (t *Threat) Update(w *core.World, pos core.Vec2, radius float64) {
	*t = Threat{Nearest: math.Inf(1)}
	for _, m := range w.Monsters.All() {
		if m.Dead {
			continue
		}
		d := math.Sqrt(m.Position.DistSq(pos))
		if d >= radius {
			continue
		}
		t.Count++
		t.Nearest = min(t.Nearest, d)
		push := pos.Sub(m.Position).Normalize()
		if push.IsZero() {
			push = core.V(1, 0)
		}
		t.Away = t.Away.Add(push.Scale(1 - d/radius))
	}
	t.Away = t.Away.Normalize()
}

// InDanger 是否有怪物进入危险半径
func (t *Threat) InDanger() bool {
	return t.Count > 0
}

// avoidWalls 贴近边界时把朝外的分量去掉，避免顶着墙走
func avoidWalls(pos, dir core.Vec2) core.Vec2 {
	const margin = core.PlayerRadius + 8
	if (pos.X < margin && dir.X < 0) || (pos.X > core.ArenaWidth-margin && dir.X > 0) {
		dir.X = 0
	}
	if (pos.Y < margin && dir.Y < 0) || (pos.Y > core.ArenaHeight-margin && dir.Y > 0) {
		dir.Y = 0
	}
	return dir.Normalize()
}
