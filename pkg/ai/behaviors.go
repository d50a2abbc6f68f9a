package ai

import (
	"math"

	"skirmish/pkg/ai/bt"
	"skirmish/pkg/core"
)

// 游荡方向持续帧数
const wanderDirectionFrames = 45

var compass = []core.Vec2{
	core.V(1, 0), core.V(1, 1), core.V(0, 1), core.V(-1, 1),
	core.V(-1, 0), core.V(-1, -1), core.V(0, -1), core.V(1, -1),
}

func condInDanger(bb *Blackboard) bool {
	return bb.Threat.InDanger()
}

// actFlee 背离怪物逃跑，边跑边还击最近的一只
func actFlee(bb *Blackboard) bt.Status {
	dir := avoidWalls(bb.Self.Position, bb.Threat.Away)
	if dir.IsZero() {
		// 被逼到角落，沿墙横移
		dir = avoidWalls(bb.Self.Position, core.V(-bb.Threat.Away.Y, bb.Threat.Away.X))
	}
	bb.Next.Walk = dir
	if target, ok := nearestMonster(bb.World, bb.Self.Position, math.Inf(1)); ok {
		aimAt(bb, target)
	}
	return bt.StatusRunning
}

func actFindTarget(bb *Blackboard) bt.Status {
	target, ok := nearestMonster(bb.World, bb.Self.Position, core.MonsterSightRange)
	if !ok {
		return bt.StatusFailure
	}
	bb.Target = target.NetID
	return bt.StatusSuccess
}

// actEngage 与目标保持距离并施法：太近后退，太远靠近，否则绕圈
func actEngage(bb *Blackboard) bt.Status {
	target, ok := bb.World.Monster(bb.Target)
	if !ok || target.Dead {
		return bt.StatusFailure
	}
	aimAt(bb, target)

	offset := target.Position.Sub(bb.Self.Position)
	dist := offset.Len()
	toward := offset.Normalize()
	var walk core.Vec2
	switch {
	case dist < bb.Config.PreferredRange:
		walk = toward.Scale(-1)
	case dist > bb.Config.PreferredRange+40:
		walk = toward
	default:
		walk = core.V(-toward.Y, toward.X)
	}
	bb.Next.Walk = avoidWalls(bb.Self.Position, walk)
	return bt.StatusRunning
}

func actWander(bb *Blackboard) bt.Status {
	if bb.WanderFrames > 0 && !bb.WanderDirection.IsZero() {
		bb.WanderFrames--
		if dir := avoidWalls(bb.Self.Position, bb.WanderDirection); dir == bb.WanderDirection.Normalize() {
			bb.Next.Walk = dir
			return bt.StatusRunning
		}
	}

	// 换一个不会撞墙的方向
	start := bb.RNG.IntN(len(compass))
	for i := range compass {
		dir := compass[(start+i)%len(compass)]
		if avoidWalls(bb.Self.Position, dir) == dir.Normalize() {
			bb.WanderDirection = dir
			break
		}
	}
	bb.WanderFrames = wanderDirectionFrames
	bb.Next.Walk = bb.WanderDirection.Normalize()
	return bt.StatusRunning
}

func aimAt(bb *Blackboard, target *core.Monster) {
	bb.Next.Aim = target.Position
	bb.Next.HasAim = true
	bb.Next.Cast = bb.Self.CastCooldown == 0
}

func nearestMonster(w *core.World, pos core.Vec2, maxRange float64) (*core.Monster, bool) {
	var best *core.Monster
	bestDist := maxRange * maxRange
	for _, m := range w.Monsters.All() {
		if m.Dead {
			continue
		}
		if d := m.Position.DistSq(pos); d < bestDist {
			best, bestDist = m, d
		}
	}
	return best, best != nil
}
