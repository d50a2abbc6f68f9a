package ai

import (
	"math/rand/v2"

	"skirmish/pkg/core"
)

// Decision 一次思考的结果
type Decision struct {
	Walk   core.Vec2
	Aim    core.Vec2
	HasAim bool
	Cast   bool
}

// Blackboard 行为树共享的数据
type Blackboard struct {
	World  *core.World
	Self   *core.Player
	Frame  uint64
	RNG    *rand.Rand
	Config *Config
	Threat Threat

	Target core.EntityNetID
	Next   Decision

	// 游荡方向跨帧保持，减少抖动
	WanderDirection core.Vec2
	WanderFrames    int
}

// ResetFrame 每次思考前刷新；游荡状态保留
func (bb *Blackboard) ResetFrame(w *core.World, self *core.Player, frame uint64) {
	bb.World = w
	bb.Self = self
	bb.Frame = frame
	bb.Target = 0
	bb.Next = Decision{}
	bb.Threat.Update(w, self.Position, bb.Config.DangerRadius)
}
