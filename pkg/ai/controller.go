package ai

import (
	"math/rand/v2"

	"skirmish/pkg/ai/bt"
	"skirmish/pkg/core"
)

// Controller 机器人控制器：行为树决定行走、瞄准与施法。
// 随机数按玩家 ID 播种，同一局面序列下决定相同。
type Controller struct {
	id     core.EntityNetID
	rng    *rand.Rand
	config *Config

	thinkCounter int
	cached       Decision
	lastInDanger bool

	blackboard Blackboard
	tree       bt.Node[*Blackboard]
}

// NewController 创建控制器，config 为 nil 时使用普通难度
func NewController(id core.EntityNetID, config *Config) *Controller {
	if config == nil {
		config = &ConfigNormal
	}
	rng := rand.New(rand.NewPCG(uint64(id), 0x5eed))
	c := &Controller{
		id:           id,
		rng:          rng,
		config:       config,
		thinkCounter: config.ThinkIntervalFrames,
		blackboard:   Blackboard{RNG: rng, Config: config},
	}
	c.tree = &bt.Selector[*Blackboard]{Children: []bt.Node[*Blackboard]{
		&bt.Sequence[*Blackboard]{Children: []bt.Node[*Blackboard]{
			bt.Cond(condInDanger),
			bt.Act(actFlee),
		}},
		&bt.Sequence[*Blackboard]{Children: []bt.Node[*Blackboard]{
			bt.Act(actFindTarget),
			bt.Act(actEngage),
		}},
		bt.Act(actWander),
	}}
	return c
}

// Decide 根据当前世界给出本帧的决定
func (c *Controller) Decide(w *core.World, frame uint64) Decision {
	self, ok := w.Player(c.id)
	if !ok || self.Dead {
		c.cached = Decision{}
		return c.cached
	}
	c.blackboard.ResetFrame(w, self, frame)

	inDanger := c.blackboard.Threat.InDanger()
	force := inDanger != c.lastInDanger
	c.lastInDanger = inDanger

	c.thinkCounter++
	if !force && c.thinkCounter < c.config.ThinkIntervalFrames {
		d := c.cached
		d.Cast = d.HasAim && self.CastCooldown == 0
		return d
	}
	c.thinkCounter = 0
	_ = c.tree.Tick(&c.blackboard)

	// 随机失误
	if c.config.MistakeRate > 0 && c.rng.Float64() < c.config.MistakeRate {
		switch c.rng.IntN(3) {
		case 0:
			c.blackboard.Next = Decision{}
		case 1:
			c.blackboard.Next.Walk = compass[c.rng.IntN(len(compass))].Normalize()
		}
	}

	c.cached = c.blackboard.Next
	return c.cached
}

// Config 当前配置
func (c *Controller) Config() *Config {
	return c.config
}
