package client

import (
	"skirmish/pkg/core"
)

// 渲染平滑参数
const (
	SmoothingFactor = 0.2  // 每帧消除的误差比例
	SnapDistance    = 48.0 // 误差超过该距离直接跳到新位置（复活、传送）
)

type smoothedEntity struct {
	pos  core.Vec2
	seen uint64
}

// Smoother 渲染侧的修正平滑：回滚重算把实体挪到别处时，
// 显示位置先按速度外推，再逐帧向权威位置收敛，避免画面跳动。
// 只影响显示，不参与模拟。
type Smoother struct {
	entities map[core.EntityNetID]*smoothedEntity
	frame    uint64
}

// NewSmoother 创建平滑器
func NewSmoother() *Smoother {
	return &Smoother{entities: make(map[core.EntityNetID]*smoothedEntity)}
}

// Begin 开始新一帧的渲染
func (s *Smoother) Begin() {
	s.frame++
}

// Position 返回实体的显示位置
func (s *Smoother) Position(id core.EntityNetID, target, velocity core.Vec2) core.Vec2 {
	e, ok := s.entities[id]
	if !ok || e.seen+1 < s.frame {
		s.entities[id] = &smoothedEntity{pos: target, seen: s.frame}
		return target
	}
	e.seen = s.frame

	expected := e.pos.Add(velocity)
	diff := target.Sub(expected)
	if diff.LenSq() > SnapDistance*SnapDistance {
		e.pos = target
	} else {
		e.pos = expected.Add(diff.Scale(SmoothingFactor))
	}
	return e.pos
}

// End 丢弃本帧没有出现的实体
func (s *Smoother) End() {
	for id, e := range s.entities {
		if e.seen != s.frame {
			delete(s.entities, id)
		}
	}
}

// Reset 世界重建后清空
func (s *Smoother) Reset() {
	clear(s.entities)
}
