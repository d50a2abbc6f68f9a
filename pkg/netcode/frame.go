package netcode

import (
	"strconv"
	"time"

	"skirmish/pkg/core"
)

// FrameNumber 逻辑帧号，所有对端共享同一编号
type FrameNumber uint64

func (f FrameNumber) String() string {
	return strconv.FormatUint(uint64(f), 10)
}

// FrameDuration 一帧的墙钟时长
const FrameDuration = time.Second / core.FPS

// FrameClock 把引擎 tick 折算为逻辑帧。
// 暂停期间 tick 照常计数，帧号保持不变。
type FrameClock struct {
	frame   FrameNumber
	ticks   uint64
	skipped uint64
	accum   time.Duration
}

// NewFrameClock 从指定帧开始计时
func NewFrameClock(start FrameNumber) *FrameClock {
	return &FrameClock{frame: start}
}

// Frame 当前逻辑帧
func (c *FrameClock) Frame() FrameNumber {
	return c.frame
}

// Tick 处理一次引擎 tick，返回当前帧以及帧号是否前进
func (c *FrameClock) Tick(paused bool) (FrameNumber, bool) {
	c.ticks++
	if paused {
		c.skipped++
		return c.frame, false
	}
	c.frame++
	return c.frame, true
}

// Due 累积墙钟时间，返回应执行的 tick 数
func (c *FrameClock) Due(elapsed time.Duration) int {
	c.accum += elapsed
	n := int(c.accum / FrameDuration)
	c.accum -= time.Duration(n) * FrameDuration
	return n
}

// SyncTo 快进到指定帧，不会回退；返回是否发生了跳转
func (c *FrameClock) SyncTo(frame FrameNumber) bool {
	if frame <= c.frame {
		return false
	}
	c.frame = frame
	return true
}

// Reset 新会话开始时重置
func (c *FrameClock) Reset(start FrameNumber) {
	*c = FrameClock{frame: start}
}

// Ticks 累计 tick 数（包括暂停期间）
func (c *FrameClock) Ticks() uint64 {
	return c.ticks
}

// Skipped 暂停期间跳过的 tick 数
func (c *FrameClock) Skipped() uint64 {
	return c.skipped
}
