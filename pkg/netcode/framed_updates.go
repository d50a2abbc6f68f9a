package netcode

import (
	"iter"

	"github.com/pkg/errors"
)

const (
	// DefaultCapacity 账本与快照保留的帧数（10 秒）
	DefaultCapacity = 600
	// DefaultLagCompensationFrames 延迟补偿窗口（1 秒）
	DefaultLagCompensationFrames FrameNumber = 60
)

// FramedUpdates 按帧号索引的更新账本（环形缓冲）。
//
// 帧号连续且单调递增；最旧的一帧作为回滚基准，只读不写，
// 可写区间为 (Oldest, Latest]。watermark 记录最早被修改过的帧，
// 重算从这里开始。
type FramedUpdates[T any] struct {
	capacity  int
	lagLimit  FrameNumber
	newUpdate func(FrameNumber) T

	data  []T
	start int
	size  int
	first FrameNumber

	watermark FrameNumber
	settled   FrameNumber
	hasSettle bool
}

// NewFramedUpdates 创建账本；newUpdate 为新预留的帧构造空更新
func NewFramedUpdates[T any](capacity int, lagLimit FrameNumber, newUpdate func(FrameNumber) T) *FramedUpdates[T] {
	if capacity < 2 {
		capacity = 2
	}
	return &FramedUpdates[T]{
		capacity:  capacity,
		lagLimit:  lagLimit,
		newUpdate: newUpdate,
		data:      make([]T, capacity),
	}
}

func (l *FramedUpdates[T]) index(frame FrameNumber) int {
	return (l.start + int(frame-l.first)) % l.capacity
}

func (l *FramedUpdates[T]) contains(frame FrameNumber) bool {
	return l.size > 0 && frame >= l.first && frame <= l.Latest()
}

// Reserve 预留直到 frame 的所有帧；已预留的帧不受影响
func (l *FramedUpdates[T]) Reserve(frame FrameNumber) {
	if l.size == 0 {
		l.first = frame
		l.start = 0
		l.data[0] = l.newUpdate(frame)
		l.size = 1
		l.watermark = frame
		return
	}
	for next := l.Latest() + 1; next <= frame; next++ {
		if l.size == l.capacity {
			l.evict()
		}
		l.data[(l.start+l.size)%l.capacity] = l.newUpdate(next)
		l.size++
	}
}

func (l *FramedUpdates[T]) evict() {
	var zero T
	l.data[l.start] = zero
	l.start = (l.start + 1) % l.capacity
	l.first++
	l.size--
	if l.watermark < l.first {
		l.watermark = l.first
	}
}

// EarliestRetainable 当前仍允许写入的最早帧
func (l *FramedUpdates[T]) EarliestRetainable() FrameNumber {
	earliest := l.first + 1
	if l.lagLimit == 0 {
		return earliest
	}
	anchor := l.Latest()
	if l.hasSettle {
		anchor = l.settled
	}
	if anchor > l.lagLimit && anchor-l.lagLimit > earliest {
		earliest = anchor - l.lagLimit
	}
	return earliest
}

// UpdateFrame 取得 frame 处的更新以便修改，并把 watermark 降到该帧。
// lagCompensate 为真时，过旧的帧替换为最早可写帧；实际写入的帧随结果返回。
func (l *FramedUpdates[T]) UpdateFrame(frame FrameNumber, lagCompensate bool) (*T, FrameNumber, error) {
	if l.size == 0 {
		return nil, 0, ErrEmptyLedger
	}
	if frame > l.Latest() {
		return nil, 0, errors.Wrapf(ErrFutureFrame, "frame %d, latest %d", frame, l.Latest())
	}
	earliest := l.EarliestRetainable()
	target := frame
	if frame < earliest {
		if !lagCompensate {
			return nil, 0, errors.Wrapf(ErrFrameTooOld, "frame %d, earliest %d", frame, earliest)
		}
		target = earliest
	}
	if target > l.Latest() {
		return nil, 0, errors.Wrapf(ErrFrameTooOld, "frame %d, nothing writable before %d", frame, l.Latest())
	}
	l.MarkUpdated(target)
	return &l.data[l.index(target)], target, nil
}

// Get 只读访问某一帧
func (l *FramedUpdates[T]) Get(frame FrameNumber) (*T, bool) {
	if !l.contains(frame) {
		return nil, false
	}
	return &l.data[l.index(frame)], true
}

// MarkUpdated 标记某帧已修改（watermark 只降不升）
func (l *FramedUpdates[T]) MarkUpdated(frame FrameNumber) {
	if !l.contains(frame) {
		return
	}
	if frame < l.watermark {
		l.watermark = frame
	}
}

// OldestUpdatedFrame 最早需要重算的帧
func (l *FramedUpdates[T]) OldestUpdatedFrame() FrameNumber {
	return l.watermark
}

// Settle 重算完成，watermark 移到 frame 之后
func (l *FramedUpdates[T]) Settle(frame FrameNumber) {
	l.watermark = frame + 1
	l.settled = frame
	l.hasSettle = true
}

// Oldest 最旧的已保留帧
func (l *FramedUpdates[T]) Oldest() FrameNumber {
	return l.first
}

// Latest 最新的已预留帧
func (l *FramedUpdates[T]) Latest() FrameNumber {
	if l.size == 0 {
		return l.first
	}
	return l.first + FrameNumber(l.size-1)
}

// Len 已保留的帧数
func (l *FramedUpdates[T]) Len() int {
	return l.size
}

// Capacity 最大保留帧数
func (l *FramedUpdates[T]) Capacity() int {
	return l.capacity
}

// FromWatermark 从 watermark 起遍历（回放用）
func (l *FramedUpdates[T]) FromWatermark() iter.Seq2[FrameNumber, *T] {
	return l.From(l.watermark)
}

// From 从 start 起遍历到最新帧
func (l *FramedUpdates[T]) From(start FrameNumber) iter.Seq2[FrameNumber, *T] {
	return func(yield func(FrameNumber, *T) bool) {
		if l.size == 0 {
			return
		}
		if start < l.first {
			start = l.first
		}
		for f := start; f <= l.Latest(); f++ {
			if !yield(f, &l.data[l.index(f)]) {
				return
			}
		}
	}
}
