package netcode

import (
	"github.com/pkg/errors"

	"skirmish/pkg/core"
)

// WorldStates 按帧保存的世界快照环。
// 槽位 F 保存模拟完第 F 帧之后的状态，与账本同容量、同帧号，逐帧同步淘汰。
type WorldStates struct {
	capacity int
	data     []*core.World
	start    int
	size     int
	first    FrameNumber
}

// NewWorldStates 创建快照环，第一次 AddSnapshot 得到 start 帧
func NewWorldStates(capacity int, start FrameNumber) *WorldStates {
	if capacity < 2 {
		capacity = 2
	}
	return &WorldStates{
		capacity: capacity,
		data:     make([]*core.World, capacity),
		first:    start,
	}
}

func (s *WorldStates) index(frame FrameNumber) int {
	return (s.start + int(frame-s.first)) % s.capacity
}

// AddSnapshot 追加下一帧的空快照，满时淘汰最旧的一帧；返回新快照的帧号
func (s *WorldStates) AddSnapshot() FrameNumber {
	if s.size == s.capacity {
		s.data[s.start] = nil
		s.start = (s.start + 1) % s.capacity
		s.first++
		s.size--
	}
	frame := s.first + FrameNumber(s.size)
	s.data[(s.start+s.size)%s.capacity] = core.NewWorld()
	s.size++
	return frame
}

// Oldest 最旧的快照帧
func (s *WorldStates) Oldest() FrameNumber {
	return s.first
}

// Latest 最新的快照帧
func (s *WorldStates) Latest() FrameNumber {
	if s.size == 0 {
		return s.first
	}
	return s.first + FrameNumber(s.size-1)
}

// Len 快照数量
func (s *WorldStates) Len() int {
	return s.size
}

func (s *WorldStates) contains(frame FrameNumber) bool {
	return s.size > 0 && frame >= s.first && frame <= s.Latest()
}

// CheckReplayable 从 frame 开始重算需要 frame-1 的快照仍被保留
func (s *WorldStates) CheckReplayable(frame FrameNumber) error {
	if frame == 0 || !s.contains(frame-1) {
		if s.size > 0 && frame > s.Latest() {
			return errors.Wrapf(ErrFutureFrame, "replay from %d, latest snapshot %d", frame, s.Latest())
		}
		return errors.Wrapf(ErrFrameTooOld, "replay from %d, oldest snapshot %d", frame, s.first)
	}
	return nil
}

// Save 保存 frame 的快照（深拷贝）
func (s *WorldStates) Save(frame FrameNumber, w *core.World) error {
	if !s.contains(frame) {
		return errors.Wrapf(ErrFrameTooOld, "save snapshot %d outside [%d, %d]", frame, s.first, s.Latest())
	}
	s.data[s.index(frame)] = w.Clone()
	return nil
}

// Load 取出 frame 的快照副本，修改副本不影响保存的状态
func (s *WorldStates) Load(frame FrameNumber) (*core.World, error) {
	if !s.contains(frame) {
		return nil, errors.Wrapf(ErrFrameTooOld, "load snapshot %d outside [%d, %d]", frame, s.first, s.Latest())
	}
	return s.data[s.index(frame)].Clone(), nil
}

// Get 只读访问快照，调用方不得修改返回值
func (s *WorldStates) Get(frame FrameNumber) (*core.World, bool) {
	if !s.contains(frame) {
		return nil, false
	}
	return s.data[s.index(frame)], true
}
