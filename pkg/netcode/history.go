package netcode

import (
	"maps"
	"slices"
)

// ConnID 连接标识
type ConnID uint32

// History 服务器已发出的逐帧权威更新及各连接的确认进度。
// 每条记录的 Revision 是房间最后一次修改它时分配的修订号（单调递增）；连接确认了 U 之后，
// Revision ≤ U 的记录对它不再需要重发。
type History struct {
	records map[FrameNumber]*ServerWorldUpdate
	acks    map[ConnID]FrameNumber
}

// NewHistory 创建空历史
func NewHistory() *History {
	return &History{
		records: make(map[FrameNumber]*ServerWorldUpdate),
		acks:    make(map[ConnID]FrameNumber),
	}
}

// Record 写入（或替换）一帧的记录
func (h *History) Record(u ServerWorldUpdate) {
	h.records[u.Frame] = &u
}

// Get 读取一帧的记录
func (h *History) Get(frame FrameNumber) (*ServerWorldUpdate, bool) {
	u, ok := h.records[frame]
	return u, ok
}

// Len 保留的记录数
func (h *History) Len() int {
	return len(h.records)
}

// Track 开始跟踪连接，ack 为它已经拥有的最新更新
func (h *History) Track(conn ConnID, ack FrameNumber) {
	h.acks[conn] = ack
}

// Forget 停止跟踪连接
func (h *History) Forget(conn ConnID) {
	delete(h.acks, conn)
}

// Ack 记录确认，只进不退；返回是否前进
func (h *History) Ack(conn ConnID, id FrameNumber) bool {
	current, ok := h.acks[conn]
	if !ok || id <= current {
		return false
	}
	h.acks[conn] = id
	return true
}

// Acked 连接确认到的更新 ID
func (h *History) Acked(conn ConnID) (FrameNumber, bool) {
	id, ok := h.acks[conn]
	return id, ok
}

// Pending 连接尚未确认的记录，按帧升序
func (h *History) Pending(conn ConnID) []ServerWorldUpdate {
	ack, ok := h.acks[conn]
	if !ok {
		return nil
	}
	var out []ServerWorldUpdate
	for _, frame := range slices.Sorted(maps.Keys(h.records)) {
		if u := h.records[frame]; u.Revision > ack {
			out = append(out, u.Clone())
		}
	}
	return out
}

// Collect 删除所有连接都已确认的记录，返回删除数量
func (h *History) Collect() int {
	if len(h.acks) == 0 {
		return 0
	}
	minAck := slices.Min(slices.Collect(maps.Values(h.acks)))
	n := 0
	for frame, u := range h.records {
		if u.Revision <= minAck {
			delete(h.records, frame)
			n++
		}
	}
	return n
}

// PruneBefore 删除早于 frame 的记录（已滑出账本，无法再被修改）
func (h *History) PruneBefore(frame FrameNumber) int {
	n := 0
	for f := range h.records {
		if f < frame {
			delete(h.records, f)
			n++
		}
	}
	return n
}
