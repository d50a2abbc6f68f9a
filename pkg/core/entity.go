package core

import (
	"fmt"
	"iter"
)

// EntityNetID 网络可见的实体 ID，只由服务器分配，重连与回放都保持不变
type EntityNetID uint32

// EntityKind 实体类别
type EntityKind uint8

const (
	KindUnknown EntityKind = iota
	KindPlayer
	KindMonster
	KindMissile
)

func (k EntityKind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindMonster:
		return "monster"
	case KindMissile:
		return "missile"
	}
	return "unknown"
}

// EntityRef 实体表中的稳定引用：槽位下标 + 代数。
// Generation 为 0 表示空引用；槽位复用时代数递增，旧引用随之失效。
type EntityRef struct {
	Index      uint32
	Generation uint32
}

// Valid 是否为非空引用（不代表实体仍然存活）
func (r EntityRef) Valid() bool {
	return r.Generation != 0
}

func (r EntityRef) String() string {
	return fmt.Sprintf("%d@%d", r.Index, r.Generation)
}

type slot[T comparable] struct {
	generation uint32
	alive      bool
	value      T
}

// Arena 按值存储的实体表。
// 插入与删除序列相同时分配结果相同，复制即可得到独立快照。
type Arena[T comparable] struct {
	slots []slot[T]
	free  []uint32
}

// Insert 插入实体，优先复用最近释放的槽位
func (a *Arena[T]) Insert(value T) EntityRef {
	if n := len(a.free); n > 0 {
		index := a.free[n-1]
		a.free = a.free[:n-1]
		s := &a.slots[index]
		s.generation++
		s.alive = true
		s.value = value
		return EntityRef{Index: index, Generation: s.generation}
	}
	a.slots = append(a.slots, slot[T]{generation: 1, alive: true, value: value})
	return EntityRef{Index: uint32(len(a.slots) - 1), Generation: 1}
}

// Get 按引用取实体，引用过期或实体已删除时返回 false
func (a *Arena[T]) Get(ref EntityRef) (*T, bool) {
	if !ref.Valid() || int(ref.Index) >= len(a.slots) {
		return nil, false
	}
	s := &a.slots[ref.Index]
	if !s.alive || s.generation != ref.Generation {
		return nil, false
	}
	return &s.value, true
}

// Remove 删除实体
func (a *Arena[T]) Remove(ref EntityRef) bool {
	if _, ok := a.Get(ref); !ok {
		return false
	}
	s := &a.slots[ref.Index]
	var zero T
	s.alive = false
	s.value = zero
	a.free = append(a.free, ref.Index)
	return true
}

// Len 存活实体数量
func (a *Arena[T]) Len() int {
	return len(a.slots) - len(a.free)
}

// All 按槽位顺序遍历存活实体
func (a *Arena[T]) All() iter.Seq2[EntityRef, *T] {
	return func(yield func(EntityRef, *T) bool) {
		for i := range a.slots {
			s := &a.slots[i]
			if !s.alive {
				continue
			}
			if !yield(EntityRef{Index: uint32(i), Generation: s.generation}, &s.value) {
				return
			}
		}
	}
}

// Clone 深拷贝
func (a *Arena[T]) Clone() Arena[T] {
	return Arena[T]{
		slots: append([]slot[T](nil), a.slots...),
		free:  append([]uint32(nil), a.free...),
	}
}

// Equal 逐槽位比较（包括代数与空闲表顺序）
func (a *Arena[T]) Equal(b *Arena[T]) bool {
	if len(a.slots) != len(b.slots) || len(a.free) != len(b.free) {
		return false
	}
	for i := range a.slots {
		if a.slots[i] != b.slots[i] {
			return false
		}
	}
	for i := range a.free {
		if a.free[i] != b.free[i] {
			return false
		}
	}
	return true
}
