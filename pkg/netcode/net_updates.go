package netcode

import (
	"iter"
	"slices"

	"skirmish/pkg/core"
)

// NetEntry 一个实体的更新
type NetEntry[T any] struct {
	ID    core.EntityNetID
	Value T
}

// NetUpdates 按 EntityNetID 排序的更新集合，同一实体后写覆盖先写
type NetUpdates[T any] struct {
	entries []NetEntry[T]
}

func (u *NetUpdates[T]) search(id core.EntityNetID) (int, bool) {
	return slices.BinarySearchFunc(u.entries, id, func(e NetEntry[T], id core.EntityNetID) int {
		switch {
		case e.ID < id:
			return -1
		case e.ID > id:
			return 1
		}
		return 0
	})
}

// Put 写入实体的更新，已存在时覆盖
func (u *NetUpdates[T]) Put(id core.EntityNetID, value T) {
	i, found := u.search(id)
	if found {
		u.entries[i].Value = value
		return
	}
	u.entries = slices.Insert(u.entries, i, NetEntry[T]{ID: id, Value: value})
}

// Get 读取实体的更新
func (u *NetUpdates[T]) Get(id core.EntityNetID) (T, bool) {
	i, found := u.search(id)
	if !found {
		var zero T
		return zero, false
	}
	return u.entries[i].Value, true
}

// Has 是否包含实体
func (u *NetUpdates[T]) Has(id core.EntityNetID) bool {
	_, found := u.search(id)
	return found
}

// Remove 删除实体的更新
func (u *NetUpdates[T]) Remove(id core.EntityNetID) bool {
	i, found := u.search(id)
	if !found {
		return false
	}
	u.entries = slices.Delete(u.entries, i, i+1)
	return true
}

// Merge 合并另一组更新，other 中的值优先；重复合并结果不变
func (u *NetUpdates[T]) Merge(other NetUpdates[T]) {
	for _, e := range other.entries {
		u.Put(e.ID, e.Value)
	}
}

// Len 实体数量
func (u *NetUpdates[T]) Len() int {
	return len(u.entries)
}

// All 按 EntityNetID 升序遍历
func (u *NetUpdates[T]) All() iter.Seq2[core.EntityNetID, T] {
	return func(yield func(core.EntityNetID, T) bool) {
		for _, e := range u.entries {
			if !yield(e.ID, e.Value) {
				return
			}
		}
	}
}

// Entries 底层有序切片（只读）
func (u *NetUpdates[T]) Entries() []NetEntry[T] {
	return u.entries
}

// Clone 复制
func (u *NetUpdates[T]) Clone() NetUpdates[T] {
	return NetUpdates[T]{entries: slices.Clone(u.entries)}
}

// NetUpdatesOf 由任意顺序的条目构造，重复 ID 时靠后的生效
func NetUpdatesOf[T any](entries ...NetEntry[T]) NetUpdates[T] {
	var u NetUpdates[T]
	for _, e := range entries {
		u.Put(e.ID, e.Value)
	}
	return u
}

func equalNetUpdates[T comparable](a, b *NetUpdates[T]) bool {
	return slices.Equal(a.entries, b.entries)
}
