// Package bt 最小的行为树：选择、顺序、条件、动作四种节点。
package bt

type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusRunning
)

// Node 行为树节点，B 为黑板类型
type Node[B any] interface {
	Tick(bb B) Status
}

// Selector 依次尝试子节点，直到有一个不失败
type Selector[B any] struct {
	Children []Node[B]
}

func (s *Selector[B]) Tick(bb B) Status {
	for _, child := range s.Children {
		switch child.Tick(bb) {
		case StatusSuccess:
			return StatusSuccess
		case StatusRunning:
			return StatusRunning
		case StatusFailure:
			continue
		}
	}
	return StatusFailure
}

// Sequence 依次执行子节点，遇到非成功即停止
type Sequence[B any] struct {
	Children []Node[B]
}

func (s *Sequence[B]) Tick(bb B) Status {
	for _, child := range s.Children {
		switch child.Tick(bb) {
		case StatusFailure:
			return StatusFailure
		case StatusRunning:
			return StatusRunning
		case StatusSuccess:
			continue
		}
	}
	return StatusSuccess
}

type Condition[B any] struct {
	Check func(bb B) bool
}

func (c *Condition[B]) Tick(bb B) Status {
	if c.Check == nil {
		return StatusFailure
	}
	if c.Check(bb) {
		return StatusSuccess
	}
	return StatusFailure
}

type Action[B any] struct {
	Do func(bb B) Status
}

func (a *Action[B]) Tick(bb B) Status {
	if a.Do == nil {
		return StatusFailure
	}
	return a.Do(bb)
}

// Cond 与 Act 省去显式的类型参数
func Cond[B any](check func(bb B) bool) Node[B] {
	return &Condition[B]{Check: check}
}

func Act[B any](do func(bb B) Status) Node[B] {
	return &Action[B]{Do: do}
}
