package server

import (
	"math/rand/v2"

	"skirmish/pkg/core"
	"skirmish/pkg/netcode"
)

// spawner 定时在竞技场边缘刷怪。
// 生成写入 current+delay 帧，和客户端指令一样提前下发。
type spawner struct {
	rng      *rand.Rand
	interval netcode.FrameNumber
	limit    int
	delay    netcode.FrameNumber
	spawned  int
}

func newSpawner(seed uint64, interval netcode.FrameNumber, limit int, delay netcode.FrameNumber) *spawner {
	return &spawner{
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		interval: interval,
		limit:    limit,
		delay:    delay,
	}
}

// edgePosition 竞技场边缘上的随机点
func (s *spawner) edgePosition() core.Vec2 {
	t := s.rng.Float64()
	switch s.rng.IntN(4) {
	case 0:
		return core.V(t*core.ArenaWidth, core.MonsterRadius)
	case 1:
		return core.V(t*core.ArenaWidth, core.ArenaHeight-core.MonsterRadius)
	case 2:
		return core.V(core.MonsterRadius, t*core.ArenaHeight)
	default:
		return core.V(core.ArenaWidth-core.MonsterRadius, t*core.ArenaHeight)
	}
}

// tick 到达刷怪间隔且场上怪物未满时生成一只，返回其 ID
func (s *spawner) tick(now netcode.FrameNumber, alive int, adm *netcode.Admission) (core.EntityNetID, bool, error) {
	if s.interval == 0 || now == 0 || now%s.interval != 0 || alive >= s.limit {
		return 0, false, nil
	}
	kind := core.MonsterRat
	if s.spawned%3 == 2 {
		kind = core.MonsterBrute
	}
	id, err := adm.SpawnMonster(now+s.delay, kind, s.edgePosition())
	if err != nil {
		return 0, false, err
	}
	s.spawned++
	return id, true, nil
}
