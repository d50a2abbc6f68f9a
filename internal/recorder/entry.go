package recorder

import (
	"fmt"

	"skirmish/pkg/core"
	"skirmish/pkg/netcode"
)

func vec(v core.Vec2) [2]float64 {
	return [2]float64{v.X, v.Y}
}

func unvec(v [2]float64) core.Vec2 {
	return core.Vec2{X: v[0], Y: v[1]}
}

// EntryFrom 把一帧最终结算的指令与生成转成记录
func EntryFrom(frame netcode.FrameNumber, actions *netcode.ActionUpdates, spawns *netcode.SpawnActions) Entry {
	e := Entry{Frame: uint64(frame)}
	if actions != nil {
		for id, w := range actions.Walk.All() {
			e.Walks = append(e.Walks, WalkEntry{Entity: uint32(id), ID: w.ID, Origin: uint64(w.OriginFrame), Dir: vec(w.Direction)})
		}
		for id, l := range actions.Look.All() {
			e.Looks = append(e.Looks, LookEntry{Entity: uint32(id), Dir: vec(l.Direction)})
		}
		for id, c := range actions.Cast.All() {
			e.Casts = append(e.Casts, CastEntry{Entity: uint32(id), ID: c.ID, Missile: uint32(c.MissileID), Target: vec(c.Target)})
		}
	}
	if spawns != nil {
		for id, s := range spawns.Players.All() {
			e.Spawns = append(e.Spawns, SpawnEntry{Entity: uint32(id), Kind: core.KindPlayer.String(), Pos: vec(s.Position)})
		}
		for id, s := range spawns.Monsters.All() {
			kind := "rat"
			if s.Kind == core.MonsterBrute {
				kind = "brute"
			}
			e.Spawns = append(e.Spawns, SpawnEntry{Entity: uint32(id), Kind: kind, Pos: vec(s.Position)})
		}
		for _, id := range spawns.Despawns {
			e.Removed = append(e.Removed, uint32(id))
		}
	}
	return e
}

// IsEmpty 是否没有任何内容
func (e Entry) IsEmpty() bool {
	return len(e.Walks) == 0 && len(e.Looks) == 0 && len(e.Casts) == 0 && len(e.Spawns) == 0 && len(e.Removed) == 0
}

// Replay 从空世界开始按记录重新模拟到 end，返回最终世界
func Replay(start, end netcode.FrameNumber, entries []Entry, rules core.Rules) (*core.World, error) {
	sim := netcode.NewSimulation(netcode.Config{Rules: rules}, start, core.NewWorld())
	next := 0
	for frame := start + 1; frame <= end; frame++ {
		sim.Reserve(frame)
		for next < len(entries) && netcode.FrameNumber(entries[next].Frame) < frame {
			next++
		}
		if next < len(entries) && netcode.FrameNumber(entries[next].Frame) == frame {
			if err := load(sim, frame, entries[next]); err != nil {
				return nil, err
			}
		}
		if _, err := sim.Step(frame); err != nil {
			return nil, err
		}
	}
	return sim.Live(), nil
}

func load(sim *netcode.Simulation, frame netcode.FrameNumber, e Entry) error {
	actions, _, err := sim.Actions().UpdateFrame(frame, false)
	if err != nil {
		return err
	}
	for _, w := range e.Walks {
		actions.Walk.Put(core.EntityNetID(w.Entity), netcode.WalkAction{ID: w.ID, OriginFrame: netcode.FrameNumber(w.Origin), Direction: unvec(w.Dir)})
	}
	for _, l := range e.Looks {
		actions.Look.Put(core.EntityNetID(l.Entity), netcode.LookAction{Direction: unvec(l.Dir)})
	}
	for _, c := range e.Casts {
		actions.Cast.Put(core.EntityNetID(c.Entity), netcode.CastAction{ID: c.ID, MissileID: core.EntityNetID(c.Missile), Target: unvec(c.Target)})
	}

	spawns, _, err := sim.Spawns().UpdateFrame(frame, false)
	if err != nil {
		return err
	}
	for _, s := range e.Spawns {
		id := core.EntityNetID(s.Entity)
		switch s.Kind {
		case core.KindPlayer.String():
			spawns.Players.Put(id, netcode.PlayerSpawn{Position: unvec(s.Pos)})
		case "rat":
			spawns.Monsters.Put(id, netcode.MonsterSpawn{Kind: core.MonsterRat, Position: unvec(s.Pos)})
		case "brute":
			spawns.Monsters.Put(id, netcode.MonsterSpawn{Kind: core.MonsterBrute, Position: unvec(s.Pos)})
		default:
			return fmt.Errorf("frame %d: unknown spawn kind %q", frame, s.Kind)
		}
	}
	for _, id := range e.Removed {
		spawns.Despawn(core.EntityNetID(id))
	}
	return nil
}
