package netcode

import (
	"testing"

	"skirmish/pkg/core"
)

func TestBuildWorldUpdateCarriesChangesAndRemovals(t *testing.T) {
	prev := core.NewWorld()
	prev.SpawnPlayer(core.NewPlayer(7, core.V(10, 10)))
	prev.SpawnPlayer(core.NewPlayer(8, core.V(50, 50)))
	prev.SpawnMissile(core.Missile{NetID: 31, Owner: 7, TTL: 5})

	next := prev.Clone()
	p, _ := next.Player(7)
	p.Position = core.V(12, 10)
	next.Despawn(31)
	next.SpawnMonster(core.NewMonster(20, core.MonsterRat, core.V(100, 100)))

	u := BuildWorldUpdate(3, prev, next, nil)
	if u.Players.Len() != 1 || !u.Players.Has(7) {
		t.Fatalf("expected only player 7, got %d players", u.Players.Len())
	}
	if !u.Monsters.Has(20) {
		t.Fatalf("expected new monster 20")
	}
	if len(u.Removed) != 1 || u.Removed[0] != 31 {
		t.Fatalf("expected missile 31 removed, got %v", u.Removed)
	}

	previous := NewServerWorldUpdate(3)
	previous.Players.Put(8, core.NewPlayer(8, core.V(60, 60)))
	u = BuildWorldUpdate(3, prev, next, &previous)
	if got, _ := u.Players.Get(8); got.Position != core.V(50, 50) {
		t.Fatalf("expected player 8 resent with current state, got %v", got.Position)
	}
}

func TestKeyframeRebuildsWorld(t *testing.T) {
	w := core.NewWorld()
	ref := w.SpawnPlayer(core.NewPlayer(7, core.V(10, 10)))
	w.SpawnMonster(core.Monster{NetID: 20, Health: 5, Target: ref})
	w.SpawnMissile(core.Missile{NetID: 31, Owner: 7, TTL: 5})

	kf := Keyframe(40, w)
	rebuilt := WorldFromKeyframe(&kf)
	if !rebuilt.Equal(w) {
		t.Fatalf("expected keyframe to rebuild an equal world")
	}
}
