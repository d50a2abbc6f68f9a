package ai

import (
	"testing"

	"skirmish/pkg/core"
)

func TestControllerFleesNearbyMonster(t *testing.T) {
	w := core.NewWorld()
	w.SpawnPlayer(core.NewPlayer(1, core.V(320, 240)))
	w.SpawnMonster(core.NewMonster(10, core.MonsterRat, core.V(350, 240)))

	d := NewController(1, &ConfigHard).Decide(w, 0)
	if d.Walk.X >= 0 {
		t.Fatalf("expected to walk away from the monster, got %v", d.Walk)
	}
	if !d.HasAim || d.Aim != core.V(350, 240) || !d.Cast {
		t.Fatalf("expected to shoot back while fleeing, got %+v", d)
	}
}

func TestControllerKeepsRangeFromTarget(t *testing.T) {
	w := core.NewWorld()
	w.SpawnPlayer(core.NewPlayer(1, core.V(100, 240)))
	w.SpawnMonster(core.NewMonster(10, core.MonsterBrute, core.V(450, 240)))
	dead := core.NewMonster(11, core.MonsterRat, core.V(180, 240))
	dead.Dead = true
	w.SpawnMonster(dead)

	d := NewController(1, &ConfigHard).Decide(w, 0)
	if d.Aim != core.V(450, 240) || !d.Cast {
		t.Fatalf("expected to engage the live monster, got %+v", d)
	}
	if d.Walk.X <= 0 {
		t.Fatalf("expected to close distance, got %v", d.Walk)
	}
}

func TestControllerWandersAwayFromWalls(t *testing.T) {
	w := core.NewWorld()
	w.SpawnPlayer(core.NewPlayer(1, core.V(core.PlayerRadius, core.PlayerRadius)))

	c := NewController(1, &ConfigHard)
	for frame := range uint64(200) {
		d := c.Decide(w, frame)
		if d.Walk.IsZero() {
			t.Fatalf("expected to keep moving at frame %d", frame)
		}
		if d.Walk.X < 0 || d.Walk.Y < 0 {
			t.Fatalf("expected not to walk into the corner, got %v", d.Walk)
		}
		if d.HasAim {
			t.Fatalf("expected no aim without monsters")
		}
	}
}

func TestControllerIsDeterministic(t *testing.T) {
	run := func() []Decision {
		w := core.NewWorld()
		w.SpawnPlayer(core.NewPlayer(3, core.V(320, 240)))
		c := NewController(3, &ConfigNormal)
		var out []Decision
		for frame := range uint64(300) {
			out = append(out, c.Decide(w, frame))
		}
		return out
	}
	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected identical decisions at %d, got %+v and %+v", i, a[i], b[i])
		}
	}
}

func TestDeadPlayerDoesNothing(t *testing.T) {
	w := core.NewWorld()
	p := core.NewPlayer(1, core.V(320, 240))
	p.Dead = true
	w.SpawnPlayer(p)
	if d := NewController(1, nil).Decide(w, 0); d != (Decision{}) {
		t.Fatalf("expected no decision, got %+v", d)
	}
}
