package core

import "testing"

func TestArenaReusesSlotWithNewGeneration(t *testing.T) {
	var a Arena[Monster]
	first := a.Insert(NewMonster(1, MonsterRat, V(10, 10)))
	if !a.Remove(first) {
		t.Fatalf("expected remove to succeed")
	}
	second := a.Insert(NewMonster(2, MonsterRat, V(20, 20)))
	if second.Index != first.Index {
		t.Fatalf("expected slot %d to be reused, got %d", first.Index, second.Index)
	}
	if second.Generation != first.Generation+1 {
		t.Fatalf("expected generation %d, got %d", first.Generation+1, second.Generation)
	}
	if _, ok := a.Get(first); ok {
		t.Fatalf("stale reference must not resolve")
	}
	m, ok := a.Get(second)
	if !ok || m.NetID != 2 {
		t.Fatalf("expected monster 2, got %+v (ok=%v)", m, ok)
	}
}

func TestArenaZeroRefIsInvalid(t *testing.T) {
	var a Arena[Player]
	a.Insert(NewPlayer(1, V(0, 0)))
	if _, ok := a.Get(EntityRef{}); ok {
		t.Fatalf("zero reference must not resolve")
	}
}

func TestWorldCloneIsIndependent(t *testing.T) {
	w := NewWorld()
	w.SpawnPlayer(NewPlayer(7, V(100, 100)))
	clone := w.Clone()

	p, _ := clone.Player(7)
	p.Position = V(1, 1)

	orig, _ := w.Player(7)
	if orig.Position != V(100, 100) {
		t.Fatalf("clone mutation leaked into original: %+v", orig.Position)
	}
	if w.Equal(clone) {
		t.Fatalf("expected worlds to differ after mutation")
	}
}

func TestWorldDespawnAndLookup(t *testing.T) {
	w := NewWorld()
	w.SpawnPlayer(NewPlayer(1, V(50, 50)))
	w.SpawnMonster(NewMonster(2, MonsterBrute, V(200, 200)))

	if kind, _, ok := w.Lookup(2); !ok || kind != KindMonster {
		t.Fatalf("expected monster lookup, got %v ok=%v", kind, ok)
	}
	if !w.Despawn(2) {
		t.Fatalf("expected despawn to succeed")
	}
	if _, ok := w.Monster(2); ok {
		t.Fatalf("monster 2 should be gone")
	}
	if w.Despawn(2) {
		t.Fatalf("second despawn must be a no-op")
	}
}

func TestRebuildIndexAfterClone(t *testing.T) {
	w := NewWorld()
	w.SpawnPlayer(NewPlayer(3, V(10, 10)))
	w.SpawnMissile(Missile{NetID: 9, Owner: 3, TTL: 5})
	c := w.Clone()
	c.RebuildIndex()
	if _, ok := c.Missile(9); !ok {
		t.Fatalf("expected missile 9 after index rebuild")
	}
	if _, ok := c.Player(3); !ok {
		t.Fatalf("expected player 3 after index rebuild")
	}
}
