package netcode

import (
	"testing"

	"github.com/pkg/errors"

	"skirmish/pkg/core"
)

func arenaWorld() *core.World {
	w := core.NewWorld()
	w.SpawnPlayer(core.NewPlayer(7, core.V(100, 100)))
	w.SpawnPlayer(core.NewPlayer(8, core.V(500, 380)))
	w.SpawnMonster(core.NewMonster(20, core.MonsterRat, core.V(320, 240)))
	w.SpawnMonster(core.NewMonster(21, core.MonsterBrute, core.V(200, 400)))
	return w
}

func stepTo(t *testing.T, sim *Simulation, from, to FrameNumber) {
	t.Helper()
	for f := from; f <= to; f++ {
		if _, err := sim.Step(f); err != nil {
			t.Fatalf("unexpected error at %d: %v", f, err)
		}
	}
}

func TestReplayIsDeterministic(t *testing.T) {
	run := func() *Simulation {
		sim := NewSimulation(Config{}, 0, arenaWorld())
		adm := NewAdmission(sim, NewIDAllocator(100), 0)
		for f := FrameNumber(1); f <= 200; f++ {
			sim.Reserve(f)
			switch f {
			case 10:
				_, _ = adm.AdmitWalk(f, 7, WalkAction{ID: 1, OriginFrame: f, Direction: core.V(1, 0.5)})
			case 40:
				_, _ = adm.AdmitCast(f, 7, f, 1, core.V(320, 240))
			case 90:
				_, _ = adm.AdmitWalk(f, 8, WalkAction{ID: 1, OriginFrame: f - 20, Direction: core.V(-1, 0)})
			}
			if _, err := sim.Step(f); err != nil {
				t.Fatalf("unexpected error at %d: %v", f, err)
			}
		}
		return sim
	}

	a, b := run(), run()
	for f := FrameNumber(1); f <= 200; f++ {
		sa, _ := a.Snapshot(f)
		sb, _ := b.Snapshot(f)
		if !sa.Equal(sb) {
			t.Fatalf("expected identical snapshots at frame %d", f)
		}
	}
}

func TestLateInputConvergesWithOnTimeInput(t *testing.T) {
	onTime := NewSimulation(Config{}, 0, arenaWorld())
	onTimeAdm := NewAdmission(onTime, NewIDAllocator(100), 0)
	for f := FrameNumber(1); f <= 101; f++ {
		onTime.Reserve(f)
		switch f {
		case 50:
			if _, err := onTimeAdm.AdmitWalk(f, 7, WalkAction{ID: 1, OriginFrame: 50, Direction: core.V(1, 1)}); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		case 60:
			if _, err := onTimeAdm.AdmitCast(f, 7, 60, 1, core.V(320, 240)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if _, err := onTime.Step(f); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	late := NewSimulation(Config{}, 0, arenaWorld())
	lateAdm := NewAdmission(late, NewIDAllocator(100), 0)
	stepTo(t, late, 1, 100)
	late.Reserve(101)
	if _, err := lateAdm.AdmitWalk(101, 7, WalkAction{ID: 1, OriginFrame: 50, Direction: core.V(1, 1)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := lateAdm.AdmitCast(101, 7, 60, 1, core.V(320, 240)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	report, err := late.Step(101)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.From != 50 || len(report.Revised) == 0 {
		t.Fatalf("expected replay from 50 with revisions, got from %d revised %d", report.From, len(report.Revised))
	}

	for f := FrameNumber(50); f <= 101; f++ {
		a, _ := onTime.Snapshot(f)
		b, _ := late.Snapshot(f)
		if !a.Equal(b) {
			t.Fatalf("expected late replay to converge at frame %d", f)
		}
	}
	if !onTime.Live().Equal(late.Live()) {
		t.Fatalf("expected identical live worlds")
	}
}

func TestReplayBeyondRetainedHistoryFails(t *testing.T) {
	sim := NewSimulation(Config{Capacity: 10}, 0, arenaWorld())
	stepTo(t, sim, 1, 20)
	sim.Actions().MarkUpdated(sim.Actions().Oldest())

	_, err := sim.Step(21)
	if !errors.Is(err, ErrFrameTooOld) {
		t.Fatalf("expected ErrFrameTooOld, got %v", err)
	}
}

func TestStepWithoutChangesOnlySimulatesNewFrames(t *testing.T) {
	sim := NewSimulation(Config{}, 0, arenaWorld())
	stepTo(t, sim, 1, 10)
	report, err := sim.Step(12)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.From != 11 || report.Replayed != 2 || len(report.Revised) != 0 {
		t.Fatalf("expected frames 11..12 simulated once, got %+v", report)
	}
	report, _ = sim.Step(12)
	if report.Replayed != 0 {
		t.Fatalf("expected settled step to do nothing, got %d frames", report.Replayed)
	}
}

func TestPredictingClientAdoptsServerStates(t *testing.T) {
	server := NewSimulation(Config{}, 0, arenaWorld())
	adm := NewAdmission(server, NewIDAllocator(100), 0)
	server.Reserve(5)
	if _, err := adm.AdmitWalk(5, 7, WalkAction{ID: 1, OriginFrame: 5, Direction: core.V(0, 1)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stepTo(t, server, 1, 30)

	client := NewSimulation(Config{Mode: ModePredicting}, 0, arenaWorld())
	stepTo(t, client, 1, 30)
	if p, _ := client.Live().Player(7); p.Position != core.V(100, 100) {
		t.Fatalf("expected client without the walk to stand still, got %v", p.Position)
	}

	for f := FrameNumber(1); f <= 30; f++ {
		prev, _ := server.Snapshot(f - 1)
		next, _ := server.Snapshot(f)
		u := BuildWorldUpdate(f, prev, next, nil)
		if err := client.ApplyServerUpdate(&u); err != nil {
			t.Fatalf("unexpected error at %d: %v", f, err)
		}
	}
	if _, err := client.Step(30); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want, _ := server.Live().Player(7)
	got, _ := client.Live().Player(7)
	if *got != *want {
		t.Fatalf("expected client player %+v, got %+v", *want, *got)
	}
}

func TestPredictingClientReplaysRelayedActions(t *testing.T) {
	client := NewSimulation(Config{Mode: ModePredicting}, 0, arenaWorld())
	stepTo(t, client, 1, 10)

	u := NewServerWorldUpdate(12)
	u.Actions.Walk.Put(8, WalkAction{ID: 3, OriginFrame: 12, Direction: core.V(-1, 0)})
	if err := client.ApplyServerUpdate(&u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stepTo(t, client, 11, 13)
	p, _ := client.Live().Player(8)
	if p.Position.X != 500-2*core.PlayerSpeed {
		t.Fatalf("expected player 8 to walk two frames, got %v", p.Position)
	}
}

func TestServerRecordKeepsNewestRevision(t *testing.T) {
	client := NewSimulation(Config{Mode: ModePredicting}, 0, arenaWorld())
	stepTo(t, client, 1, 5)

	newer := NewServerWorldUpdate(3)
	newer.Revision = 9
	newer.Players.Put(7, core.NewPlayer(7, core.V(150, 100)))
	older := NewServerWorldUpdate(3)
	older.Revision = 4
	older.Players.Put(7, core.NewPlayer(7, core.V(120, 100)))
	older.Removed = []core.EntityNetID{8}

	for _, u := range []*ServerWorldUpdate{&newer, &older} {
		if err := client.ApplyServerUpdate(u); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	stored, _ := client.ServerUpdates().Get(3)
	if stored.Revision != 9 || len(stored.Removed) != 0 {
		t.Fatalf("expected revision 9 without removals, got revision %d removed %v", stored.Revision, stored.Removed)
	}
	if p, _ := stored.Players.Get(7); p.Position != core.V(150, 100) {
		t.Fatalf("expected newest state to survive, got %v", p.Position)
	}

	stepTo(t, client, 5, 5)
	if _, ok := client.Live().Player(8); !ok {
		t.Fatalf("expected stale removal to be ignored")
	}
}
