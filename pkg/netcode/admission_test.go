package netcode

import (
	"math"
	"testing"

	"github.com/pkg/errors"

	"skirmish/pkg/core"
)

// newServerAt 返回已经模拟到 now-1、并为 now 预留好账本的服务器
func newServerAt(t *testing.T, now FrameNumber) (*Simulation, *Admission) {
	t.Helper()
	w := core.NewWorld()
	w.SpawnPlayer(core.NewPlayer(7, core.V(100, 100)))
	w.SpawnPlayer(core.NewPlayer(8, core.V(300, 300)))
	sim := NewSimulation(Config{}, 0, w)
	for f := FrameNumber(1); f < now; f++ {
		if _, err := sim.Step(f); err != nil {
			t.Fatalf("unexpected error at %d: %v", f, err)
		}
	}
	sim.Reserve(now)
	return sim, NewAdmission(sim, NewIDAllocator(100), 0)
}

func walkAt(sim *Simulation, entity core.EntityNetID, frame FrameNumber) (WalkAction, bool) {
	u, ok := sim.Actions().Get(frame)
	if !ok {
		return WalkAction{}, false
	}
	return u.Walk.Get(entity)
}

func TestAdmitWalkWithinWindowReplaysFromItsFrame(t *testing.T) {
	sim, adm := newServerAt(t, 1000)

	res, err := adm.AdmitWalk(1000, 7, WalkAction{ID: 1, OriginFrame: 998, Direction: core.V(1, 0)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Frame != 998 || res.Adjusted {
		t.Fatalf("expected walk at frame 998 unadjusted, got %d (adjusted=%v)", res.Frame, res.Adjusted)
	}
	if w := sim.Watermark(); w > 998 {
		t.Fatalf("expected watermark <= 998, got %d", w)
	}

	report, err := sim.Step(1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.From != 998 || report.To != 1000 || report.Replayed != 3 {
		t.Fatalf("expected replay 998..1000, got %d..%d (%d frames)", report.From, report.To, report.Replayed)
	}
	if len(report.Revised) != 2 {
		t.Fatalf("expected frames 998 and 999 revised, got %v", report.Revised)
	}
	snap, _ := sim.Snapshot(998)
	if p, _ := snap.Player(7); p.Position.X <= 100 {
		t.Fatalf("expected player to have walked by frame 998, got %v", p.Position)
	}
}

func TestAdmitWalkClampsToEarliestRetainable(t *testing.T) {
	sim, adm := newServerAt(t, 1000)

	res, err := adm.AdmitWalk(1000, 8, WalkAction{ID: 1, OriginFrame: 900, Direction: core.V(0, 1)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Frame != 939 || !res.Adjusted {
		t.Fatalf("expected walk clamped to 939, got %d (adjusted=%v)", res.Frame, res.Adjusted)
	}
	if _, ok := walkAt(sim, 8, 939); !ok {
		t.Fatalf("expected walk stored at 939")
	}
}

func TestBadlyLateWalkWithNewerActionIsDiscarded(t *testing.T) {
	sim, adm := newServerAt(t, 1000)

	if _, err := adm.AdmitWalk(1000, 7, WalkAction{ID: 1, OriginFrame: 990, Direction: core.V(1, 0)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := adm.AdmitWalk(1000, 7, WalkAction{ID: 2, OriginFrame: 870, Direction: core.V(-1, 0)})
	if !errors.Is(err, ErrRejectedBadlyLate) || !IsRejected(err) {
		t.Fatalf("expected ErrRejectedBadlyLate, got %v", err)
	}
	if len(res.Discarded) != 1 || res.Discarded[0] != 2 {
		t.Fatalf("expected discard notification for action 2, got %v", res.Discarded)
	}
	for f, u := range sim.Actions().From(0) {
		if w, ok := u.Walk.Get(7); ok && w.ID == 2 {
			t.Fatalf("expected discarded walk never applied, found at frame %d", f)
		}
	}

	// 重发同一条指令仍然得到丢弃通知
	res, err = adm.AdmitWalk(1000, 7, WalkAction{ID: 2, OriginFrame: 870, Direction: core.V(-1, 0)})
	if err != nil || len(res.Discarded) != 1 {
		t.Fatalf("expected repeated discard without error, got %v (%v)", res.Discarded, err)
	}
}

func TestBadlyLateWalkWithoutNewerActionIsClamped(t *testing.T) {
	_, adm := newServerAt(t, 1000)

	res, err := adm.AdmitWalk(1000, 7, WalkAction{ID: 1, OriginFrame: 800, Direction: core.V(1, 0)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Frame != 939 || len(res.Discarded) != 0 {
		t.Fatalf("expected clamp to 939 with no discard, got %d %v", res.Frame, res.Discarded)
	}
}

func TestWalkConflictRehomesDisplacedAction(t *testing.T) {
	sim, adm := newServerAt(t, 1000)

	if _, err := adm.AdmitWalk(1000, 7, WalkAction{ID: 1, OriginFrame: 930, Direction: core.V(1, 0)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := adm.AdmitWalk(1000, 7, WalkAction{ID: 2, OriginFrame: 920, Direction: core.V(0, 1)})
	if err != nil || len(res.Discarded) != 0 {
		t.Fatalf("expected no discard, got %v (%v)", res.Discarded, err)
	}
	if w, _ := walkAt(sim, 7, 939); w.ID != 2 {
		t.Fatalf("expected newcomer at 939, got action %d", w.ID)
	}
	if w, _ := walkAt(sim, 7, 940); w.ID != 1 {
		t.Fatalf("expected displaced action moved to 940, got action %d", w.ID)
	}

	// 被挤出的指令排在新指令之前时直接丢弃
	res, err = adm.AdmitWalk(1000, 7, WalkAction{ID: 3, OriginFrame: 935, Direction: core.V(0, -1)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Discarded) != 1 || res.Discarded[0] != 2 {
		t.Fatalf("expected action 2 discarded, got %v", res.Discarded)
	}
}

func TestWalkRehomedPastCurrentFrameIsReported(t *testing.T) {
	_, adm := newServerAt(t, 1000)

	for f := FrameNumber(940); f <= 1000; f++ {
		if _, err := adm.AdmitWalk(1000, 7, WalkAction{ID: uint64(f), OriginFrame: f, Direction: core.V(1, 0)}); err != nil {
			t.Fatalf("unexpected error at %d: %v", f, err)
		}
	}
	if _, err := adm.AdmitWalk(1000, 7, WalkAction{ID: 1, OriginFrame: 935}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := adm.AdmitWalk(1000, 7, WalkAction{ID: 2, OriginFrame: 930})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Discarded) != 1 || res.Discarded[0] != 1000 {
		t.Fatalf("expected the frame-1000 walk to be pushed out, got %v", res.Discarded)
	}
}

func TestDuplicateWalkIsNoop(t *testing.T) {
	sim, adm := newServerAt(t, 1000)
	action := WalkAction{ID: 5, OriginFrame: 995, Direction: core.V(1, 0)}
	if _, err := adm.AdmitWalk(1000, 7, action); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := sim.Step(1000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := adm.AdmitWalk(1000, 7, action)
	if err != nil || res.Frame != 995 {
		t.Fatalf("expected duplicate to report frame 995, got %d (%v)", res.Frame, err)
	}
	if w := sim.Watermark(); w != 1001 {
		t.Fatalf("expected duplicate to leave watermark at 1001, got %d", w)
	}
}

func TestNonFiniteActionsAreRejected(t *testing.T) {
	sim, adm := newServerAt(t, 100)
	nan := core.V(math.NaN(), 0)
	if _, err := adm.AdmitWalk(100, 7, WalkAction{ID: 1, OriginFrame: 100, Direction: nan}); !errors.Is(err, ErrRejectedMalformed) || !IsRejected(err) {
		t.Fatalf("expected ErrRejectedMalformed for walk, got %v", err)
	}
	if _, err := adm.AdmitLook(100, 7, 100, LookAction{Direction: core.V(0, math.Inf(1))}); !errors.Is(err, ErrRejectedMalformed) {
		t.Fatalf("expected ErrRejectedMalformed for look, got %v", err)
	}
	if _, err := adm.AdmitCast(100, 7, 100, 1, core.V(math.Inf(-1), 0)); !errors.Is(err, ErrRejectedMalformed) {
		t.Fatalf("expected ErrRejectedMalformed for cast, got %v", err)
	}
	if _, ok := walkAt(sim, 7, 100); ok {
		t.Fatalf("expected no walk stored for the malformed action")
	}

	if _, err := sim.Step(100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap, ok := sim.Snapshot(100)
	if !ok {
		t.Fatalf("expected snapshot at 100")
	}
	if !snap.Equal(snap) {
		t.Fatalf("expected snapshot to equal itself")
	}
	if p, ok := snap.Player(7); !ok || !p.Position.Finite() {
		t.Fatalf("expected player 7 with a finite position")
	}
}

func TestForgetAllowsReusedActionIDs(t *testing.T) {
	sim, adm := newServerAt(t, 100)
	if _, err := adm.AdmitWalk(100, 7, WalkAction{ID: 1, OriginFrame: 95, Direction: core.V(1, 0)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := adm.AdmitCast(100, 7, 100, 1, core.V(300, 100)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	adm.Forget(7)
	res, err := adm.AdmitWalk(100, 7, WalkAction{ID: 1, OriginFrame: 98, Direction: core.V(0, 1)})
	if err != nil || res.Frame != 98 {
		t.Fatalf("expected reused walk id at 98, got %d (%v)", res.Frame, err)
	}
	if w, ok := walkAt(sim, 7, 98); !ok || w.Direction != core.V(0, 1) {
		t.Fatalf("expected the new walk stored at 98, got %+v", w)
	}
	cast, err := adm.AdmitCast(100, 7, 101, 1, core.V(100, 300))
	if err != nil || cast.CastID != 2 || cast.Frame != 101 {
		t.Fatalf("expected a fresh cast at 101 with sequence 2, got %+v (%v)", cast, err)
	}
}

func TestFutureActionsAreBounded(t *testing.T) {
	sim, adm := newServerAt(t, 1000)

	res, err := adm.AdmitWalk(1000, 7, WalkAction{ID: 1, OriginFrame: 1010, Direction: core.V(1, 0)})
	if err != nil || res.Frame != 1010 {
		t.Fatalf("expected future walk at 1010, got %d (%v)", res.Frame, err)
	}
	if sim.Actions().Latest() != 1010 || sim.States().Latest() != 1010 {
		t.Fatalf("expected ledger and snapshots reserved to 1010, got %d and %d",
			sim.Actions().Latest(), sim.States().Latest())
	}
	if _, err := adm.AdmitWalk(1000, 7, WalkAction{ID: 2, OriginFrame: 1031}); !errors.Is(err, ErrRejectedTooFarAhead) {
		t.Fatalf("expected ErrRejectedTooFarAhead, got %v", err)
	}
}

func TestCastGetsServerSequenceAndNextFreeFrame(t *testing.T) {
	sim, adm := newServerAt(t, 1000)

	first, err := adm.AdmitCast(1000, 7, 1000, 11, core.V(200, 100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := adm.AdmitCast(1000, 7, 1000, 12, core.V(200, 100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.CastID != 1 || second.CastID != 2 {
		t.Fatalf("expected cast ids 1 and 2, got %d and %d", first.CastID, second.CastID)
	}
	if first.MissileID == second.MissileID {
		t.Fatalf("expected distinct missile ids, got %d", first.MissileID)
	}
	if first.Frame != 1000 || second.Frame != 1001 {
		t.Fatalf("expected frames 1000 and 1001, got %d and %d", first.Frame, second.Frame)
	}
	u, _ := sim.Actions().Get(1001)
	if c, _ := u.Cast.Get(7); c.ClientID != 12 {
		t.Fatalf("expected client cast 12 at 1001, got %d", c.ClientID)
	}

	again, err := adm.AdmitCast(1000, 7, 1000, 11, core.V(200, 100))
	if err != nil || again.CastID != 1 || again.MissileID != first.MissileID {
		t.Fatalf("expected resent cast to be a no-op, got %+v (%v)", again, err)
	}
}

func TestLookIsLastWriterWins(t *testing.T) {
	sim, adm := newServerAt(t, 1000)
	for _, dir := range []core.Vec2{core.V(1, 0), core.V(0, 1)} {
		if _, err := adm.AdmitLook(1000, 7, 999, LookAction{Direction: dir}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	u, _ := sim.Actions().Get(999)
	if l, _ := u.Look.Get(7); l.Direction != core.V(0, 1) {
		t.Fatalf("expected last look to win, got %v", l.Direction)
	}
}

func TestSpawnsAreScheduled(t *testing.T) {
	sim, adm := newServerAt(t, 10)
	id, err := adm.SpawnMonster(20, core.MonsterRat, core.V(400, 300))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := sim.Step(19); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := sim.Live().Monster(id); ok {
		t.Fatalf("expected monster not yet spawned at 19")
	}
	if _, err := sim.Step(20); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := sim.Live().Monster(id); !ok {
		t.Fatalf("expected monster %d spawned at 20", id)
	}
}
