package server

import (
	"testing"
	"time"
)

var testThresholds = thresholds{heartbeatLag: 10, pauseLag: 8, resumeLag: 2}

func TestPeerFallsBehindOnSilentHeartbeat(t *testing.T) {
	p := &peer{state: PeerActive, heartbeatAck: 100}
	if s := p.advance(110, testThresholds); s != PeerActive {
		t.Fatalf("expected active, got %s", s)
	}
	if s := p.advance(111, testThresholds); s != PeerLagging {
		t.Fatalf("expected lagging, got %s", s)
	}
}

func TestPeerCatchesUpThenRecovers(t *testing.T) {
	p := &peer{state: PeerLagging, heartbeatAck: 200, lag: 5}
	if s := p.advance(201, testThresholds); s != PeerCatchingUp {
		t.Fatalf("expected catching up, got %s", s)
	}
	if s := p.advance(202, testThresholds); s != PeerCatchingUp {
		t.Fatalf("expected still catching up with lag %.1f, got %s", p.lag, s)
	}
	for range 30 {
		p.sampleLag(0)
	}
	if s := p.advance(203, testThresholds); s != PeerActive {
		t.Fatalf("expected active after lag drained to %.2f, got %s", p.lag, s)
	}
}

func TestCatchingUpRelapses(t *testing.T) {
	p := &peer{state: PeerCatchingUp, heartbeatAck: 50, lag: 9}
	if s := p.advance(51, testThresholds); s != PeerLagging {
		t.Fatalf("expected lagging, got %s", s)
	}
}

func TestHeartbeatEchoIsMonotonic(t *testing.T) {
	p := &peer{state: PeerActive}
	now := time.Now()
	p.onHeartbeat(30, now.Add(-40*time.Millisecond), now)
	p.onHeartbeat(20, now.Add(-5*time.Millisecond), now)
	if p.heartbeatAck != 30 {
		t.Fatalf("expected heartbeat ack 30, got %d", p.heartbeatAck)
	}
	if p.rtt != 40*time.Millisecond {
		t.Fatalf("expected rtt 40ms, got %s", p.rtt)
	}
}

func TestJoiningPeerBecomesActiveOnKeyframeAck(t *testing.T) {
	p := &peer{state: PeerJoining, needKeyframe: true, lag: 50}
	if !p.waiting() {
		t.Fatalf("expected joining peer to hold the room")
	}
	p.joined(12)
	if p.state != PeerActive || p.needKeyframe || p.lag != 0 || p.heartbeatAck != 12 {
		t.Fatalf("unexpected peer after join %+v", p)
	}
}
