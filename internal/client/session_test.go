package client

import (
	"testing"

	"skirmish/pkg/protocol"
)

func TestDuplicatePauseEpochIsIgnored(t *testing.T) {
	var s Session
	if !s.OnPause(&protocol.PauseWaitingForPlayers{Epoch: 5, Lagging: []uint32{2}}) {
		t.Fatalf("expected first pause to apply")
	}
	if s.OnPause(&protocol.PauseWaitingForPlayers{Epoch: 5, Lagging: []uint32{3}}) {
		t.Fatalf("expected repeated epoch to be ignored")
	}
	if got := s.Lagging(); len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected lagging [2], got %v", got)
	}
	if s.OnUnpause(&protocol.UnpauseWaitingForPlayers{Epoch: 4}) {
		t.Fatalf("expected older unpause to be ignored")
	}
	if !s.Paused() {
		t.Fatalf("expected still paused")
	}
	if !s.OnUnpause(&protocol.UnpauseWaitingForPlayers{Epoch: 5}) {
		t.Fatalf("expected unpause of current epoch to apply")
	}
	if s.OnUnpause(&protocol.UnpauseWaitingForPlayers{Epoch: 5}) {
		t.Fatalf("expected second unpause of the same epoch to be ignored")
	}
	if s.OnPause(&protocol.PauseWaitingForPlayers{Epoch: 5}) {
		t.Fatalf("expected stale pause after unpause to be ignored")
	}
	if s.Paused() {
		t.Fatalf("expected running after unpause")
	}
	if !s.OnPause(&protocol.PauseWaitingForPlayers{Epoch: 6}) || s.Epoch() != 6 {
		t.Fatalf("expected newer epoch to pause again, epoch %d", s.Epoch())
	}
}

func TestUnpauseWithNewerEpochResumes(t *testing.T) {
	var s Session
	s.OnPause(&protocol.PauseWaitingForPlayers{Epoch: 2})
	// 丢失了中间的暂停消息，直接收到更新纪元的恢复
	if !s.OnUnpause(&protocol.UnpauseWaitingForPlayers{Epoch: 3}) {
		t.Fatalf("expected newer unpause to apply")
	}
	if s.Paused() || s.Epoch() != 3 {
		t.Fatalf("expected running at epoch 3, got paused=%v epoch=%d", s.Paused(), s.Epoch())
	}
	if s.OnPause(&protocol.PauseWaitingForPlayers{Epoch: 3}) {
		t.Fatalf("expected pause of an already resumed epoch to be ignored")
	}
}

func TestAckOnlyOnProgress(t *testing.T) {
	var s Session
	if _, ok := s.Ack(true); ok {
		t.Fatalf("expected no ack before any update")
	}
	s.OnApplied(4)
	ack, ok := s.Ack(false)
	if !ok || ack.Frame != 4 {
		t.Fatalf("expected ack 4, got %v %v", ack, ok)
	}
	if _, ok := s.Ack(false); ok {
		t.Fatalf("expected no ack without progress")
	}
	s.OnApplied(3)
	if s.Highest() != 4 {
		t.Fatalf("expected highest to stay 4, got %d", s.Highest())
	}
	if ack, ok := s.Ack(true); !ok || ack.Frame != 4 {
		t.Fatalf("expected forced ack 4, got %v %v", ack, ok)
	}
}

func TestHandshakeResetsProgressAndKeepsToken(t *testing.T) {
	var s Session
	s.OnHandshake(&protocol.Handshake{NetID: 1, ConnectionID: 1, SessionID: 1, Token: "first"})
	s.OnApplied(9)
	s.OnDisconnect("kicked")

	s.OnHandshake(&protocol.Handshake{NetID: 1, ConnectionID: 3, SessionID: 2})
	if s.Token != "first" {
		t.Fatalf("expected token to be kept, got %q", s.Token)
	}
	if s.Highest() != 0 || s.Reason() != "" {
		t.Fatalf("expected fresh session state, got highest %d reason %q", s.Highest(), s.Reason())
	}
	if s.SessionID != 2 || s.ConnectionID != 3 {
		t.Fatalf("expected new identity, got %+v", s)
	}
}

func TestRosterUpdatesHost(t *testing.T) {
	var s Session
	s.OnHandshake(&protocol.Handshake{ConnectionID: 2, SessionID: 1})
	s.OnRoster(&protocol.UpdateRoomPlayers{Roster: []protocol.RosterEntry{
		{ConnectionID: 1, Nickname: "alice", IsHost: false},
		{ConnectionID: 2, Nickname: "bob", IsHost: true},
	}})
	if !s.IsHost {
		t.Fatalf("expected host after migration")
	}
}

func TestOldNetStatusIsIgnored(t *testing.T) {
	var s Session
	s.OnNetStatus(&protocol.ReportPlayersNetStatus{Epoch: 3, Stats: []protocol.PlayerNetStatus{{ConnectionID: 1, RTTMillis: 40}}})
	s.OnNetStatus(&protocol.ReportPlayersNetStatus{Epoch: 2, Stats: []protocol.PlayerNetStatus{{ConnectionID: 1, RTTMillis: 900}}})
	if got := s.NetStatus(); len(got) != 1 || got[0].RTTMillis != 40 {
		t.Fatalf("expected newest report, got %v", got)
	}
}
