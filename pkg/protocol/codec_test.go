package protocol

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"skirmish/pkg/core"
	"skirmish/pkg/netcode"
)

func roundTrip(t *testing.T, sessionID uint32, m Message) Envelope {
	t.Helper()
	data, err := Marshal(sessionID, m)
	if err != nil {
		t.Fatalf("marshal %s: %v", m.Type(), err)
	}
	env, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal %s: %v", m.Type(), err)
	}
	if env.SessionID != sessionID {
		t.Fatalf("expected session %d, got %d", sessionID, env.SessionID)
	}
	if env.Message.Type() != m.Type() {
		t.Fatalf("expected %s, got %s", m.Type(), env.Message.Type())
	}
	return env
}

func TestWalkActionsKeepExactFloats(t *testing.T) {
	dir := core.V(0.1, -0.7).Normalize()
	env := roundTrip(t, 3, &WalkActions{Frame: 90, Updates: []WalkUpdate{{ID: 4, Frame: 100, Direction: dir}}})
	got := env.Message.(*WalkActions)
	if got.Frame != 90 || len(got.Updates) != 1 {
		t.Fatalf("expected frame 90 with one update, got %+v", got)
	}
	if got.Updates[0].Direction != dir || got.Updates[0].Frame != 100 || got.Updates[0].ID != 4 {
		t.Fatalf("expected %+v, got %+v", dir, got.Updates[0])
	}
}

func TestUpdateWorldRoundTrip(t *testing.T) {
	u := netcode.NewServerWorldUpdate(120)
	u.Revision = 125
	p := core.NewPlayer(7, core.V(33.25, 81.5))
	p.WalkDirection = core.V(1, 0)
	p.Health = -3
	p.CastCooldown = 12
	u.Players.Put(7, p)
	u.Monsters.Put(20, netcode.MonsterState{Kind: core.MonsterBrute, Position: core.V(1, 2), Health: 100, Target: 7})
	u.Missiles.Put(40, core.Missile{NetID: 40, Owner: 7, Position: core.V(5, 5), Velocity: core.V(6, 0), TTL: 80, Damage: 20})
	u.Removed = []core.EntityNetID{30, 31}
	u.Actions.Walk.Put(7, netcode.WalkAction{ID: 9, OriginFrame: 118, Direction: core.V(0, -1)})
	u.Actions.Look.Put(7, netcode.LookAction{Direction: core.V(1, 1).Normalize()})
	u.Actions.Cast.Put(7, netcode.CastAction{ID: 2, ClientID: 5, MissileID: 40, Target: core.V(300, 10)})
	u.Spawns.Players.Put(8, netcode.PlayerSpawn{Position: core.V(64, 64)})
	u.Spawns.Monsters.Put(21, netcode.MonsterSpawn{Kind: core.MonsterRat, Position: core.V(9, 9)})
	u.Spawns.Despawn(19)

	env := roundTrip(t, 1, &UpdateWorld{UpdateID: 125, Keyframe: true, Updates: []netcode.ServerWorldUpdate{u}})
	got := env.Message.(*UpdateWorld)
	if got.UpdateID != 125 || !got.Keyframe || len(got.Updates) != 1 {
		t.Fatalf("unexpected header %+v", got)
	}
	if !got.Updates[0].SameContent(&u) || got.Updates[0].Revision != 125 {
		t.Fatalf("expected decoded update to match the original")
	}
}

func TestLargePayloadIsCompressed(t *testing.T) {
	m := &UpdateRoomPlayers{}
	for i := 0; i < 4; i++ {
		m.Roster = append(m.Roster, RosterEntry{ConnectionID: uint32(i + 1), Nickname: strings.Repeat("a", 400), NetID: uint32(i + 1)})
	}
	data, err := Marshal(2, m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) > 1000 {
		t.Fatalf("expected compressed envelope, got %d bytes", len(data))
	}
	env, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := env.Message.(*UpdateRoomPlayers); len(got.Roster) != 4 || got.Roster[3].Nickname != m.Roster[3].Nickname {
		t.Fatalf("expected roster to survive compression, got %+v", got.Roster)
	}
}

func TestServerMessagesRoundTrip(t *testing.T) {
	msgs := []Message{
		&Handshake{NetID: 7, IsHost: true, ConnectionID: 2, SessionID: 3, Token: "tok"},
		&StartGame{NetIDs: []uint32{7, 8}, StartFrame: 10},
		&DiscardWalkActions{ActionIDs: []uint64{3, 9}},
		&PauseWaitingForPlayers{Epoch: 5, Lagging: []uint32{2}},
		&UnpauseWaitingForPlayers{Epoch: 5},
		&ReportPlayersNetStatus{Epoch: 1, Stats: []PlayerNetStatus{{ConnectionID: 2, RTTMillis: 40, LagFrames: 3, State: 2}}},
		&Disconnect{Reason: "room is full"},
		&Heartbeat{Seq: 4, SentAt: 1700000000000},
		&JoinRoom{Nickname: "ann", SentAt: 1},
		&LookActions{Updates: []LookUpdate{{Frame: 3, Direction: core.V(0, 1)}}},
		&CastActions{Frame: 3, Updates: []CastUpdate{{ClientID: 1, Frame: 13, Target: core.V(4, 4)}}},
		&AcknowledgeWorldUpdate{Frame: 42},
		&Kick{Target: 3},
		&ReconnectRoom{Token: "tok"},
		&StartHostedGame{},
	}
	for _, m := range msgs {
		env := roundTrip(t, 9, m)
		a, _ := Marshal(9, m)
		b, _ := Marshal(9, env.Message)
		if !bytes.Equal(a, b) {
			t.Fatalf("expected %s to re-encode identically", m.Type())
		}
	}
}

func TestUnmarshalRejectsUnknownType(t *testing.T) {
	data := appendUint(nil, 2, 999)
	if _, err := Unmarshal(data); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}
	if _, err := Unmarshal(nil); !errors.Is(err, ErrEmptyEnvelope) {
		t.Fatalf("expected ErrEmptyEnvelope, got %v", err)
	}
	if _, err := Unmarshal([]byte{0xff}); err == nil {
		t.Fatalf("expected error for truncated data")
	}
}

func TestUnmarshalRejectsNonFiniteVectors(t *testing.T) {
	msgs := []Message{
		&WalkActions{Frame: 90, Updates: []WalkUpdate{{ID: 1, Frame: 100, Direction: core.V(math.NaN(), 0)}}},
		&LookActions{Updates: []LookUpdate{{Frame: 100, Direction: core.V(0, math.Inf(1))}}},
		&CastActions{Frame: 90, Updates: []CastUpdate{{ClientID: 1, Frame: 100, Target: core.V(math.Inf(-1), 5)}}},
	}
	for _, m := range msgs {
		data, err := Marshal(1, m)
		if err != nil {
			t.Fatalf("marshal %s: %v", m.Type(), err)
		}
		if _, err := Unmarshal(data); !errors.Is(err, ErrNonFinite) {
			t.Fatalf("expected ErrNonFinite for %s, got %v", m.Type(), err)
		}
	}
}

func TestDeliveryClasses(t *testing.T) {
	reliable := []MessageType{MsgJoinRoom, MsgHandshake, MsgDisconnect, MsgPauseWaitingForPlayers, MsgUnpauseWaitingForPlayers, MsgUpdateRoomPlayers, MsgStartGame}
	for _, typ := range reliable {
		if DeliveryOf(typ) != Reliable {
			t.Fatalf("expected %s to be reliable", typ)
		}
	}
	unreliable := []MessageType{MsgWalkActions, MsgCastActions, MsgUpdateWorld, MsgAcknowledgeWorldUpdate, MsgHeartbeat}
	for _, typ := range unreliable {
		if DeliveryOf(typ) != Unreliable {
			t.Fatalf("expected %s to be unreliable", typ)
		}
	}
}

func TestFraming(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte("hello")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := WriteFrame(&buf, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil || string(got) != "hello" {
		t.Fatalf("expected hello, got %q (%v)", got, err)
	}
	if got, err := ReadFrame(&buf); err != nil || len(got) != 0 {
		t.Fatalf("expected empty frame, got %q (%v)", got, err)
	}
	if err := WriteFrame(&buf, make([]byte, MaxFrameSize+1)); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	buf.Reset()
	buf.Write([]byte{0, 2, 0, 0})
	if _, err := ReadFrame(&buf); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge for oversized header, got %v", err)
	}
}
