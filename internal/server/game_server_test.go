package server

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"skirmish/internal/config"
	"skirmish/internal/transport"
	"skirmish/pkg/protocol"
)

func readMessage[T protocol.Message](t *testing.T, c transport.FrameConn) T {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		_ = c.SetReadDeadline(deadline)
		data, err := c.ReadFrame()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		env, err := protocol.Unmarshal(data)
		if err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if m, ok := env.Message.(T); ok {
			return m
		}
	}
	var zero T
	t.Fatalf("expected %T before deadline", zero)
	return zero
}

func TestServerHandshakeOverTCP(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	srv := NewGameServer(cfg, zap.NewNop())
	if err := srv.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer srv.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := transport.Dial(ctx, "tcp", srv.Addr().String(), "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	data, err := protocol.Marshal(0, &protocol.JoinRoom{Nickname: "alice", SentAt: time.Now().UnixMilli()})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteFrame(data); err != nil {
		t.Fatalf("write: %v", err)
	}

	hs := readMessage[*protocol.Handshake](t, conn)
	if !hs.IsHost || hs.SessionID != 1 || hs.Token == "" {
		t.Fatalf("unexpected handshake %+v", hs)
	}
	roster := readMessage[*protocol.UpdateRoomPlayers](t, conn)
	if len(roster.Roster) != 1 || roster.Roster[0].Nickname != "alice" {
		t.Fatalf("unexpected roster %+v", roster.Roster)
	}
}

func TestServerRejectsServerOnlyMessages(t *testing.T) {
	s := &fakeSession{id: 1}
	data, err := protocol.Marshal(0, &protocol.StartGame{})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := DecodePacket(s, data); err == nil {
		t.Fatalf("expected server-to-client message to be rejected")
	}
}
