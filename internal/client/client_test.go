package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"skirmish/internal/config"
	"skirmish/pkg/core"
	"skirmish/pkg/netcode"
	"skirmish/pkg/protocol"
)

type fakeLink struct {
	inbox  []protocol.Envelope
	sent   []protocol.Message
	sid    uint32
	err    error
	closed bool
}

func (l *fakeLink) Send(m protocol.Message) error {
	if l.closed {
		return ErrNotConnected
	}
	l.sent = append(l.sent, m)
	return nil
}

func (l *fakeLink) Receive() (protocol.Envelope, bool) {
	if len(l.inbox) == 0 {
		return protocol.Envelope{}, false
	}
	env := l.inbox[0]
	l.inbox = l.inbox[1:]
	return env, true
}

func (l *fakeLink) Err() error             { return l.err }
func (l *fakeLink) SetSessionID(id uint32) { l.sid = id }
func (l *fakeLink) Close()                 { l.closed = true }

func (l *fakeLink) push(sid uint32, msgs ...protocol.Message) {
	for _, m := range msgs {
		l.inbox = append(l.inbox, protocol.Envelope{SessionID: sid, Message: m})
	}
}

func sentOf[T protocol.Message](l *fakeLink) []T {
	var out []T
	for _, m := range l.sent {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func dialLinks(links ...*fakeLink) Dialer {
	ch := make(chan *fakeLink, len(links))
	for _, l := range links {
		ch <- l
	}
	return func(context.Context) (Link, error) {
		select {
		case l := <-ch:
			return l, nil
		default:
			return nil, errors.New("connection refused")
		}
	}
}

type scriptedInput struct {
	in Input
}

func (s *scriptedInput) Poll(Screen) Input { return s.in }

func testOptions() Options {
	n := config.Default().Net
	n.LedgerCapacity = 64
	n.LagCompensationFrames = 20
	n.HeartbeatIntervalTicks = 1000
	return Options{Addr: "127.0.0.1:8080", Nickname: "alice", Net: n}
}

func update(t *testing.T, c *Client) {
	t.Helper()
	if err := c.Update(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// joinedClient 完成握手、开局与全量同步
func joinedClient(t *testing.T, opts Options, links ...*fakeLink) (*Client, *fakeLink, *scriptedInput) {
	t.Helper()
	link := &fakeLink{}
	in := &scriptedInput{}
	c := New(opts, dialLinks(append([]*fakeLink{link}, links...)...), in, zap.NewNop())
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	link.push(1,
		&protocol.Handshake{NetID: 1, IsHost: true, ConnectionID: 1, SessionID: 1, Token: "token"},
		&protocol.UpdateRoomPlayers{Roster: []protocol.RosterEntry{{ConnectionID: 1, Nickname: "alice", NetID: 1, IsHost: true, Connected: true}}},
		&protocol.StartGame{NetIDs: []uint32{1, 2}, StartFrame: 10},
		keyframeMsg(10, 3),
	)
	update(t, c)
	if s, ok := c.Screen().(PlayingScreen); !ok || !s.Synced {
		t.Fatalf("expected synced game, got %v", c.Screen().Status())
	}
	return c, link, in
}

func TestClientJoinsLobby(t *testing.T) {
	link := &fakeLink{}
	c := New(testOptions(), dialLinks(link), &scriptedInput{}, zap.NewNop())
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := c.Screen().(ConnectingScreen); !ok {
		t.Fatalf("expected connecting screen, got %v", c.Screen().Kind())
	}
	if joins := sentOf[*protocol.JoinRoom](link); len(joins) != 1 || joins[0].Nickname != "alice" {
		t.Fatalf("expected join as alice, got %v", link.sent)
	}

	link.push(2,
		&protocol.Handshake{NetID: 5, IsHost: false, ConnectionID: 2, SessionID: 2, Token: "token"},
		&protocol.UpdateRoomPlayers{Roster: []protocol.RosterEntry{
			{ConnectionID: 1, Nickname: "bob", IsHost: true},
			{ConnectionID: 2, Nickname: "alice"},
		}},
	)
	update(t, c)

	lobby, ok := c.Screen().(LobbyScreen)
	if !ok || lobby.IsHost || len(lobby.Roster) != 2 || lobby.Self != 2 {
		t.Fatalf("expected lobby as guest, got %+v", c.Screen())
	}
	if link.sid != 2 {
		t.Fatalf("expected session id 2 on the link, got %d", link.sid)
	}
}

func TestOnlyHostStartsGame(t *testing.T) {
	link := &fakeLink{}
	in := &scriptedInput{in: Input{Start: true}}
	c := New(testOptions(), dialLinks(link), in, zap.NewNop())
	_ = c.Start(context.Background())
	link.push(1, &protocol.Handshake{NetID: 2, ConnectionID: 2, SessionID: 1})
	update(t, c)
	if starts := sentOf[*protocol.StartHostedGame](link); len(starts) != 0 {
		t.Fatalf("expected guest not to start, got %d", len(starts))
	}

	link.push(1, &protocol.UpdateRoomPlayers{Roster: []protocol.RosterEntry{{ConnectionID: 2, IsHost: true}}})
	for range 5 {
		update(t, c)
	}
	if starts := sentOf[*protocol.StartHostedGame](link); len(starts) != 1 {
		t.Fatalf("expected one start request after host migration, got %d", len(starts))
	}
}

func TestKeyframeStartsPlayAndIsAcknowledged(t *testing.T) {
	c, link, in := joinedClient(t, testOptions())
	if c.Game().Frame() != 11 {
		t.Fatalf("expected frame 11, got %d", c.Game().Frame())
	}
	acks := sentOf[*protocol.AcknowledgeWorldUpdate](link)
	if len(acks) != 1 || acks[0].Frame != 3 {
		t.Fatalf("expected ack of update 3, got %v", acks)
	}

	in.in = Input{Walk: core.V(1, 0)}
	update(t, c)
	walks := sentOf[*protocol.WalkActions](link)
	if len(walks) != 1 || walks[0].Updates[0].Frame != 22 {
		t.Fatalf("expected walk stamped for frame 22, got %+v", walks)
	}
	if acks := sentOf[*protocol.AcknowledgeWorldUpdate](link); len(acks) != 1 {
		t.Fatalf("expected no repeated ack without progress, got %d", len(acks))
	}

	// 重发的全量同步只需再确认
	link.push(1, keyframeMsg(10, 3))
	update(t, c)
	if c.Game().Frame() != 13 {
		t.Fatalf("expected game to keep running, got frame %d", c.Game().Frame())
	}
}

func TestHeartbeatIsEchoed(t *testing.T) {
	c, link, _ := joinedClient(t, testOptions())
	link.push(1, &protocol.Heartbeat{Seq: 7, SentAt: 1234})
	update(t, c)
	beats := sentOf[*protocol.Heartbeat](link)
	if len(beats) != 1 || beats[0].Seq != 7 || beats[0].SentAt != 1234 {
		t.Fatalf("expected heartbeat echo, got %+v", beats)
	}
}

func TestPauseStopsClock(t *testing.T) {
	c, link, _ := joinedClient(t, testOptions())
	link.push(1, &protocol.PauseWaitingForPlayers{Epoch: 1, Lagging: []uint32{2}})
	update(t, c)
	update(t, c)
	if c.Game().Frame() != 11 {
		t.Fatalf("expected paused at 11, got %d", c.Game().Frame())
	}
	if got := c.Screen().Status(); got != "waiting for 1 player(s)" {
		t.Fatalf("unexpected status %q", got)
	}

	link.push(1, &protocol.UnpauseWaitingForPlayers{Epoch: 1}, &protocol.PauseWaitingForPlayers{Epoch: 1})
	update(t, c)
	if c.Game().Frame() != 12 {
		t.Fatalf("expected resumed at 12, got %d", c.Game().Frame())
	}
}

func TestSilentServerStallsClock(t *testing.T) {
	opts := testOptions()
	opts.Net.HeartbeatIntervalTicks = 2
	c, link, _ := joinedClient(t, opts)
	for range 10 {
		update(t, c)
	}
	if !c.WaitingForNetwork() {
		t.Fatalf("expected waiting for network")
	}
	stalled := c.Game().Frame()
	if stalled != 15 {
		t.Fatalf("expected clock to stop at 15, got %d", stalled)
	}

	link.push(1, &protocol.Heartbeat{Seq: 1})
	update(t, c)
	if c.Game().Frame() != stalled+1 {
		t.Fatalf("expected clock to resume, got %d", c.Game().Frame())
	}
}

func TestStaleSessionMessagesAreIgnored(t *testing.T) {
	link := &fakeLink{}
	c := New(testOptions(), dialLinks(link), &scriptedInput{}, zap.NewNop())
	_ = c.Start(context.Background())
	link.push(2, &protocol.Handshake{NetID: 1, ConnectionID: 1, SessionID: 2})
	link.push(1, &protocol.Disconnect{Reason: "kicked"})
	update(t, c)
	if _, ok := c.Screen().(LobbyScreen); !ok {
		t.Fatalf("expected stale disconnect to be ignored, got %v", c.Screen().Status())
	}

	link.push(2, &protocol.Disconnect{Reason: "kicked by host"})
	update(t, c)
	s, ok := c.Screen().(DisconnectedScreen)
	if !ok || s.Reason != "kicked by host" {
		t.Fatalf("expected disconnect with reason, got %+v", c.Screen())
	}
	if !link.closed {
		t.Fatalf("expected link to be closed")
	}
}

func TestRejectionBeforeHandshakeIsShown(t *testing.T) {
	link := &fakeLink{}
	c := New(testOptions(), dialLinks(link), &scriptedInput{}, zap.NewNop())
	_ = c.Start(context.Background())
	link.push(0, &protocol.Disconnect{Reason: "room is full"})
	update(t, c)
	if s, ok := c.Screen().(DisconnectedScreen); !ok || s.Reason != "room is full" {
		t.Fatalf("expected rejection reason, got %+v", c.Screen())
	}
}

func TestUnreachableServer(t *testing.T) {
	c := New(testOptions(), dialLinks(), &scriptedInput{}, zap.NewNop())
	if err := c.Start(context.Background()); err == nil {
		t.Fatalf("expected dial error")
	}
	if s, ok := c.Screen().(DisconnectedScreen); !ok || s.Reason != ReasonUnreachable {
		t.Fatalf("expected unreachable, got %+v", c.Screen())
	}
}

func TestTransportLossInLobbyDisconnects(t *testing.T) {
	link := &fakeLink{}
	c := New(testOptions(), dialLinks(link), &scriptedInput{}, zap.NewNop())
	_ = c.Start(context.Background())
	link.push(1, &protocol.Handshake{NetID: 1, ConnectionID: 1, SessionID: 1})
	update(t, c)

	link.err = errors.New("connection reset")
	update(t, c)
	if s, ok := c.Screen().(DisconnectedScreen); !ok || s.Reason != ReasonLost {
		t.Fatalf("expected connection lost, got %+v", c.Screen())
	}
}

func TestLeaveSendsDisconnect(t *testing.T) {
	c, link, in := joinedClient(t, testOptions())
	in.in = Input{Leave: true}
	update(t, c)
	if len(sentOf[*protocol.Disconnect](link)) != 1 {
		t.Fatalf("expected disconnect to be sent")
	}
	if s, ok := c.Screen().(DisconnectedScreen); !ok || s.Reason != ReasonLeft {
		t.Fatalf("expected left, got %+v", c.Screen())
	}
}

func waitForReconnect(t *testing.T, c *Client, link *fakeLink) *protocol.ReconnectRoom {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		update(t, c)
		if rs := sentOf[*protocol.ReconnectRoom](link); len(rs) > 0 {
			return rs[0]
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected reconnect request")
	return nil
}

func TestEvictedUpdateTriggersResync(t *testing.T) {
	opts := testOptions()
	opts.Net.LedgerCapacity = 16
	opts.Net.LagCompensationFrames = 4
	second := &fakeLink{}
	c, link, _ := joinedClient(t, opts, second)
	for c.Game().Frame() < 40 {
		update(t, c)
	}

	u := netcode.NewServerWorldUpdate(12)
	u.Revision = 4
	u.Players.Put(1, core.NewPlayer(1, core.V(80, 64)))
	link.push(1, &protocol.UpdateWorld{UpdateID: 4, Updates: []netcode.ServerWorldUpdate{u}})
	update(t, c)

	if !link.closed {
		t.Fatalf("expected old link to be closed")
	}
	if s, ok := c.Screen().(ConnectingScreen); !ok || !s.Resyncing {
		t.Fatalf("expected resynchronizing screen, got %+v", c.Screen())
	}
	if r := waitForReconnect(t, c, second); r.Token != "token" {
		t.Fatalf("expected reconnect with token, got %q", r.Token)
	}

	second.push(2,
		&protocol.Handshake{NetID: 1, IsHost: true, ConnectionID: 3, SessionID: 2, Token: "token2"},
		&protocol.StartGame{NetIDs: []uint32{1, 2}, StartFrame: 10},
		keyframeMsg(60, 9),
	)
	update(t, c)
	if c.Game().Frame() != 61 {
		t.Fatalf("expected resynced game at 61, got %d", c.Game().Frame())
	}
	if acks := sentOf[*protocol.AcknowledgeWorldUpdate](second); len(acks) != 1 || acks[0].Frame != 9 {
		t.Fatalf("expected ack of the new keyframe, got %v", acks)
	}
	if c.Session().Token != "token2" {
		t.Fatalf("expected refreshed token, got %q", c.Session().Token)
	}
}

func TestTransportLossInGameReconnects(t *testing.T) {
	second := &fakeLink{}
	c, link, _ := joinedClient(t, testOptions(), second)
	link.err = errors.New("connection reset")
	update(t, c)
	waitForReconnect(t, c, second)
}

func TestFailedResyncDisconnects(t *testing.T) {
	c, link, _ := joinedClient(t, testOptions())
	link.err = errors.New("connection reset")
	update(t, c)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		update(t, c)
		if _, ok := c.Screen().(DisconnectedScreen); ok {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if s, ok := c.Screen().(DisconnectedScreen); !ok || s.Reason != ReasonUnreachable {
		t.Fatalf("expected unreachable after failed redial, got %+v", c.Screen())
	}
}
