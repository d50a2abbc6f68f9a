package client

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"skirmish/internal/config"
	"skirmish/internal/logging"
	"skirmish/pkg/core"
	"skirmish/pkg/netcode"
	"skirmish/pkg/protocol"
)

const (
	ackResendTicks   = 30 // 没有新进度时也定期重发确认
	startResendTicks = 30
	maxReconnects    = 3
)

// 显示给玩家的断线原因
const (
	ReasonUnreachable = "could not reach server"
	ReasonLost        = "connection lost"
	ReasonLeft        = "left the game"
)

// Options 客户端参数
type Options struct {
	Addr     string
	Nickname string
	Net      config.NetConfig
}

type dialResult struct {
	link Link
	err  error
}

// Client 客户端驱动：每次 Update 处理一帧的收包、输入、模拟与发包
type Client struct {
	opts   Options
	logger *zap.Logger
	dial   Dialer
	input  InputSource

	link    Link
	session Session
	game    *Game
	state   ScreenKind

	dialing    chan dialResult
	resyncing  bool
	reconnects int

	ticks     uint64
	lastRecv  uint64
	startSent uint64
}

// New 创建客户端
func New(opts Options, dial Dialer, input InputSource, logger *zap.Logger) *Client {
	return &Client{
		opts:   opts,
		logger: logging.Or(logger).Named("client"),
		dial:   dial,
		input:  input,
		state:  ScreenConnecting,
	}
}

// Start 连接服务器并请求加入房间
func (c *Client) Start(ctx context.Context) error {
	link, err := c.dial(ctx)
	if err != nil {
		c.disconnect(ReasonUnreachable)
		return err
	}
	c.attach(link)
	return link.Send(&protocol.JoinRoom{Nickname: c.opts.Nickname, SentAt: time.Now().UnixMilli()})
}

// attach 使用新连接；会话 ID 由新连接的握手重新确定
func (c *Client) attach(link Link) {
	c.link = link
	c.session.SessionID = 0
	c.lastRecv = c.ticks
	c.state = ScreenConnecting
}

// Session 协议状态
func (c *Client) Session() *Session {
	return &c.session
}

// Game 当前对局，未开局时为 nil
func (c *Client) Game() *Game {
	return c.game
}

// Update 执行一帧
func (c *Client) Update() error {
	c.ticks++

	if c.dialing != nil {
		c.pollDial()
		return nil
	}
	if c.link == nil {
		return nil
	}

	if err := c.receive(); err != nil {
		return err
	}
	if c.link == nil {
		return nil
	}

	in := c.input.Poll(c.Screen())
	switch c.state {
	case ScreenLobby:
		c.lobby(in)
	case ScreenPlaying:
		if in.Leave {
			c.leave()
			return nil
		}
		if err := c.play(in); err != nil {
			return err
		}
	}
	if c.link == nil {
		return nil
	}

	if err := c.link.Err(); err != nil {
		c.lost(err)
	}
	return nil
}

// receive 按到达顺序处理收到的消息
func (c *Client) receive() error {
	for c.link != nil {
		env, ok := c.link.Receive()
		if !ok {
			return nil
		}
		if env.SessionID < c.session.SessionID {
			continue
		}
		c.lastRecv = c.ticks
		if err := c.handle(env.Message); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) handle(m protocol.Message) error {
	switch msg := m.(type) {
	case *protocol.Handshake:
		c.session.OnHandshake(msg)
		c.link.SetSessionID(msg.SessionID)
		c.state = ScreenLobby
		c.logger.Info("握手成功",
			zap.Uint32("conn", msg.ConnectionID),
			zap.Uint32("net_id", msg.NetID),
			zap.Uint32("session", msg.SessionID),
			zap.Bool("host", msg.IsHost))

	case *protocol.UpdateRoomPlayers:
		c.session.OnRoster(msg)

	case *protocol.StartGame:
		c.game = NewGame(GameConfigFrom(c.opts.Net), core.EntityNetID(c.session.NetID), c.logger)
		c.state = ScreenPlaying
		c.logger.Info("对局开始", zap.Uint64("frame", msg.StartFrame), zap.Int("players", len(msg.NetIDs)))

	case *protocol.UpdateWorld:
		return c.onUpdateWorld(msg)

	case *protocol.DiscardWalkActions:
		if c.game != nil {
			c.game.Discard(msg.ActionIDs)
		}

	case *protocol.PauseWaitingForPlayers:
		if c.session.OnPause(msg) {
			c.logger.Info("等待玩家", zap.Uint64("epoch", msg.Epoch), zap.Uint32s("lagging", msg.Lagging))
		}

	case *protocol.UnpauseWaitingForPlayers:
		if c.session.OnUnpause(msg) {
			c.logger.Info("恢复对局", zap.Uint64("epoch", msg.Epoch))
		}

	case *protocol.ReportPlayersNetStatus:
		c.session.OnNetStatus(msg)

	case *protocol.Heartbeat:
		// 原样回传，服务器据此计算往返时延
		c.send(msg)

	case *protocol.Disconnect:
		c.session.OnDisconnect(msg.Reason)
		c.logger.Info("服务器断开连接", zap.String("reason", msg.Reason))
		c.disconnect(msg.Reason)
	}
	return nil
}

func (c *Client) onUpdateWorld(m *protocol.UpdateWorld) error {
	if c.game == nil {
		return nil
	}
	var err error
	if m.Keyframe {
		if c.game.Synced() {
			// 重发的全量同步，只需再确认一次
			c.session.OnApplied(m.UpdateID)
			return nil
		}
		err = c.game.ApplyKeyframe(m)
		if err == nil {
			c.resyncing = false
			c.reconnects = 0
		}
	} else {
		if !c.game.Synced() {
			return nil
		}
		err = c.game.ApplyUpdates(m)
	}
	if errors.Is(err, ErrResync) {
		c.resync(err)
		return nil
	}
	if err != nil {
		return err
	}
	c.session.OnApplied(m.UpdateID)

	var latest netcode.FrameNumber
	for i := range m.Updates {
		if u := &m.Updates[i]; u.HasStates() && u.Frame > latest {
			latest = u.Frame
		}
	}
	if c.game.CatchUp(latest) {
		c.logger.Debug("追赶服务器帧", zap.Stringer("frame", latest))
	}
	return nil
}

func (c *Client) lobby(in Input) {
	if in.Leave {
		c.leave()
		return
	}
	if !c.session.IsHost {
		return
	}
	if in.Start && (c.startSent == 0 || c.ticks-c.startSent >= startResendTicks) {
		c.startSent = c.ticks
		c.send(&protocol.StartHostedGame{})
	}
	if in.Kick != 0 && in.Kick != c.session.ConnectionID {
		c.send(&protocol.Kick{Target: in.Kick})
	}
}

func (c *Client) play(in Input) error {
	if c.game == nil || !c.game.Synced() {
		return nil
	}
	c.game.Advance(c.session.Paused() || c.WaitingForNetwork())
	c.game.Input(in)
	if _, err := c.game.Step(); err != nil {
		if errors.Is(err, ErrResync) {
			c.resync(err)
			return nil
		}
		return err
	}
	for _, m := range c.game.Outbound() {
		c.send(m)
	}
	if ack, ok := c.session.Ack(c.ticks%ackResendTicks == 0); ok {
		c.send(ack)
	}
	return nil
}

// WaitingForNetwork 服务器长时间没有任何消息，本地停止推进
func (c *Client) WaitingForNetwork() bool {
	limit := 2 * max(c.opts.Net.HeartbeatIntervalTicks, 1)
	return c.link != nil && c.ticks-c.lastRecv > limit
}

func (c *Client) send(m protocol.Message) {
	if c.link == nil {
		return
	}
	if err := c.link.Send(m); err != nil {
		c.logger.Debug("发送失败", zap.Stringer("type", m.Type()), zap.Error(err))
	}
}

// resync 本地无法继续对账：用令牌重连，重新获取全量同步
func (c *Client) resync(cause error) {
	if c.session.Token == "" || c.reconnects >= maxReconnects {
		c.logger.Warn("无法重新同步", zap.Int("attempts", c.reconnects), zap.Error(cause))
		c.disconnect(ReasonLost)
		return
	}
	c.reconnects++
	c.logger.Warn("重新同步", zap.Int("attempt", c.reconnects), zap.Error(cause))

	if c.link != nil {
		c.link.Close()
		c.link = nil
	}
	c.game = nil
	c.resyncing = true
	c.state = ScreenConnecting

	result := make(chan dialResult, 1)
	c.dialing = result
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		link, err := c.dial(ctx)
		result <- dialResult{link: link, err: err}
	}()
}

func (c *Client) pollDial() {
	select {
	case res := <-c.dialing:
		c.dialing = nil
		if res.err != nil {
			c.logger.Warn("重连失败", zap.Error(res.err))
			c.disconnect(ReasonUnreachable)
			return
		}
		c.attach(res.link)
		c.send(&protocol.ReconnectRoom{Token: c.session.Token})
	default:
	}
}

// lost 传输层断开：对局中尝试重连，其余情况直接断开
func (c *Client) lost(err error) {
	if c.state == ScreenPlaying && c.session.Reason() == "" {
		c.resync(err)
		return
	}
	c.logger.Info("连接断开", zap.Error(err))
	c.disconnect(ReasonLost)
}

func (c *Client) leave() {
	c.send(&protocol.Disconnect{})
	c.disconnect(ReasonLeft)
}

func (c *Client) disconnect(reason string) {
	if reason == "" {
		reason = ReasonLost
	}
	c.session.OnDisconnect(reason)
	if c.link != nil {
		c.link.Close()
		c.link = nil
	}
	c.state = ScreenDisconnected
}

// Close 通知服务器并关闭连接
func (c *Client) Close() {
	if c.link != nil {
		c.leave()
	}
}

// Screen 当前界面
func (c *Client) Screen() Screen {
	switch c.state {
	case ScreenLobby:
		return LobbyScreen{
			Self:   c.session.ConnectionID,
			IsHost: c.session.IsHost,
			Roster: c.session.Roster,
		}
	case ScreenPlaying:
		s := PlayingScreen{
			Self:              core.EntityNetID(c.session.NetID),
			Roster:            c.session.Roster,
			Stats:             c.session.NetStatus(),
			Paused:            c.session.Paused(),
			Lagging:           c.session.Lagging(),
			WaitingForNetwork: c.WaitingForNetwork(),
		}
		if c.game != nil && c.game.Synced() {
			s.Synced = true
			s.Frame = c.game.Frame()
			s.World = c.game.World()
		}
		return s
	case ScreenDisconnected:
		return DisconnectedScreen{Reason: c.session.Reason()}
	}
	return ConnectingScreen{Addr: c.opts.Addr, Resyncing: c.resyncing}
}
