package server

import (
	"context"
	"fmt"
	"image/color"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/image/colornames"

	"skirmish/internal/config"
	"skirmish/internal/logging"
	"skirmish/internal/recorder"
	"skirmish/pkg/core"
	"skirmish/pkg/netcode"
	"skirmish/pkg/protocol"
)

// RoomState 房间状态
type RoomState int

const (
	StateLobby RoomState = iota
	StateRunning
)

// 断线原因（客户端用 ASCII 位图字体显示）
const (
	ReasonRoomFull     = "room is full"
	ReasonGameStarted  = "game already started"
	ReasonKicked       = "kicked by host"
	ReasonTimedOut     = "connection timed out"
	ReasonReplaced     = "replaced by a new session"
	ReasonBadToken     = "invalid session token"
	ReasonLostSync     = "server lost synchronization"
	ReasonShuttingDown = "server shutting down"
)

const (
	maxNicknameLen      = 16
	keyframeResendTicks = 15 // 全量同步未被确认时的重发间隔
	maxFramesPerUpdate  = 32 // 单条 UpdateWorld 最多携带的帧数
)

// 玩家颜色，按槽位分配
var palette = []color.RGBA{colornames.Tomato, colornames.Dodgerblue, colornames.Limegreen, colornames.Gold}

func packColor(c color.RGBA) uint32 {
	return uint32(c.R)<<24 | uint32(c.G)<<16 | uint32(c.B)<<8 | uint32(c.A)
}

// Room 单房间 actor：所有状态只在 Run 所在的 goroutine 中修改
type Room struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg     config.Config
	logger  *zap.Logger
	metrics *Metrics
	bp      thresholds

	events chan RoomEvent
	queue  []RoomEvent

	state    RoomState
	peers    map[netcode.ConnID]*peer
	order    []netcode.ConnID // 加入顺序
	sessions map[uint32]*peer // 连接序号 -> 槽位
	nextConn netcode.ConnID
	ticks    uint64

	// 对局
	ids       *netcode.IDAllocator
	clock     *netcode.FrameClock
	sim       *netcode.Simulation
	adm       *netcode.Admission
	history   *netcode.History
	spawner   *spawner
	journal   *recorder.Journal
	journaled netcode.FrameNumber
	revision  netcode.FrameNumber // 更新修订号，每次有记录变化时递增
	discards  map[netcode.ConnID][]uint64
	paused    bool
	epoch     uint64
}

// NewRoom 创建房间
func NewRoom(parent context.Context, cfg config.Config, logger *zap.Logger, metrics *Metrics) *Room {
	ctx, cancel := context.WithCancel(parent)
	if metrics == nil {
		metrics = NewMetrics()
	}
	r := &Room{
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
		logger:  logging.Or(logger).Named("room"),
		metrics: metrics,
		bp: thresholds{
			heartbeatLag: cfg.Net.HeartbeatLagTicks,
			pauseLag:     cfg.Net.PauseLagFrames,
			resumeLag:    cfg.Net.ResumeLagFrames,
		},
		events: make(chan RoomEvent, 1024),
	}
	r.reset()
	return r
}

// reset 回到大厅，清空对局与玩家
func (r *Room) reset() {
	if r.journal != nil {
		r.closeJournal()
	}
	r.state = StateLobby
	r.peers = make(map[netcode.ConnID]*peer)
	r.order = nil
	r.sessions = make(map[uint32]*peer)
	r.nextConn = 1
	r.ids = netcode.NewIDAllocator(1)
	r.clock = nil
	r.sim = nil
	r.adm = nil
	r.history = nil
	r.spawner = nil
	r.journaled = 0
	r.revision = 0
	r.discards = make(map[netcode.ConnID][]uint64)
	r.paused = false
	r.epoch = 0
}

// Run 房间循环
func (r *Room) Run(wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(netcode.FrameDuration)
	defer ticker.Stop()

	r.logger.Info("房间循环启动", zap.Int("tps", core.FPS))

	for {
		select {
		case <-r.ctx.Done():
			r.closeAll(ReasonShuttingDown)
			if r.journal != nil {
				r.closeJournal()
			}
			r.logger.Info("房间循环停止")
			return

		case ev := <-r.events:
			r.queue = append(r.queue, ev)

		case <-ticker.C:
			r.tick()
		}
	}
}

// Submit 连接 goroutine 投递事件
func (r *Room) Submit(ev RoomEvent) {
	select {
	case <-r.ctx.Done():
	case r.events <- ev:
	}
}

// Shutdown 停止房间
func (r *Room) Shutdown() {
	r.cancel()
}

// tick 单帧流水线：时钟 → 预留 → 入站与准入 → 重算 → 历史 → 出站
func (r *Room) tick() {
	r.ticks++

	if r.state != StateRunning {
		r.drain()
		r.checkTimeouts()
		r.sendHeartbeats()
		return
	}

	now, advanced := r.clock.Tick(r.paused)
	if advanced {
		r.sim.Reserve(now)
		if id, ok, err := r.spawner.tick(now, r.sim.Live().Monsters.Len(), r.adm); err != nil {
			r.logger.Warn("刷怪失败", zap.Error(err))
		} else if ok {
			r.logger.Debug("刷怪", zap.Uint32("net_id", uint32(id)), zap.Stringer("frame", now+r.delay()))
		}
	}

	r.drain()
	if r.state != StateRunning {
		return
	}

	report, err := r.sim.Step(now)
	if err != nil {
		r.fatal(err)
		return
	}
	r.metrics.ReplayedFrames.Add(float64(report.Replayed))
	r.metrics.RevisedFrames.Add(float64(len(report.Revised)))
	r.metrics.CurrentFrame.Set(float64(now))

	r.publish(report, now)
	r.writeJournal(r.sim.Actions().EarliestRetainable())
	r.adm.Prune()
	r.history.PruneBefore(r.sim.Actions().Oldest())
	r.history.Collect()
	r.metrics.HistoryRecords.Set(float64(r.history.Len()))

	r.checkTimeouts()
	if r.state != StateRunning {
		return
	}
	r.updateBackpressure(now)
	r.sendWorldUpdates(now)
	r.sendDiscards()
	r.sendHeartbeats()
	if iv := r.cfg.Net.NetStatusIntervalTicks; iv > 0 && r.ticks%iv == 0 {
		r.broadcast(r.netStatus())
	}
	r.updatePeerGauges()
}

func (r *Room) delay() netcode.FrameNumber {
	return netcode.FrameNumber(r.cfg.Net.InterpolationDelay)
}

// drain 按到达顺序处理本 tick 之前收到的事件
func (r *Room) drain() {
	for {
		select {
		case ev := <-r.events:
			r.queue = append(r.queue, ev)
			continue
		default:
		}
		break
	}
	queue := r.queue
	r.queue = nil
	for _, ev := range queue {
		r.handle(ev)
	}
}

func (r *Room) handle(ev RoomEvent) {
	p := r.sessions[ev.Session.ID()]
	if ev.Kind == EventClosed {
		if p != nil && p.session == ev.Session {
			r.leave(p, "")
		}
		return
	}

	m := ev.Env.Message
	if p == nil {
		switch msg := m.(type) {
		case *protocol.JoinRoom:
			r.handleJoin(ev.Session, msg)
		case *protocol.ReconnectRoom:
			r.handleReconnect(ev.Session, msg)
		}
		return
	}
	if ev.Env.SessionID < p.sid {
		// 重连前的旧会话消息
		return
	}
	p.lastRecv = r.ticks

	switch msg := m.(type) {
	case *protocol.Heartbeat:
		p.onHeartbeat(msg.Seq, time.UnixMilli(msg.SentAt), time.Now())
	case *protocol.StartHostedGame:
		r.handleStart(p)
	case *protocol.Kick:
		r.handleKick(p, netcode.ConnID(msg.Target))
	case *protocol.Disconnect:
		r.leave(p, "")
	case *protocol.WalkActions:
		r.handleWalk(p, msg)
	case *protocol.CastActions:
		r.handleCast(p, msg)
	case *protocol.LookActions:
		r.handleLook(p, msg)
	case *protocol.AcknowledgeWorldUpdate:
		r.handleAck(p, netcode.FrameNumber(msg.Frame))
	}
}

// ========== 大厅 ==========

func (r *Room) connectedPeers() int {
	n := 0
	for _, p := range r.peers {
		if p.connected() {
			n++
		}
	}
	return n
}

func (r *Room) handleJoin(s Session, req *protocol.JoinRoom) {
	if r.state == StateRunning {
		r.logger.Info("拒绝加入：对局已开始", zap.Uint32("conn", s.ID()))
		s.Close(ReasonGameStarted)
		return
	}
	if len(r.peers) >= r.cfg.Room.MaxPlayers {
		r.logger.Info("拒绝加入：房间已满", zap.Uint32("conn", s.ID()), zap.Int("players", len(r.peers)))
		s.Close(ReasonRoomFull)
		return
	}

	conn := r.nextConn
	r.nextConn++
	p := &peer{
		conn:     conn,
		nickname: nickname(req.Nickname, conn),
		netID:    r.ids.Next(),
		slot:     r.freeSlot(),
		host:     r.host() == nil,
		state:    PeerActive,
		lastRecv: r.ticks,
	}
	p.color = packColor(palette[p.slot%len(palette)])
	r.peers[conn] = p
	r.order = append(r.order, conn)

	if err := r.bind(p, s); err != nil {
		r.logger.Warn("发送握手失败", zap.Uint32("conn", uint32(conn)), zap.Error(err))
		r.remove(p)
		return
	}
	r.logger.Info("玩家加入",
		zap.Uint32("conn", uint32(conn)),
		zap.String("nickname", p.nickname),
		zap.Uint32("net_id", uint32(p.netID)),
		zap.Bool("host", p.host))
	r.broadcastRoster()
}

func nickname(name string, conn netcode.ConnID) string {
	if name == "" {
		return fmt.Sprintf("Player %d", conn)
	}
	if utf8.RuneCountInString(name) > maxNicknameLen {
		name = string([]rune(name)[:maxNicknameLen])
	}
	return name
}

// freeSlot 最小的未占用出生点序号
func (r *Room) freeSlot() int {
	used := make(map[int]bool, len(r.peers))
	for _, p := range r.peers {
		used[p.slot] = true
	}
	for slot := 0; ; slot++ {
		if !used[slot] {
			return slot
		}
	}
}

func (r *Room) host() *peer {
	for _, p := range r.peers {
		if p.host {
			return p
		}
	}
	return nil
}

// bind 把会话绑定到槽位：会话序号递增，签发新令牌并发送握手
func (r *Room) bind(p *peer, s Session) error {
	if p.session != nil && p.session != s {
		delete(r.sessions, p.session.ID())
		p.session.Close(ReasonReplaced)
	}
	p.sid++
	token, tokenID, err := GenerateSessionToken(uint32(p.conn), p.sid, uint32(p.netID), r.cfg.Room.SessionTTL)
	if err != nil {
		return err
	}
	p.tokenID = tokenID
	p.session = s
	p.lastRecv = r.ticks
	p.heartbeatAck = r.ticks
	r.sessions[s.ID()] = p
	s.SetSessionID(p.sid)
	return s.Send(&protocol.Handshake{
		NetID:        uint32(p.netID),
		IsHost:       p.host,
		ConnectionID: uint32(p.conn),
		SessionID:    p.sid,
		Token:        token,
	})
}

func (r *Room) handleReconnect(s Session, req *protocol.ReconnectRoom) {
	claims, err := VerifySessionToken(req.Token)
	if err != nil {
		r.logger.Info("重连令牌无效", zap.Uint32("conn", s.ID()), zap.Error(err))
		s.Close(ReasonBadToken)
		return
	}
	p, ok := r.peers[netcode.ConnID(claims.Slot)]
	if !ok || claims.ID != p.tokenID || claims.NetID != uint32(p.netID) {
		r.logger.Info("重连令牌已失效", zap.Uint32("conn", s.ID()), zap.Uint32("slot", claims.Slot))
		s.Close(ReasonBadToken)
		return
	}

	if err := r.bind(p, s); err != nil {
		r.logger.Warn("发送握手失败", zap.Uint32("conn", uint32(p.conn)), zap.Error(err))
		return
	}
	if r.state == StateRunning {
		// 新会话沿用槽位的实体，指令编号从 1 重新开始
		r.adm.Forget(p.netID)
		r.enterGame(p)
		if err := s.Send(r.startGame()); err != nil {
			r.logger.Warn("发送开局消息失败", zap.Uint32("conn", uint32(p.conn)), zap.Error(err))
		}
		// 暂停只在状态切换时广播，新会话需要单独补发当前纪元
		if r.paused {
			if err := s.Send(&protocol.PauseWaitingForPlayers{Epoch: r.epoch, Lagging: r.waitingPeers()}); err != nil {
				r.logger.Warn("发送暂停消息失败", zap.Uint32("conn", uint32(p.conn)), zap.Error(err))
			}
		}
	} else {
		p.state = PeerActive
	}
	r.logger.Info("玩家重连", zap.Uint32("conn", uint32(p.conn)), zap.Uint32("session", p.sid))
	r.broadcastRoster()
}

// enterGame 会话进入对局，等待全量同步
func (r *Room) enterGame(p *peer) {
	p.state = PeerJoining
	p.needKeyframe = true
	p.keyframeSent = 0
	p.lag = 0
	r.history.Track(p.conn, 0)
}

func (r *Room) handleKick(host *peer, target netcode.ConnID) {
	if !host.host {
		r.logger.Info("非房主踢人被忽略", zap.Uint32("conn", uint32(host.conn)))
		return
	}
	p, ok := r.peers[target]
	if !ok || p == host {
		return
	}
	r.logger.Info("房主踢出玩家", zap.Uint32("conn", uint32(target)))
	r.leave(p, ReasonKicked)
}

// leave 玩家离开：大厅中释放槽位，对局中保留实体并标记断线
func (r *Room) leave(p *peer, reason string) {
	if p.session != nil {
		delete(r.sessions, p.session.ID())
		p.session.Close(reason)
		p.session = nil
	}

	if r.state == StateLobby {
		r.remove(p)
		r.logger.Info("玩家离开", zap.Uint32("conn", uint32(p.conn)), zap.Int("players", len(r.peers)))
		r.broadcastRoster()
		return
	}

	p.state = PeerDisconnected
	p.needKeyframe = false
	r.history.Forget(p.conn)
	r.logger.Info("玩家断线", zap.Uint32("conn", uint32(p.conn)), zap.String("reason", reason))
	if r.connectedPeers() == 0 {
		r.logger.Info("所有玩家已离开，房间重置")
		r.reset()
		return
	}
	r.migrateHost()
	r.broadcastRoster()
}

// remove 释放槽位并在需要时转移房主
func (r *Room) remove(p *peer) {
	delete(r.peers, p.conn)
	r.order = slices.DeleteFunc(r.order, func(c netcode.ConnID) bool { return c == p.conn })
	r.migrateHost()
}

// migrateHost 房主不在线时由最早加入的在线玩家接任
func (r *Room) migrateHost() {
	if h := r.host(); h != nil && h.connected() {
		return
	}
	for _, conn := range r.order {
		p := r.peers[conn]
		if p.connected() {
			if h := r.host(); h != nil {
				h.host = false
			}
			p.host = true
			r.logger.Info("房主转移", zap.Uint32("conn", uint32(conn)))
			return
		}
	}
}

func (r *Room) roster() *protocol.UpdateRoomPlayers {
	m := &protocol.UpdateRoomPlayers{}
	for _, conn := range r.order {
		p := r.peers[conn]
		m.Roster = append(m.Roster, protocol.RosterEntry{
			ConnectionID: uint32(p.conn),
			Nickname:     p.nickname,
			Color:        p.color,
			NetID:        uint32(p.netID),
			IsHost:       p.host,
			Connected:    p.connected(),
		})
	}
	return m
}

func (r *Room) broadcastRoster() {
	r.broadcast(r.roster())
}

// broadcast 发送给所有在线会话
func (r *Room) broadcast(m protocol.Message) {
	for _, conn := range r.order {
		p := r.peers[conn]
		if !p.connected() {
			continue
		}
		if err := p.session.Send(m); err != nil {
			r.logger.Debug("发送失败",
				zap.Uint32("conn", uint32(conn)),
				zap.Stringer("type", m.Type()),
				zap.Error(err))
		}
	}
}

func (r *Room) closeAll(reason string) {
	for _, p := range r.peers {
		if p.session != nil {
			p.session.Close(reason)
			p.session = nil
		}
	}
}

// ========== 对局 ==========

func (r *Room) handleStart(p *peer) {
	if !p.host || r.state != StateLobby {
		r.logger.Info("忽略开局请求", zap.Uint32("conn", uint32(p.conn)), zap.Bool("host", p.host))
		return
	}

	r.sim = netcode.NewSimulation(netcode.Config{
		Capacity:              r.cfg.Net.LedgerCapacity,
		LagCompensationFrames: netcode.FrameNumber(r.cfg.Net.LagCompensationFrames),
		Mode:                  netcode.ModeAuthoritative,
		Logger:                r.logger,
	}, 0, core.NewWorld())
	r.adm = netcode.NewAdmission(r.sim, r.ids, netcode.FrameNumber(r.cfg.Net.MaxFutureFrames))
	r.history = netcode.NewHistory()
	r.clock = netcode.NewFrameClock(0)
	r.spawner = newSpawner(uint64(time.Now().UnixNano()),
		netcode.FrameNumber(r.cfg.Room.MonsterSpawnIntervalFrames), r.cfg.Room.MaxMonsters, r.delay())
	r.state = StateRunning

	var players []uint32
	for _, conn := range r.order {
		q := r.peers[conn]
		if err := r.adm.SpawnPlayer(r.delay(), q.netID, core.SpawnPosition(q.slot)); err != nil {
			r.fatal(err)
			return
		}
		players = append(players, uint32(q.netID))
		r.enterGame(q)
	}

	if dir := r.cfg.Journal.Dir; dir != "" {
		j, err := recorder.Open(dir, players)
		if err != nil {
			r.logger.Warn("创建对局记录失败", zap.Error(err))
		} else {
			r.journal = j
			r.logger.Info("对局记录", zap.String("path", j.Path()))
		}
	}

	r.logger.Info("对局开始", zap.Int("players", len(players)))
	r.broadcast(r.startGame())
}

func (r *Room) startGame() *protocol.StartGame {
	m := &protocol.StartGame{StartFrame: uint64(r.clock.Frame())}
	for _, conn := range r.order {
		m.NetIDs = append(m.NetIDs, uint32(r.peers[conn].netID))
	}
	return m
}

func (r *Room) playing(p *peer) bool {
	return r.state == StateRunning && p.state != PeerDisconnected
}

func (r *Room) reject(p *peer, kind string, err error) {
	r.metrics.RejectedActions.WithLabelValues(rejectReason(err)).Inc()
	r.logger.Debug("拒绝指令",
		zap.Uint32("conn", uint32(p.conn)),
		zap.String("kind", kind),
		zap.Error(err))
}

func (r *Room) handleWalk(p *peer, msg *protocol.WalkActions) {
	if !r.playing(p) {
		return
	}
	now := r.clock.Frame()
	for _, u := range msg.Updates {
		res, err := r.adm.AdmitWalk(now, p.netID, netcode.WalkAction{
			ID:          u.ID,
			OriginFrame: netcode.FrameNumber(u.Frame),
			Direction:   u.Direction,
		})
		if len(res.Discarded) > 0 {
			r.discards[p.conn] = append(r.discards[p.conn], res.Discarded...)
			r.metrics.DiscardedWalks.Add(float64(len(res.Discarded)))
		}
		if err != nil {
			r.reject(p, "walk", err)
			continue
		}
		r.metrics.AdmittedActions.WithLabelValues("walk").Inc()
	}
}

func (r *Room) handleCast(p *peer, msg *protocol.CastActions) {
	if !r.playing(p) {
		return
	}
	now := r.clock.Frame()
	for _, u := range msg.Updates {
		res, err := r.adm.AdmitCast(now, p.netID, netcode.FrameNumber(u.Frame), u.ClientID, u.Target)
		if err != nil {
			r.reject(p, "cast", err)
			continue
		}
		r.metrics.AdmittedActions.WithLabelValues("cast").Inc()
		if res.Adjusted {
			r.logger.Debug("施法顺延",
				zap.Uint32("conn", uint32(p.conn)),
				zap.Uint64("client_id", u.ClientID),
				zap.Stringer("frame", res.Frame))
		}
	}
}

func (r *Room) handleLook(p *peer, msg *protocol.LookActions) {
	if !r.playing(p) {
		return
	}
	now := r.clock.Frame()
	for _, u := range msg.Updates {
		if _, err := r.adm.AdmitLook(now, p.netID, netcode.FrameNumber(u.Frame), netcode.LookAction{Direction: u.Direction}); err != nil {
			r.reject(p, "look", err)
			continue
		}
		r.metrics.AdmittedActions.WithLabelValues("look").Inc()
	}
}

func (r *Room) handleAck(p *peer, id netcode.FrameNumber) {
	if !r.playing(p) {
		return
	}
	if p.needKeyframe {
		// 客户端只有在应用全量同步后才会确认
		p.joined(r.ticks)
		r.logger.Info("全量同步已确认", zap.Uint32("conn", uint32(p.conn)), zap.Stringer("update", id))
	}
	r.history.Ack(p.conn, id)
}

// publish 为重算过的帧和已有指令的未来帧生成权威更新。
// 内容变化的记录获得新的修订号，等待发送给尚未确认它的连接。
func (r *Room) publish(report netcode.StepReport, now netcode.FrameNumber) {
	changed := false
	if report.Replayed > 0 {
		for f := report.From; f <= now; f++ {
			changed = r.publishFrame(f, true) || changed
		}
	}
	for f := now + 1; f <= r.sim.Actions().Latest(); f++ {
		changed = r.publishFrame(f, false) || changed
	}
	if changed {
		r.revision++
		for f := report.From; f <= r.sim.Actions().Latest(); f++ {
			if u, ok := r.sim.ServerUpdates().Get(f); ok && u.Revision == pendingRevision {
				u.Revision = r.revision
				r.history.Record(u.Clone())
			}
		}
	}
}

// pendingRevision 本 tick 内容已变化、尚未分配修订号的记录
const pendingRevision = ^netcode.FrameNumber(0)

func (r *Room) publishFrame(f netcode.FrameNumber, simulated bool) bool {
	stored, ok := r.sim.ServerUpdates().Get(f)
	if !ok {
		return false
	}
	var u netcode.ServerWorldUpdate
	if simulated {
		prev, _ := r.sim.Snapshot(f - 1)
		next, _ := r.sim.Snapshot(f)
		u = netcode.BuildWorldUpdate(f, prev, next, stored)
	} else {
		u = netcode.NewServerWorldUpdate(f)
	}
	if a, ok := r.sim.Actions().Get(f); ok {
		u.Actions = a.Clone()
	}
	if s, ok := r.sim.Spawns().Get(f); ok {
		u.Spawns = s.Clone()
	}

	if stored.Revision == 0 {
		if u.IsEmpty() {
			return false
		}
	} else if u.SameContent(stored) {
		return false
	}
	u.Revision = pendingRevision
	*stored = u
	return true
}

// writeJournal 记录滑出延迟补偿窗口、不会再变化的帧
func (r *Room) writeJournal(final netcode.FrameNumber) {
	if r.journal == nil {
		return
	}
	for f := r.journaled + 1; f < final; f++ {
		a, _ := r.sim.Actions().Get(f)
		s, _ := r.sim.Spawns().Get(f)
		if e := recorder.EntryFrom(f, a, s); !e.IsEmpty() {
			if err := r.journal.Write(e); err != nil {
				r.logger.Warn("写入对局记录失败", zap.Error(err))
				r.closeJournal()
				return
			}
		}
		r.journaled = f
	}
}

func (r *Room) closeJournal() {
	if r.sim != nil {
		r.writeJournal(r.sim.Current() + 1)
	}
	if err := r.journal.Close(); err != nil {
		r.logger.Warn("关闭对局记录失败", zap.Error(err))
	}
	r.journal = nil
}

// fatal 服务器无法回放所需的帧：状态已不可信，断开所有人并回到大厅
func (r *Room) fatal(err error) {
	r.logger.Error("重算失败，房间重置", zap.Error(err))
	r.closeAll(ReasonLostSync)
	r.reset()
}

// ========== 出站 ==========

// sendWorldUpdates 每个连接发送尚未确认的记录；新会话先发全量同步
func (r *Room) sendWorldUpdates(now netcode.FrameNumber) {
	for _, conn := range r.order {
		p := r.peers[conn]
		if !p.connected() {
			continue
		}
		if p.needKeyframe {
			if p.keyframeSent == 0 || r.ticks-p.keyframeSent >= keyframeResendTicks {
				r.sendKeyframe(p, now)
			}
			continue
		}
		for _, m := range batchUpdates(r.history.Pending(conn), maxFramesPerUpdate) {
			if err := p.session.Send(m); err != nil {
				r.logger.Debug("发送世界更新失败", zap.Uint32("conn", uint32(conn)), zap.Error(err))
				break
			}
		}
	}
}

// sendKeyframe 全量状态加上所有未来帧的记录
func (r *Room) sendKeyframe(p *peer, now netcode.FrameNumber) {
	m := &protocol.UpdateWorld{
		UpdateID: uint64(r.revision),
		Keyframe: true,
		Updates:  []netcode.ServerWorldUpdate{netcode.Keyframe(now, r.sim.Live())},
	}
	for f := now + 1; f <= r.sim.ServerUpdates().Latest(); f++ {
		if u, ok := r.history.Get(f); ok {
			m.Updates = append(m.Updates, u.Clone())
		}
	}
	p.keyframeSent = r.ticks
	if err := p.session.Send(m); err != nil {
		r.logger.Debug("发送全量同步失败", zap.Uint32("conn", uint32(p.conn)), zap.Error(err))
	}
}

// batchUpdates 按修订号升序切分，同一修订号的记录不拆开，UpdateID 为批内最大修订号
func batchUpdates(pending []netcode.ServerWorldUpdate, limit int) []*protocol.UpdateWorld {
	if len(pending) == 0 {
		return nil
	}
	slices.SortStableFunc(pending, func(a, b netcode.ServerWorldUpdate) int {
		switch {
		case a.Revision < b.Revision:
			return -1
		case a.Revision > b.Revision:
			return 1
		}
		return 0
	})
	var out []*protocol.UpdateWorld
	start := 0
	for start < len(pending) {
		end := start
		for end < len(pending) {
			group := end
			for group < len(pending) && pending[group].Revision == pending[end].Revision {
				group++
			}
			if end > start && group-start > limit {
				break
			}
			end = group
		}
		out = append(out, &protocol.UpdateWorld{
			UpdateID: uint64(pending[end-1].Revision),
			Updates:  pending[start:end],
		})
		start = end
	}
	return out
}

func (r *Room) sendDiscards() {
	for conn, ids := range r.discards {
		if p, ok := r.peers[conn]; ok && p.connected() {
			if err := p.session.Send(&protocol.DiscardWalkActions{ActionIDs: ids}); err != nil {
				r.logger.Debug("发送撤回通知失败", zap.Uint32("conn", uint32(conn)), zap.Error(err))
			}
		}
		delete(r.discards, conn)
	}
}

func (r *Room) sendHeartbeats() {
	iv := r.cfg.Net.HeartbeatIntervalTicks
	if iv == 0 || r.ticks%iv != 0 {
		return
	}
	r.broadcast(&protocol.Heartbeat{Seq: r.ticks, SentAt: time.Now().UnixMilli()})
}

// checkTimeouts 长时间收不到任何消息的会话视为断线
func (r *Room) checkTimeouts() {
	limit := r.cfg.Net.HeartbeatTimeoutTicks
	if limit == 0 {
		return
	}
	for _, conn := range slices.Clone(r.order) {
		p, ok := r.peers[conn]
		if !ok || !p.connected() {
			continue
		}
		if r.ticks-p.lastRecv > limit {
			r.logger.Info("心跳超时", zap.Uint32("conn", uint32(conn)))
			r.leave(p, ReasonTimedOut)
		}
	}
}

// updateBackpressure 任一在线连接落后即暂停预留新帧，全部恢复后解除
func (r *Room) updateBackpressure(now netcode.FrameNumber) {
	for _, conn := range r.order {
		p := r.peers[conn]
		if !p.connected() {
			continue
		}
		if p.state != PeerJoining {
			acked, _ := r.history.Acked(conn)
			behind := uint64(0)
			if r.revision > acked {
				behind = uint64(r.revision - acked)
			}
			p.sampleLag(behind)
			before := p.state
			if after := p.advance(r.ticks, r.bp); after != before {
				r.logger.Info("连接状态变化",
					zap.Uint32("conn", uint32(conn)),
					zap.Stringer("from", before),
					zap.Stringer("to", after),
					zap.Float64("lag", p.lag))
			}
		}
	}

	lagging := r.waitingPeers()
	switch {
	case !r.paused && len(lagging) > 0:
		r.paused = true
		r.epoch++
		r.metrics.Pauses.Inc()
		r.logger.Info("等待玩家，暂停", zap.Uint64("epoch", r.epoch), zap.Uint32s("lagging", lagging), zap.Stringer("frame", now))
		r.broadcast(&protocol.PauseWaitingForPlayers{Epoch: r.epoch, Lagging: lagging})
	case r.paused && len(lagging) == 0:
		r.paused = false
		r.logger.Info("玩家已跟上，继续", zap.Uint64("epoch", r.epoch), zap.Stringer("frame", now))
		r.broadcast(&protocol.UnpauseWaitingForPlayers{Epoch: r.epoch})
	}
}

// waitingPeers 正在被等待的在线连接
func (r *Room) waitingPeers() []uint32 {
	var lagging []uint32
	for _, conn := range r.order {
		if p := r.peers[conn]; p.connected() && p.waiting() {
			lagging = append(lagging, uint32(conn))
		}
	}
	return lagging
}

func (r *Room) netStatus() *protocol.ReportPlayersNetStatus {
	m := &protocol.ReportPlayersNetStatus{Epoch: r.epoch}
	for _, conn := range r.order {
		p := r.peers[conn]
		m.Stats = append(m.Stats, protocol.PlayerNetStatus{
			ConnectionID: uint32(conn),
			RTTMillis:    uint32(p.rtt.Milliseconds()),
			LagFrames:    uint32(p.lag + 0.5),
			State:        uint32(p.state),
		})
	}
	return m
}

func (r *Room) updatePeerGauges() {
	counts := make(map[PeerState]int, len(peerStates))
	for _, p := range r.peers {
		counts[p.state]++
	}
	for _, s := range peerStates {
		r.metrics.Peers.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
}
