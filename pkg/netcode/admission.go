package netcode

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"skirmish/pkg/core"
)

// DefaultMaxFutureFrames 客户端指令最多可以提前的帧数
const DefaultMaxFutureFrames FrameNumber = 30

// IDAllocator 服务器侧实体网络 ID 分配器，ID 永不复用
type IDAllocator struct {
	next core.EntityNetID
}

// NewIDAllocator 从 first 开始分配
func NewIDAllocator(first core.EntityNetID) *IDAllocator {
	if first == 0 {
		first = 1
	}
	return &IDAllocator{next: first}
}

// Next 分配一个新 ID
func (a *IDAllocator) Next() core.EntityNetID {
	id := a.next
	a.next++
	return id
}

// AdmissionResult 一条指令的准入结果
type AdmissionResult struct {
	Frame     FrameNumber // 实际写入的帧
	Adjusted  bool        // 是否因延迟补偿被挪到了更晚的帧
	Discarded []uint64    // 需要通知客户端撤回的行走指令
	CastID    uint64
	MissileID core.EntityNetID
}

type actionKey struct {
	entity core.EntityNetID
	id     uint64
}

type admitted struct {
	frame     FrameNumber
	discarded bool
	castID    uint64
	missileID core.EntityNetID
}

// Admission 服务器侧指令准入：校验、延迟补偿、冲突处理后写入指令账本
type Admission struct {
	sim       *Simulation
	ids       *IDAllocator
	maxFuture FrameNumber
	logger    *zap.Logger

	castSeq   uint64
	seenWalks map[actionKey]admitted
	seenCasts map[actionKey]admitted
}

// NewAdmission 绑定到服务器的重算循环
func NewAdmission(sim *Simulation, ids *IDAllocator, maxFuture FrameNumber) *Admission {
	if maxFuture == 0 {
		maxFuture = DefaultMaxFutureFrames
	}
	return &Admission{
		sim:       sim,
		ids:       ids,
		maxFuture: maxFuture,
		logger:    sim.Logger(),
		seenWalks: make(map[actionKey]admitted),
		seenCasts: make(map[actionKey]admitted),
	}
}

func (a *Admission) horizon() FrameNumber {
	return a.sim.LagCompensationFrames()
}

// badlyLate 比当前帧落后超过两倍补偿窗口
func (a *Admission) badlyLate(now, frame FrameNumber) bool {
	return frame+2*a.horizon() < now
}

// admitFrame 拒绝过远的未来帧，并为允许的未来帧预留账本
func (a *Admission) admitFrame(now, frame FrameNumber) error {
	if frame > now+a.maxFuture {
		return errors.Wrapf(ErrRejectedTooFarAhead, "frame %d, now %d", frame, now)
	}
	if frame > a.sim.Actions().Latest() {
		a.sim.Reserve(frame)
	}
	return nil
}

func laterExists(l *FramedUpdates[ActionUpdates], frame FrameNumber, has func(*ActionUpdates) bool) bool {
	for _, u := range l.From(frame + 1) {
		if has(u) {
			return true
		}
	}
	return false
}

// AdmitWalk 准入行走指令
func (a *Admission) AdmitWalk(now FrameNumber, entity core.EntityNetID, action WalkAction) (AdmissionResult, error) {
	if !action.Direction.Finite() {
		return AdmissionResult{}, errors.Wrapf(ErrRejectedMalformed, "walk %d of entity %d", action.ID, entity)
	}
	key := actionKey{entity: entity, id: action.ID}
	if seen, ok := a.seenWalks[key]; ok {
		res := AdmissionResult{Frame: seen.frame}
		if seen.discarded {
			res.Discarded = []uint64{action.ID}
		}
		return res, nil
	}
	if err := a.admitFrame(now, action.OriginFrame); err != nil {
		return AdmissionResult{}, err
	}

	ledger := a.sim.Actions()
	if a.badlyLate(now, action.OriginFrame) && laterExists(ledger, action.OriginFrame, func(u *ActionUpdates) bool { return u.Walk.Has(entity) }) {
		a.seenWalks[key] = admitted{frame: action.OriginFrame, discarded: true}
		return AdmissionResult{Discarded: []uint64{action.ID}},
			errors.Wrapf(ErrRejectedBadlyLate, "walk %d of entity %d at frame %d, now %d", action.ID, entity, action.OriginFrame, now)
	}

	slot, target, err := ledger.UpdateFrame(action.OriginFrame, true)
	if err != nil {
		return AdmissionResult{}, err
	}
	res := AdmissionResult{Frame: target, Adjusted: target != action.OriginFrame}
	if res.Adjusted {
		a.logger.Debug("行走指令延迟补偿",
			zap.Uint32("entity", uint32(entity)),
			zap.Stringer("origin", action.OriginFrame),
			zap.Stringer("frame", target))
	}

	existing, occupied := slot.Walk.Get(entity)
	slot.Walk.Put(entity, action)
	a.seenWalks[key] = admitted{frame: target}
	if occupied {
		if existing.OriginFrame > action.OriginFrame {
			res.Discarded = a.rehomeWalk(now, entity, existing, target+1, res.Discarded)
		} else {
			res.Discarded = a.discardWalk(entity, existing, res.Discarded)
		}
	}
	return res, nil
}

// rehomeWalk 被挤出的指令逐帧向后寻找位置，越过当前帧即无法恢复
func (a *Admission) rehomeWalk(now FrameNumber, entity core.EntityNetID, action WalkAction, from FrameNumber, discarded []uint64) []uint64 {
	ledger := a.sim.Actions()
	for frame := from; frame <= now; frame++ {
		slot, ok := ledger.Get(frame)
		if !ok {
			break
		}
		existing, occupied := slot.Walk.Get(entity)
		if occupied && existing.OriginFrame <= action.OriginFrame {
			continue
		}
		slot.Walk.Put(entity, action)
		ledger.MarkUpdated(frame)
		a.seenWalks[actionKey{entity: entity, id: action.ID}] = admitted{frame: frame}
		if !occupied {
			return discarded
		}
		action = existing
	}
	return a.discardWalk(entity, action, discarded)
}

func (a *Admission) discardWalk(entity core.EntityNetID, action WalkAction, discarded []uint64) []uint64 {
	a.seenWalks[actionKey{entity: entity, id: action.ID}] = admitted{frame: action.OriginFrame, discarded: true}
	a.logger.Debug("丢弃行走指令",
		zap.Uint32("entity", uint32(entity)),
		zap.Uint64("action", action.ID),
		zap.Stringer("origin", action.OriginFrame))
	return append(discarded, action.ID)
}

// AdmitLook 准入朝向指令（同帧后写覆盖）
func (a *Admission) AdmitLook(now FrameNumber, entity core.EntityNetID, frame FrameNumber, look LookAction) (AdmissionResult, error) {
	if !look.Direction.Finite() {
		return AdmissionResult{}, errors.Wrapf(ErrRejectedMalformed, "look of entity %d at frame %d", entity, frame)
	}
	if err := a.admitFrame(now, frame); err != nil {
		return AdmissionResult{}, err
	}
	ledger := a.sim.Actions()
	if a.badlyLate(now, frame) && laterExists(ledger, frame, func(u *ActionUpdates) bool { return u.Look.Has(entity) }) {
		return AdmissionResult{}, errors.Wrapf(ErrRejectedBadlyLate, "look of entity %d at frame %d, now %d", entity, frame, now)
	}
	slot, target, err := ledger.UpdateFrame(frame, true)
	if err != nil {
		return AdmissionResult{}, err
	}
	slot.Look.Put(entity, look)
	return AdmissionResult{Frame: target, Adjusted: target != frame}, nil
}

// AdmitCast 准入施法指令，分配服务器序号与投射物 ID；同帧已有施法时顺延到下一空闲帧
func (a *Admission) AdmitCast(now FrameNumber, entity core.EntityNetID, frame FrameNumber, clientID uint64, target core.Vec2) (AdmissionResult, error) {
	if !target.Finite() {
		return AdmissionResult{}, errors.Wrapf(ErrRejectedMalformed, "cast %d of entity %d", clientID, entity)
	}
	key := actionKey{entity: entity, id: clientID}
	if seen, ok := a.seenCasts[key]; ok {
		return AdmissionResult{Frame: seen.frame, CastID: seen.castID, MissileID: seen.missileID}, nil
	}
	if err := a.admitFrame(now, frame); err != nil {
		return AdmissionResult{}, err
	}
	ledger := a.sim.Actions()
	if a.badlyLate(now, frame) && laterExists(ledger, frame, func(u *ActionUpdates) bool { return u.Cast.Has(entity) }) {
		return AdmissionResult{}, errors.Wrapf(ErrRejectedBadlyLate, "cast %d of entity %d at frame %d, now %d", clientID, entity, frame, now)
	}

	slot, landed, err := ledger.UpdateFrame(frame, true)
	if err != nil {
		return AdmissionResult{}, err
	}
	for slot.Cast.Has(entity) {
		landed++
		if landed > now+a.maxFuture {
			return AdmissionResult{}, errors.Wrapf(ErrRejectedNoFreeFrame, "cast %d of entity %d from frame %d", clientID, entity, frame)
		}
		if landed > ledger.Latest() {
			a.sim.Reserve(landed)
		}
		slot, _ = ledger.Get(landed)
		ledger.MarkUpdated(landed)
	}

	a.castSeq++
	cast := CastAction{
		ID:        a.castSeq,
		ClientID:  clientID,
		MissileID: a.ids.Next(),
		Target:    target,
	}
	slot.Cast.Put(entity, cast)
	a.seenCasts[key] = admitted{frame: landed, castID: cast.ID, missileID: cast.MissileID}
	return AdmissionResult{Frame: landed, Adjusted: landed != frame, CastID: cast.ID, MissileID: cast.MissileID}, nil
}

// SpawnPlayer 在 frame 生成玩家
func (a *Admission) SpawnPlayer(frame FrameNumber, id core.EntityNetID, position core.Vec2) error {
	spawns, err := a.spawnFrame(frame)
	if err != nil {
		return err
	}
	spawns.Players.Put(id, PlayerSpawn{Position: position})
	return nil
}

// SpawnMonster 在 frame 生成怪物，返回分配的 ID
func (a *Admission) SpawnMonster(frame FrameNumber, kind core.MonsterKind, position core.Vec2) (core.EntityNetID, error) {
	spawns, err := a.spawnFrame(frame)
	if err != nil {
		return 0, err
	}
	id := a.ids.Next()
	spawns.Monsters.Put(id, MonsterSpawn{Kind: kind, Position: position})
	return id, nil
}

// Despawn 在 frame 移除实体
func (a *Admission) Despawn(frame FrameNumber, id core.EntityNetID) error {
	spawns, err := a.spawnFrame(frame)
	if err != nil {
		return err
	}
	spawns.Despawn(id)
	return nil
}

func (a *Admission) spawnFrame(frame FrameNumber) (*SpawnActions, error) {
	if frame > a.sim.Spawns().Latest() {
		a.sim.Reserve(frame)
	}
	spawns, _, err := a.sim.Spawns().UpdateFrame(frame, false)
	return spawns, err
}

// Forget 清除实体的去重记录；重连后的新会话从 1 重新编号
func (a *Admission) Forget(entity core.EntityNetID) {
	for k := range a.seenWalks {
		if k.entity == entity {
			delete(a.seenWalks, k)
		}
	}
	for k := range a.seenCasts {
		if k.entity == entity {
			delete(a.seenCasts, k)
		}
	}
}

// Prune 清理已滑出账本的去重记录
func (a *Admission) Prune() {
	oldest := a.sim.Actions().Oldest()
	for k, v := range a.seenWalks {
		if v.frame < oldest {
			delete(a.seenWalks, k)
		}
	}
	for k, v := range a.seenCasts {
		if v.frame < oldest {
			delete(a.seenCasts, k)
		}
	}
}
