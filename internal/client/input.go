package client

import (
	"skirmish/pkg/ai"
	"skirmish/pkg/core"
)

// Input 一帧的玩家输入
type Input struct {
	Walk   core.Vec2 // 行走方向，零向量表示停下
	Aim    core.Vec2 // 瞄准点（世界坐标）
	HasAim bool
	Cast   bool

	Start bool   // 房主开始游戏
	Kick  uint32 // 房主踢出的连接 ID，0 表示无
	Leave bool
}

// InputSource 输入来源：键盘或脚本
type InputSource interface {
	Poll(s Screen) Input
}

// Bot 脚本输入：房主凑够人数即开局，对局中由行为树控制
type Bot struct {
	// MinPlayers 作为房主时凑够人数即开始
	MinPlayers int
	Config     ai.Config

	brain *ai.Controller
}

var _ InputSource = (*Bot)(nil)

// NewBot 普通难度的机器人
func NewBot(minPlayers int) *Bot {
	return &Bot{MinPlayers: minPlayers, Config: ai.ConfigNormal}
}

func (b *Bot) Poll(s Screen) Input {
	switch s := s.(type) {
	case LobbyScreen:
		return Input{Start: s.IsHost && len(s.Roster) >= max(b.MinPlayers, 1)}
	case PlayingScreen:
		return b.play(s)
	}
	return Input{}
}

func (b *Bot) play(s PlayingScreen) Input {
	if !s.Synced || s.World == nil {
		return Input{}
	}
	if b.brain == nil {
		b.brain = ai.NewController(s.Self, &b.Config)
	}
	d := b.brain.Decide(s.World, uint64(s.Frame))
	return Input{Walk: d.Walk, Aim: d.Aim, HasAim: d.HasAim, Cast: d.Cast}
}
