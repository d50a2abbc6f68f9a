package ui

import (
	"github.com/hajimehoshi/ebiten/v2"

	"skirmish/internal/client"
	"skirmish/pkg/core"
)

type keyTracker struct {
	prev map[ebiten.Key]bool
}

func (k *keyTracker) JustPressed(key ebiten.Key) bool {
	if k.prev == nil {
		k.prev = make(map[ebiten.Key]bool)
	}
	now := ebiten.IsKeyPressed(key)
	prev := k.prev[key]
	k.prev[key] = now
	return now && !prev
}

var kickKeys = []ebiten.Key{ebiten.Key1, ebiten.Key2, ebiten.Key3, ebiten.Key4}

// Keyboard 键盘鼠标输入：WASD/方向键行走，鼠标瞄准，左键或空格施法；
// 大厅中 Enter 开始、数字键踢人，Esc 离开。
type Keyboard struct {
	keys keyTracker
}

var _ client.InputSource = (*Keyboard)(nil)

func (k *Keyboard) Poll(s client.Screen) client.Input {
	var in client.Input
	in.Leave = k.keys.JustPressed(ebiten.KeyEscape)

	switch s := s.(type) {
	case client.LobbyScreen:
		in.Start = k.keys.JustPressed(ebiten.KeyEnter)
		for i, key := range kickKeys {
			if k.keys.JustPressed(key) && i < len(s.Roster) {
				in.Kick = s.Roster[i].ConnectionID
			}
		}
	case client.PlayingScreen:
		in.Walk = walkDirection()
		x, y := ebiten.CursorPosition()
		in.Aim = core.V(float64(x), float64(y))
		in.HasAim = core.InsideArena(in.Aim)
		in.Cast = ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) || ebiten.IsKeyPressed(ebiten.KeySpace)
	}
	return in
}

func walkDirection() core.Vec2 {
	var d core.Vec2
	if ebiten.IsKeyPressed(ebiten.KeyW) || ebiten.IsKeyPressed(ebiten.KeyArrowUp) {
		d.Y--
	}
	if ebiten.IsKeyPressed(ebiten.KeyS) || ebiten.IsKeyPressed(ebiten.KeyArrowDown) {
		d.Y++
	}
	if ebiten.IsKeyPressed(ebiten.KeyA) || ebiten.IsKeyPressed(ebiten.KeyArrowLeft) {
		d.X--
	}
	if ebiten.IsKeyPressed(ebiten.KeyD) || ebiten.IsKeyPressed(ebiten.KeyArrowRight) {
		d.X++
	}
	return d
}
