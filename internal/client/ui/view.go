package ui

import (
	"fmt"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"golang.org/x/image/colornames"
	"golang.org/x/image/font/basicfont"

	"skirmish/internal/client"
	"skirmish/pkg/core"
	"skirmish/pkg/protocol"
)

var uiFont = text.NewGoXFace(basicfont.Face7x13)

var (
	backgroundColor = color.RGBA{18, 22, 30, 255}
	arenaColor      = color.RGBA{34, 40, 52, 255}
	hintColor       = color.RGBA{180, 190, 200, 255}
	errorColor      = color.RGBA{255, 120, 120, 255}
	statusColor     = color.RGBA{255, 220, 120, 255}
)

// fallbackColors 名单里没有颜色时按网络 ID 取色
var fallbackColors = []color.RGBA{colornames.Tomato, colornames.Dodgerblue, colornames.Gold, colornames.Mediumseagreen}

func drawText(screen *ebiten.Image, x, y int, msg string, clr color.Color) {
	options := &text.DrawOptions{}
	options.GeoM.Translate(float64(x), float64(y))
	options.ColorScale.ScaleWithColor(clr)
	text.Draw(screen, msg, uiFont, options)
}

// rgba 解码名单中的 0xRRGGBBAA 颜色
func rgba(c uint32) color.RGBA {
	return color.RGBA{R: uint8(c >> 24), G: uint8(c >> 16), B: uint8(c >> 8), A: uint8(c)}
}

func playerColor(roster []protocol.RosterEntry, id core.EntityNetID) color.RGBA {
	for _, e := range roster {
		if core.EntityNetID(e.NetID) == id && e.Color != 0 {
			return rgba(e.Color)
		}
	}
	return fallbackColors[int(id)%len(fallbackColors)]
}

func drawConnecting(screen *ebiten.Image, s client.ConnectingScreen) {
	screen.Fill(backgroundColor)
	drawText(screen, 16, 24, s.Status(), color.White)
}

func drawLobby(screen *ebiten.Image, s client.LobbyScreen) {
	screen.Fill(backgroundColor)
	drawText(screen, 16, 24, "Lobby", color.White)
	if s.IsHost {
		drawText(screen, 16, 44, "Enter: Start  1-4: Kick  Esc: Leave", hintColor)
	} else {
		drawText(screen, 16, 44, "Esc: Leave", hintColor)
	}

	y := 70
	for i, e := range s.Roster {
		flags := ""
		if e.IsHost {
			flags += "H"
		}
		if !e.Connected {
			flags += "D"
		}
		line := fmt.Sprintf("%d [%s] %s", i+1, flags, e.Nickname)
		if e.ConnectionID == s.Self {
			line += " (you)"
		}
		vector.DrawFilledRect(screen, 16, float32(y-10), 10, 10, playerColor(s.Roster, core.EntityNetID(e.NetID)), false)
		drawText(screen, 32, y, line, color.RGBA{220, 230, 240, 255})
		y += 16
	}
	drawText(screen, 16, int(core.ArenaHeight)-8, s.Status(), statusColor)
}

func drawDisconnected(screen *ebiten.Image, s client.DisconnectedScreen) {
	screen.Fill(backgroundColor)
	drawText(screen, 16, 24, "Disconnected", color.White)
	drawText(screen, 16, 44, s.Reason, errorColor)
	drawText(screen, 16, 64, "Esc: Quit", hintColor)
}

func drawPlaying(screen *ebiten.Image, s client.PlayingScreen, smoother *client.Smoother) {
	screen.Fill(arenaColor)
	if !s.Synced || s.World == nil {
		drawText(screen, 16, 24, s.Status(), color.White)
		return
	}

	smoother.Begin()
	for _, m := range s.World.Monsters.All() {
		pos := smoother.Position(m.NetID, m.Position, m.Velocity)
		c := colornames.Olivedrab
		if m.Kind == core.MonsterBrute {
			c = colornames.Saddlebrown
		}
		if m.Dead {
			c = faded(c)
		}
		vector.FillCircle(screen, float32(pos.X), float32(pos.Y), core.MonsterRadius, c, true)
		drawHealth(screen, pos, core.MonsterRadius, m.Health, monsterMaxHealth(m.Kind))
	}
	for _, p := range s.World.Players.All() {
		pos := smoother.Position(p.NetID, p.Position, p.Velocity)
		c := playerColor(s.Roster, p.NetID)
		if p.Dead {
			c = faded(c)
		}
		vector.FillCircle(screen, float32(pos.X), float32(pos.Y), core.PlayerRadius, c, true)
		if p.NetID == s.Self {
			vector.StrokeCircle(screen, float32(pos.X), float32(pos.Y), core.PlayerRadius+2, 2, color.White, true)
		}
		tip := pos.Add(p.LookDirection.Scale(core.PlayerRadius + 6))
		vector.StrokeLine(screen, float32(pos.X), float32(pos.Y), float32(tip.X), float32(tip.Y), 2, color.White, true)
		drawHealth(screen, pos, core.PlayerRadius, p.Health, core.PlayerMaxHealth)
	}
	for _, m := range s.World.Missiles.All() {
		pos := smoother.Position(m.NetID, m.Position, m.Velocity)
		vector.FillCircle(screen, float32(pos.X), float32(pos.Y), core.MissileRadius, playerColor(s.Roster, m.Owner), true)
	}
	smoother.End()

	drawText(screen, 8, 16, s.Status(), statusColor)
	y := 32
	for _, st := range s.Stats {
		drawText(screen, 8, y, fmt.Sprintf("#%d rtt %dms lag %d", st.ConnectionID, st.RTTMillis, st.LagFrames), hintColor)
		y += 14
	}
}

// faded 阵亡实体的半透明颜色（预乘 alpha）
func faded(c color.RGBA) color.RGBA {
	return color.RGBA{R: c.R / 3, G: c.G / 3, B: c.B / 3, A: c.A / 3}
}

func monsterMaxHealth(kind core.MonsterKind) int32 {
	if kind == core.MonsterBrute {
		return 2 * core.MonsterMaxHealth
	}
	return core.MonsterMaxHealth
}

func drawHealth(screen *ebiten.Image, pos core.Vec2, radius float64, health, maxHealth int32) {
	if health <= 0 || health >= maxHealth {
		return
	}
	w := float32(2 * radius)
	x := float32(pos.X - radius)
	y := float32(pos.Y - radius - 6)
	vector.DrawFilledRect(screen, x, y, w, 3, color.RGBA{60, 0, 0, 255}, false)
	vector.DrawFilledRect(screen, x, y, w*float32(health)/float32(maxHealth), 3, colornames.Limegreen, false)
}
