package ui

import (
	"github.com/hajimehoshi/ebiten/v2"

	"skirmish/internal/client"
	"skirmish/pkg/core"
)

// App 把客户端驱动接到 ebiten 的游戏循环上
type App struct {
	client   *client.Client
	keys     keyTracker
	smoother *client.Smoother
}

var _ ebiten.Game = (*App)(nil)

// NewApp 创建窗口应用
func NewApp(c *client.Client) *App {
	return &App{client: c, smoother: client.NewSmoother()}
}

func (a *App) Update() error {
	if _, ok := a.client.Screen().(client.DisconnectedScreen); ok {
		if a.keys.JustPressed(ebiten.KeyEscape) {
			return ebiten.Termination
		}
		return nil
	}
	game := a.client.Game()
	if err := a.client.Update(); err != nil {
		return err
	}
	if a.client.Game() != game {
		a.smoother.Reset()
	}
	return nil
}

func (a *App) Draw(screen *ebiten.Image) {
	switch s := a.client.Screen().(type) {
	case client.ConnectingScreen:
		drawConnecting(screen, s)
	case client.LobbyScreen:
		drawLobby(screen, s)
	case client.PlayingScreen:
		drawPlaying(screen, s, a.smoother)
	case client.DisconnectedScreen:
		drawDisconnected(screen, s)
	}
}

func (a *App) Layout(outsideWidth, outsideHeight int) (int, int) {
	return int(core.ArenaWidth), int(core.ArenaHeight)
}
