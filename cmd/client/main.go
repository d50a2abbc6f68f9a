package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"go.uber.org/zap"

	"skirmish/internal/client"
	"skirmish/internal/client/ui"
	"skirmish/internal/config"
	"skirmish/internal/logging"
	"skirmish/pkg/core"
)

func main() {
	configPath := flag.String("config", "", "YAML 配置文件（只使用 net 与 log 部分）")
	address := flag.String("addr", "127.0.0.1:8080", "服务器地址")
	proto := flag.String("protocol", "tcp", "传输协议 tcp | kcp | ws")
	wsPath := flag.String("ws-path", "/ws", "WebSocket 路径")
	nickname := flag.String("name", "player", "昵称")
	bot := flag.Bool("bot", false, "由机器人代为操作")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	logger, err := logging.New(cfg.Log.Level, true)
	if err != nil {
		log.Fatalf("创建日志失败: %v", err)
	}
	defer logger.Sync()

	var input client.InputSource = &ui.Keyboard{}
	if *bot {
		input = client.NewBot(2)
	}
	c := client.New(client.Options{
		Addr:     *address,
		Nickname: *nickname,
		Net:      cfg.Net,
	}, client.NewDialer(*address, *proto, *wsPath, logger), input, logger)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := c.Start(ctx); err != nil {
		// 断线界面会显示原因
		logger.Warn("连接服务器失败", zap.Error(err))
	}
	cancel()

	// 设置窗口选项
	ebiten.SetWindowSize(int(core.ArenaWidth), int(core.ArenaHeight))
	ebiten.SetWindowTitle("Skirmish [" + *nickname + "]")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeDisabled)
	ebiten.SetTPS(core.FPS)

	// 运行游戏
	if err := ebiten.RunGame(ui.NewApp(c)); err != nil {
		logger.Fatal("客户端退出", zap.Error(err))
	}
}
