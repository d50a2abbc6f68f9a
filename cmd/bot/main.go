package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"skirmish/internal/client"
	"skirmish/internal/config"
	"skirmish/internal/logging"
	"skirmish/pkg/netcode"
)

func main() {
	configPath := flag.String("config", "", "YAML 配置文件（只使用 net 与 log 部分）")
	address := flag.String("addr", "127.0.0.1:8080", "服务器地址")
	proto := flag.String("protocol", "tcp", "传输协议 tcp | kcp | ws")
	wsPath := flag.String("ws-path", "/ws", "WebSocket 路径")
	count := flag.Int("n", 2, "机器人数量")
	duration := flag.Duration("duration", 0, "运行时长，0 表示直到中断")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("创建日志失败: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := range *count {
		name := fmt.Sprintf("bot-%d", i+1)
		opts := client.Options{Addr: *address, Nickname: name, Net: cfg.Net}
		dial := client.NewDialer(*address, *proto, *wsPath, logger)
		g.Go(func() error {
			return run(ctx, opts, dial, *count, logger.With(zap.String("bot", name)))
		})
		// 第一个机器人成为房主
		time.Sleep(50 * time.Millisecond)
	}
	if err := g.Wait(); err != nil {
		logger.Error("机器人退出", zap.Error(err))
		os.Exit(1)
	}
}

// run 以固定帧率驱动一个无界面客户端，直到断开或 ctx 结束
func run(ctx context.Context, opts client.Options, dial client.Dialer, minPlayers int, logger *zap.Logger) error {
	c := client.New(opts, dial, client.NewBot(minPlayers), logger)
	defer c.Close()
	if err := c.Start(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(netcode.FrameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if err := c.Update(); err != nil {
			return err
		}
		if s, ok := c.Screen().(client.DisconnectedScreen); ok {
			logger.Info("已断开", zap.String("reason", s.Reason))
			return nil
		}
	}
}
