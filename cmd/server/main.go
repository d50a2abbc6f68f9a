package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"skirmish/internal/config"
	"skirmish/internal/logging"
	"skirmish/internal/server"
)

func main() {
	// 命令行参数，非空时覆盖配置文件
	configPath := flag.String("config", "", "YAML 配置文件")
	address := flag.String("addr", "", "服务器监听地址")
	proto := flag.String("protocol", "", "传输协议 tcp | kcp | ws")
	metrics := flag.String("metrics", "", "Prometheus 指标监听地址")
	journal := flag.String("journal", "", "对局记录目录")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if *address != "" {
		cfg.Server.Addr = *address
	}
	if *proto != "" {
		cfg.Server.Protocol = *proto
	}
	if *metrics != "" {
		cfg.Server.MetricsAddr = *metrics
	}
	if *journal != "" {
		cfg.Journal.Dir = *journal
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("配置无效: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("创建日志失败: %v", err)
	}
	defer logger.Sync()

	gameServer := server.NewGameServer(cfg, logger)

	// 启动服务器（在新的 goroutine 中）
	go func() {
		if err := gameServer.Start(); err != nil {
			logger.Fatal("服务器启动失败", zap.Error(err))
		}
	}()

	logger.Info("Skirmish 联机服务器",
		zap.String("addr", cfg.Server.Addr),
		zap.String("protocol", cfg.Server.Protocol),
		zap.Int("max_players", cfg.Room.MaxPlayers),
		zap.Uint64("lag_compensation_frames", cfg.Net.LagCompensationFrames),
		zap.String("journal", cfg.Journal.Dir))

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	gameServer.Shutdown()
}
