package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"skirmish/internal/config"
	"skirmish/internal/logging"
	"skirmish/internal/transport"
)

// GameServer 游戏服务器
type GameServer struct {
	cfg     config.Config
	logger  *zap.Logger
	metrics *Metrics
	room    *Room

	// 网络
	listener transport.Listener
	nextConn atomic.Uint32
	httpSrv  *http.Server

	// 控制
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewGameServer 创建新的游戏服务器
func NewGameServer(cfg config.Config, logger *zap.Logger) *GameServer {
	ctx, cancel := context.WithCancel(context.Background())
	logger = logging.Or(logger)
	metrics := NewMetrics()

	return &GameServer{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		room:     NewRoom(ctx, cfg, logger, metrics),
		ctx:      ctx,
		cancel:   cancel,
		shutdown: make(chan struct{}),
	}
}

// Start 启动服务器并阻塞到 Shutdown
func (s *GameServer) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	<-s.shutdown
	s.logger.Info("服务器正在关闭...")
	return nil
}

// Listen 开始监听并启动房间循环，不阻塞
func (s *GameServer) Listen() error {
	listener, err := transport.Listen(s.cfg.Server.Protocol, s.cfg.Server.Addr, s.cfg.Server.WSPath)
	if err != nil {
		return fmt.Errorf("监听失败: %w", err)
	}
	s.listener = listener
	s.logger.Info("服务器监听中",
		zap.String("protocol", s.cfg.Server.Protocol),
		zap.Stringer("addr", listener.Addr()))

	if addr := s.cfg.Server.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.metrics.Handler())
		s.httpSrv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("指标服务失败", zap.Error(err))
			}
		}()
		s.logger.Info("指标服务启动", zap.String("addr", addr))
	}

	// 启动房间循环
	s.wg.Add(1)
	go s.room.Run(&s.wg)

	// 启动连接接受循环
	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr 实际监听地址
func (s *GameServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Metrics 服务器指标
func (s *GameServer) Metrics() *Metrics {
	return s.metrics
}

// Shutdown 优雅关闭服务器
func (s *GameServer) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.logger.Info("正在关闭服务器...")

		// 取消上下文，房间循环随之关闭所有连接
		s.cancel()

		// 关闭监听器
		if s.listener != nil {
			s.listener.Close()
		}
		if s.httpSrv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			s.httpSrv.Shutdown(ctx)
			cancel()
		}

		close(s.shutdown)

		// 等待所有 goroutine 结束
		s.wg.Wait()

		s.logger.Info("服务器已关闭")
	})
}

// acceptLoop 接受客户端连接
func (s *GameServer) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				s.logger.Debug("停止接受新连接")
				return
			default:
			}
			if errors.Is(err, transport.ErrListenerClosed) || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("接受连接失败", zap.Error(err))
			continue
		}

		// 创建连接对象
		connection := NewConnection(s.nextConn.Add(1), conn, s)
		connection.logger.Info("新连接")

		// 启动连接处理
		s.wg.Add(1)
		go connection.Handle(s.ctx, &s.wg)
	}
}

// deliver 把解码后的消息交给房间
func (s *GameServer) deliver(ev RoomEvent) {
	s.room.Submit(ev)
}

// connectionClosed 连接关闭，通知房间
func (s *GameServer) connectionClosed(c *Connection) {
	s.room.Submit(RoomEvent{Kind: EventClosed, Session: c})
}
