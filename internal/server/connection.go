package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"skirmish/internal/transport"
	"skirmish/pkg/protocol"
)

const (
	readTimeout  = 15 * time.Second // 读取超时（心跳另有 tick 级超时）
	writeTimeout = 1 * time.Second  // 写入超时
)

var (
	ErrSendQueueFull    = errors.New("发送队列满")
	ErrConnectionClosed = errors.New("连接已关闭")
)

// Connection 表示一个客户端连接
type Connection struct {
	id      uint32
	conn    transport.FrameConn
	server  *GameServer
	logger  *zap.Logger
	limiter *rate.Limiter

	sessionID atomic.Uint32

	// 发送队列
	sendChan chan []byte
	closeCh  chan struct{}
	closed   bool
	closeMu  sync.Mutex

	lastRecvTime atomic.Value
}

// NewConnection 创建新连接，连接到服务器上
func NewConnection(id uint32, conn transport.FrameConn, server *GameServer) *Connection {
	nc := server.cfg.Net
	c := &Connection{
		id:       id,
		conn:     conn,
		server:   server,
		logger:   server.logger.With(zap.Uint32("conn", id), zap.Stringer("remote", conn.RemoteAddr())),
		limiter:  rate.NewLimiter(rate.Limit(nc.InboundRate), nc.InboundBurst),
		sendChan: make(chan []byte, nc.SendQueue),
		closeCh:  make(chan struct{}),
	}
	c.lastRecvTime.Store(time.Now())
	return c
}

// Handle 处理连接
func (c *Connection) Handle(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	c.logger.Debug("连接处理开始")

	// 启动发送循环
	wg.Add(1)
	go c.sendLoop(ctx, wg)

	// 启动接收循环
	wg.Add(1)
	go c.receiveLoop(ctx, wg)

	// 等待上下文取消或连接关闭
	select {
	case <-ctx.Done():
	case <-c.closeCh:
	}

	c.Close("")
}

// ID 进程内唯一的连接序号
func (c *Connection) ID() uint32 {
	return c.id
}

// SetSessionID 设置会话序号
func (c *Connection) SetSessionID(id uint32) {
	c.sessionID.Store(id)
}

// Close 关闭连接，reason 非空时先尽力发送 Disconnect
func (c *Connection) Close(reason string) {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return
	}
	c.closed = true
	if reason != "" {
		if data, err := protocol.Marshal(c.sessionID.Load(), &protocol.Disconnect{Reason: reason}); err == nil {
			select {
			case c.sendChan <- data:
			default:
			}
		}
	}
	// 关闭发送通道，发送循环写完剩余数据后关闭网络连接
	close(c.sendChan)
	close(c.closeCh)
	c.closeMu.Unlock()

	c.server.connectionClosed(c)
	c.logger.Info("连接已关闭", zap.String("reason", reason))
}

// Send 发送消息（异步）。
// 队列满时不可靠消息直接丢弃，可靠消息无法保证送达，连接随之关闭。
func (c *Connection) Send(m protocol.Message) error {
	data, err := protocol.Marshal(c.sessionID.Load(), m)
	if err != nil {
		return fmt.Errorf("序列化 %s 失败: %w", m.Type(), err)
	}
	delivery := protocol.DeliveryOf(m.Type())

	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return ErrConnectionClosed
	}
	select {
	case c.sendChan <- data:
		c.closeMu.Unlock()
		c.server.metrics.OutboundBytes.WithLabelValues(delivery.String()).Add(float64(len(data)))
		return nil
	default:
	}
	c.closeMu.Unlock()

	c.server.metrics.DroppedMessages.WithLabelValues("send_queue_full").Inc()
	if delivery == protocol.Reliable {
		c.logger.Warn("可靠消息发送队列满，关闭连接", zap.Stringer("type", m.Type()))
		c.Close("")
	}
	return ErrSendQueueFull
}

// sendLoop 发送循环
func (c *Connection) sendLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer c.conn.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case data, ok := <-c.sendChan:
			if !ok {
				// 通道已关闭且已写完
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteFrame(data); err != nil {
				c.logger.Debug("发送数据失败", zap.Error(err))
				c.Close("")
				return
			}
		}
	}
}

// receiveLoop 接收循环
func (c *Connection) receiveLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeCh:
			return
		default:
		}

		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		data, err := c.conn.ReadFrame()
		if err != nil {
			var netErr net.Error
			switch {
			case errors.As(err, &netErr) && netErr.Timeout():
				c.logger.Info("读取超时")
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			default:
				c.logger.Debug("读取数据失败", zap.Error(err))
			}
			c.Close("")
			return
		}

		c.lastRecvTime.Store(time.Now())
		if !c.limiter.Allow() {
			c.server.metrics.DroppedMessages.WithLabelValues("rate_limited").Inc()
			continue
		}

		event, err := DecodePacket(c, data)
		if err != nil {
			c.server.metrics.DroppedMessages.WithLabelValues("malformed").Inc()
			c.logger.Debug("处理消息失败", zap.Error(err))
			continue
		}
		c.server.deliver(event)
	}
}

// String 返回连接的字符串表示
func (c *Connection) String() string {
	return fmt.Sprintf("Connection{%d, %s}", c.id, c.conn.RemoteAddr())
}
