package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"skirmish/internal/logging"
	"skirmish/internal/transport"
	"skirmish/pkg/protocol"
)

const (
	recvQueueSize = 1024
	sendQueueSize = 256
)

var (
	ErrNotConnected  = errors.New("未连接到服务器")
	ErrSendQueueFull = errors.New("发送队列满")
)

// Link 客户端与服务器之间的消息通道
type Link interface {
	Send(m protocol.Message) error
	// Receive 非阻塞地取出一条已解码的消息
	Receive() (protocol.Envelope, bool)
	// Err 连接断开后返回原因
	Err() error
	SetSessionID(id uint32)
	Close()
}

// Dialer 建立到服务器的新连接
type Dialer func(ctx context.Context) (Link, error)

// NetworkClient 网络客户端
type NetworkClient struct {
	conn   transport.FrameConn
	addr   string
	proto  string
	wsPath string
	logger *zap.Logger

	sessionID atomic.Uint32

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	sendDone chan struct{}

	// 消息队列
	recvChan chan protocol.Envelope
	sendChan chan []byte

	errOnce sync.Once
	err     atomic.Value
	closed  atomic.Bool
}

var _ Link = (*NetworkClient)(nil)

// NewNetworkClient 创建网络客户端
func NewNetworkClient(addr, proto, wsPath string, logger *zap.Logger) *NetworkClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &NetworkClient{
		addr:     addr,
		proto:    proto,
		wsPath:   wsPath,
		logger:   logging.Or(logger).Named("net"),
		ctx:      ctx,
		cancel:   cancel,
		recvChan: make(chan protocol.Envelope, recvQueueSize),
		sendChan: make(chan []byte, sendQueueSize),
		sendDone: make(chan struct{}),
	}
}

// NewDialer 每次调用都建立一条新的网络连接
func NewDialer(addr, proto, wsPath string, logger *zap.Logger) Dialer {
	return func(ctx context.Context) (Link, error) {
		nc := NewNetworkClient(addr, proto, wsPath, logger)
		if err := nc.Connect(ctx); err != nil {
			return nil, err
		}
		return nc, nil
	}
}

// Connect 连接到服务器并启动收发循环
func (nc *NetworkClient) Connect(ctx context.Context) error {
	nc.logger.Info("连接到服务器", zap.String("addr", nc.addr), zap.String("proto", nc.proto))

	conn, err := transport.Dial(ctx, nc.proto, nc.addr, nc.wsPath)
	if err != nil {
		return fmt.Errorf("连接服务器失败: %w", err)
	}
	nc.conn = conn
	nc.logger.Info("已连接到服务器", zap.Stringer("remote", conn.RemoteAddr()))

	nc.wg.Add(1)
	go nc.receiveLoop()
	go nc.sendLoop()
	return nil
}

// SetSessionID 之后发送的消息都带上该会话 ID
func (nc *NetworkClient) SetSessionID(id uint32) {
	nc.sessionID.Store(id)
}

// Send 编码并放入发送队列
func (nc *NetworkClient) Send(m protocol.Message) error {
	if nc.conn == nil || nc.closed.Load() {
		return ErrNotConnected
	}
	data, err := protocol.Marshal(nc.sessionID.Load(), m)
	if err != nil {
		return err
	}
	select {
	case nc.sendChan <- data:
		return nil
	default:
		if protocol.DeliveryOf(m.Type()) == protocol.Reliable {
			nc.fail(ErrSendQueueFull)
		}
		return ErrSendQueueFull
	}
}

// Receive 接收消息（非阻塞）
func (nc *NetworkClient) Receive() (protocol.Envelope, bool) {
	select {
	case env := <-nc.recvChan:
		return env, true
	default:
		return protocol.Envelope{}, false
	}
}

// Err 连接失败的原因
func (nc *NetworkClient) Err() error {
	if v := nc.err.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func (nc *NetworkClient) fail(err error) {
	nc.errOnce.Do(func() {
		nc.err.Store(err)
		nc.cancel()
	})
}

// Close 关闭连接
func (nc *NetworkClient) Close() {
	if !nc.closed.CompareAndSwap(false, true) {
		return
	}
	nc.fail(ErrNotConnected)
	if nc.conn != nil {
		<-nc.sendDone
		nc.conn.Close()
	}
	nc.wg.Wait()
	nc.logger.Info("网络客户端已关闭")
}

// receiveLoop 接收循环
func (nc *NetworkClient) receiveLoop() {
	defer nc.wg.Done()

	for {
		data, err := nc.conn.ReadFrame()
		if err != nil {
			if nc.ctx.Err() == nil {
				nc.fail(fmt.Errorf("读取消息失败: %w", err))
			}
			return
		}

		env, err := protocol.Unmarshal(data)
		if err != nil {
			nc.logger.Warn("解码消息失败", zap.Error(err))
			continue
		}

		select {
		case nc.recvChan <- env:
		case <-nc.ctx.Done():
			return
		}
	}
}

// sendLoop 发送循环
func (nc *NetworkClient) sendLoop() {
	defer close(nc.sendDone)

	for {
		select {
		case <-nc.ctx.Done():
			// 尽量把已排队的消息（例如 Disconnect）发出去
			for {
				select {
				case data := <-nc.sendChan:
					_ = nc.conn.SetWriteDeadline(time.Now().Add(100 * time.Millisecond))
					if err := nc.conn.WriteFrame(data); err != nil {
						return
					}
				default:
					return
				}
			}

		case data := <-nc.sendChan:
			_ = nc.conn.SetWriteDeadline(time.Now().Add(time.Second))
			if err := nc.conn.WriteFrame(data); err != nil {
				nc.fail(fmt.Errorf("发送消息失败: %w", err))
				return
			}
		}
	}
}
