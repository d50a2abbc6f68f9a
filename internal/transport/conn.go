// Package transport 提供 tcp / kcp / ws 三种传输上的定长帧连接
package transport

import (
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"skirmish/pkg/protocol"
)

// FrameConn 以完整消息为单位收发的连接
type FrameConn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() net.Addr
	Close() error
}

// streamConn 流式连接（tcp / kcp）上的长度前缀帧
type streamConn struct {
	net.Conn
}

// NewStreamConn 包装流式连接
func NewStreamConn(c net.Conn) FrameConn {
	return &streamConn{Conn: c}
}

func (c *streamConn) ReadFrame() ([]byte, error) {
	return protocol.ReadFrame(c.Conn)
}

func (c *streamConn) WriteFrame(data []byte) error {
	return protocol.WriteFrame(c.Conn, data)
}

// wsConn websocket 二进制消息，每条消息即一帧
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex // 写锁，gorilla 连接只允许一个写者
}

// NewWSConn 包装 websocket 连接
func NewWSConn(c *websocket.Conn) FrameConn {
	c.SetReadLimit(protocol.MaxFrameSize)
	return &wsConn{conn: c}
}

func (c *wsConn) ReadFrame() ([]byte, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) WriteFrame(data []byte) error {
	if len(data) > protocol.MaxFrameSize {
		return protocol.ErrFrameTooLarge
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (c *wsConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *wsConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

func (c *wsConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
