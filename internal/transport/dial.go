package transport

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	kcp "github.com/xtaci/kcp-go/v5"
)

// DialTimeout 建立连接的超时
const DialTimeout = 5 * time.Second

// Dial 按协议连接服务器
func Dial(ctx context.Context, proto, addr, wsPath string) (FrameConn, error) {
	switch proto {
	case "", "tcp":
		d := net.Dialer{Timeout: DialTimeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			tcpConn.SetNoDelay(true)
		}
		return NewStreamConn(conn), nil
	case "kcp":
		conn, err := kcp.DialWithOptions(addr, nil, 0, 0)
		if err != nil {
			return nil, err
		}
		conn.SetStreamMode(true)
		conn.SetNoDelay(1, 10, 2, 1)
		return NewStreamConn(conn), nil
	case "ws":
		if wsPath == "" {
			wsPath = "/ws"
		}
		u := url.URL{Scheme: "ws", Host: addr, Path: wsPath}
		d := websocket.Dialer{HandshakeTimeout: DialTimeout}
		conn, _, err := d.DialContext(ctx, u.String(), nil)
		if err != nil {
			return nil, err
		}
		return NewWSConn(conn), nil
	default:
		return nil, fmt.Errorf("不支持的协议: %s", proto)
	}
}
