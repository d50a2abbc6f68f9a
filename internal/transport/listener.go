package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	kcp "github.com/xtaci/kcp-go/v5"
)

// ErrListenerClosed 监听器已关闭
var ErrListenerClosed = errors.New("监听器已关闭")

// Listener 接受帧连接
type Listener interface {
	Accept() (FrameConn, error)
	Close() error
	Addr() net.Addr
}

// Listen 按协议监听；wsPath 只对 ws 生效
func Listen(proto, addr, wsPath string) (Listener, error) {
	switch proto {
	case "", "tcp":
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		return &tcpListener{listener: listener}, nil
	case "kcp":
		listener, err := kcp.ListenWithOptions(addr, nil, 0, 0)
		if err != nil {
			return nil, err
		}
		return &kcpListener{listener: listener}, nil
	case "ws":
		return newWSListener(addr, wsPath)
	default:
		return nil, fmt.Errorf("不支持的协议: %s", proto)
	}
}

type tcpListener struct {
	listener net.Listener
}

func (l *tcpListener) Accept() (FrameConn, error) {
	conn, err := l.listener.Accept()
	if err != nil {
		return nil, err
	}
	// 开启 TCP_NODELAY，禁用 Nagle 算法以减少延迟
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}
	return NewStreamConn(conn), nil
}

func (l *tcpListener) Close() error {
	return l.listener.Close()
}

func (l *tcpListener) Addr() net.Addr {
	return l.listener.Addr()
}

type kcpListener struct {
	listener *kcp.Listener
}

func (l *kcpListener) Accept() (FrameConn, error) {
	session, err := l.listener.AcceptKCP()
	if err != nil {
		return nil, err
	}
	session.SetStreamMode(true)
	session.SetNoDelay(1, 10, 2, 1)
	return NewStreamConn(session), nil
}

func (l *kcpListener) Close() error {
	return l.listener.Close()
}

func (l *kcpListener) Addr() net.Addr {
	return l.listener.Addr()
}

// wsListener 在 HTTP 服务上升级 websocket，把连接交给 Accept
type wsListener struct {
	listener net.Listener
	server   *http.Server
	upgrader websocket.Upgrader

	conns     chan FrameConn
	done      chan struct{}
	closeOnce sync.Once
}

func newWSListener(addr, path string) (*wsListener, error) {
	if path == "" {
		path = "/ws"
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	l := &wsListener{
		listener: listener,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(chan FrameConn, 16),
		done:  make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, l.handle)
	l.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go l.server.Serve(listener)
	return l, nil
}

func (l *wsListener) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	select {
	case l.conns <- NewWSConn(conn):
	case <-l.done:
		conn.Close()
	}
}

func (l *wsListener) Accept() (FrameConn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, ErrListenerClosed
	}
}

func (l *wsListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		err = l.server.Shutdown(ctx)
	})
	return err
}

func (l *wsListener) Addr() net.Addr {
	return l.listener.Addr()
}
