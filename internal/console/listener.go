package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
)

// Address schemes supported by Listen.
const (
	schemeTCP = "tcp://"
	schemeWS  = "ws://"
)

// Listener accepts plugin connections.
type Listener interface {
	Accept(ctx context.Context) (io.ReadWriteCloser, error)
	Addr() net.Addr
	Close() error
}

// Listen listens on a tcp://host:port or ws://host:port address, the address
// forms the plugin dials. An address without scheme is TCP.
func Listen(address string) (Listener, error) {
	if rest, ok := strings.CutPrefix(address, schemeWS); ok {
		host, _, _ := strings.Cut(rest, "/")
		return listenWebSocket(host)
	}

	l, err := net.Listen("tcp", strings.TrimPrefix(address, schemeTCP))
	if err != nil {
		return nil, fmt.Errorf("listening on '%s': %w", address, err)
	}
	return &tcpListener{Listener: l}, nil
}

type tcpListener struct {
	net.Listener
}

func (l *tcpListener) Accept(ctx context.Context) (io.ReadWriteCloser, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = l.Listener.Close()
	})
	defer stop()

	conn, err := l.Listener.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("accepting connection: %w", err)
	}
	return conn, nil
}

type wsListener struct {
	listener net.Listener
	server   *http.Server
	conns    chan *wsConn
}

// wsConn keeps its upgrade handler running until it is closed.
type wsConn struct {
	net.Conn
	once   sync.Once
	closed chan struct{}
}

func (c *wsConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(func() { close(c.closed) })
	return err
}

func listenWebSocket(address string) (*wsListener, error) {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listening on '%s': %w", address, err)
	}

	ws := &wsListener{
		listener: l,
		conns:    make(chan *wsConn),
	}
	ws.server = &http.Server{Handler: http.HandlerFunc(ws.upgrade)}
	go func() {
		_ = ws.server.Serve(l)
	}()
	return ws, nil
}

func (l *wsListener) upgrade(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	c.SetReadLimit(maxLineSize)

	conn := &wsConn{
		Conn:   websocket.NetConn(r.Context(), c, websocket.MessageText),
		closed: make(chan struct{}),
	}
	select {
	case l.conns <- conn:
	case <-r.Context().Done():
		_ = c.CloseNow()
		return
	}

	select {
	case <-conn.closed:
	case <-r.Context().Done():
	}
}

func (l *wsListener) Accept(ctx context.Context) (io.ReadWriteCloser, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *wsListener) Addr() net.Addr {
	return l.listener.Addr()
}

func (l *wsListener) Close() error {
	if err := l.server.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("closing server: %w", err)
	}
	return nil
}
