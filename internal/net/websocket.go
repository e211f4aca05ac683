package net

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type wsConn struct {
	c *websocket.Conn
}

func (w wsConn) ReadMessage() ([]byte, error) {
	typ, data, err := w.c.ReadMessage()
	if err != nil {
		return nil, err
	}
	if typ != websocket.BinaryMessage {
		return nil, nil
	}
	return data, nil
}

func (w wsConn) WriteMessage(data []byte, deadline time.Time) error {
	w.c.SetWriteDeadline(deadline)
	return w.c.WriteMessage(websocket.BinaryMessage, data)
}

func (w wsConn) Close() error       { return w.c.Close() }
func (w wsConn) RemoteAddr() string { return w.c.RemoteAddr().String() }

// ListenWS serves WebSocket upgrades on bindAddr at path. Each upgraded
// connection carries one protocol message per binary frame.
func ListenWS(bindAddr, path string, opts Options, log *zap.Logger) (*Endpoint, error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}
	e := newEndpoint(opts, log)
	e.addr = ln.Addr()

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug("websocket upgrade failed", zap.Error(err))
			return
		}
		conn.SetReadLimit(MaxFrameSize)
		e.adopt(wsConn{c: conn})
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	e.stop = srv.Close

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("websocket server stopped", zap.Error(err))
		}
	}()
	return e, nil
}

// DialWS connects to a WebSocket host URL such as ws://127.0.0.1:7778/netsync.
func DialWS(ctx context.Context, url string, opts Options, log *zap.Logger) (*Endpoint, ConnID, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, 0, err
	}
	conn.SetReadLimit(MaxFrameSize)
	e := newEndpoint(opts, log)
	return e, e.attach(wsConn{c: conn}), nil
}
