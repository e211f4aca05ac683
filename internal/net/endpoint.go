package net

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Endpoint is a Transport over stream sessions. Sessions are created on
// I/O goroutines and handed to the tick goroutine via channels; the maps
// below are touched only from the tick goroutine.
type Endpoint struct {
	newConns chan *Session
	deadCh   chan ConnID

	pending map[ConnID]*Session
	active  map[ConnID]*Session

	nextID atomic.Uint64
	opts   Options
	addr   net.Addr
	stop   func() error

	closeCh   chan struct{}
	closeOnce sync.Once

	log *zap.Logger
}

func newEndpoint(opts Options, log *zap.Logger) *Endpoint {
	return &Endpoint{
		newConns: make(chan *Session, 64),
		deadCh:   make(chan ConnID, 256),
		pending:  make(map[ConnID]*Session),
		active:   make(map[ConnID]*Session),
		opts:     opts.withDefaults(),
		closeCh:  make(chan struct{}),
		log:      log,
	}
}

// adopt wraps conn in a session and offers it to the tick goroutine.
func (e *Endpoint) adopt(conn frameConn) {
	id := ConnID(e.nextID.Add(1))
	sess := newSession(conn, id, e.opts, e.notifyDead, e.log)
	sess.Start()

	e.log.Info("connection opened", zap.Uint64("conn", uint64(id)), zap.String("addr", sess.Addr))

	select {
	case e.newConns <- sess:
	default:
		e.log.Warn("connection queue full, refusing connection", zap.String("addr", sess.Addr))
		sess.Close()
	}
}

func (e *Endpoint) notifyDead(id ConnID) {
	select {
	case e.deadCh <- id:
	default:
	}
}

// Addr returns the listener address, or nil for dialed endpoints.
func (e *Endpoint) Addr() net.Addr {
	return e.addr
}

func (e *Endpoint) Poll() []Event {
	var events []Event
	for {
		select {
		case sess := <-e.newConns:
			// A session can die between Start and the hand-off; its
			// close notice may already have been drained as unknown.
			if sess.IsClosed() {
				continue
			}
			e.pending[sess.ID] = sess
			events = append(events, Event{Kind: EventConnRequested, Conn: sess.ID, Addr: sess.Addr})
			continue
		default:
		}
		break
	}
	for {
		select {
		case id := <-e.deadCh:
			sess, ok := e.lookup(id)
			if !ok {
				continue
			}
			delete(e.pending, id)
			delete(e.active, id)
			events = append(events, Event{Kind: EventConnClosed, Conn: id, Addr: sess.Addr})
			continue
		default:
		}
		break
	}
	return events
}

func (e *Endpoint) lookup(id ConnID) (*Session, bool) {
	if s, ok := e.active[id]; ok {
		return s, true
	}
	s, ok := e.pending[id]
	return s, ok
}

func (e *Endpoint) Accept(conn ConnID) error {
	sess, ok := e.pending[conn]
	if !ok {
		return ErrUnknownConn
	}
	delete(e.pending, conn)
	e.active[conn] = sess
	return nil
}

func (e *Endpoint) Send(conn ConnID, payload []byte, _ bool) error {
	if len(payload) == 0 {
		return nil
	}
	sess, ok := e.active[conn]
	if !ok {
		return ErrUnknownConn
	}
	return sess.Send(payload)
}

func (e *Endpoint) Broadcast(payload []byte, reliable bool) error {
	var firstErr error
	for id := range e.active {
		if err := e.Send(id, payload, reliable); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *Endpoint) Receive(conn ConnID, max int) [][]byte {
	sess, ok := e.active[conn]
	if !ok {
		return nil
	}
	return sess.Drain(max)
}

func (e *Endpoint) Close(conn ConnID) error {
	sess, ok := e.lookup(conn)
	if !ok {
		return ErrUnknownConn
	}
	delete(e.pending, conn)
	delete(e.active, conn)
	sess.Close()
	return nil
}

func (e *Endpoint) Shutdown() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.closeCh)
		if e.stop != nil {
			err = e.stop()
		}
		for id, sess := range e.active {
			sess.Close()
			delete(e.active, id)
		}
		for id, sess := range e.pending {
			sess.Close()
			delete(e.pending, id)
		}
	})
	return err
}

// attach registers an already-established outbound connection as accepted.
func (e *Endpoint) attach(conn frameConn) ConnID {
	id := ConnID(e.nextID.Add(1))
	sess := newSession(conn, id, e.opts, e.notifyDead, e.log)
	sess.Start()
	e.active[id] = sess
	return id
}

type tcpConn struct {
	c net.Conn
}

func (t tcpConn) ReadMessage() ([]byte, error) { return ReadFrame(t.c) }

func (t tcpConn) WriteMessage(data []byte, deadline time.Time) error {
	t.c.SetWriteDeadline(deadline)
	return WriteFrame(t.c, data)
}

func (t tcpConn) Close() error       { return t.c.Close() }
func (t tcpConn) RemoteAddr() string { return t.c.RemoteAddr().String() }

// ListenTCP starts accepting framed TCP connections on bindAddr.
func ListenTCP(bindAddr string, opts Options, log *zap.Logger) (*Endpoint, error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}
	e := newEndpoint(opts, log)
	e.addr = ln.Addr()
	e.stop = ln.Close
	go e.acceptLoop(ln)
	return e, nil
}

func (e *Endpoint) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-e.closeCh:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			e.log.Error("accept failed", zap.Error(err))
			continue
		}
		e.adopt(tcpConn{c: conn})
	}
}

// DialTCP connects to a host. The returned ConnID is already accepted.
func DialTCP(ctx context.Context, addr string, opts Options, log *zap.Logger) (*Endpoint, ConnID, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, 0, err
	}
	e := newEndpoint(opts, log)
	return e, e.attach(tcpConn{c: conn}), nil
}
