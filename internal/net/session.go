package net

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// frameConn is a message-oriented connection. TCP frames with ReadFrame and
// WriteFrame; WebSocket carries one binary message per frame.
type frameConn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte, deadline time.Time) error
	Close() error
	RemoteAddr() string
}

// Session is a single stream connection. Network I/O runs in dedicated
// goroutines; the tick goroutine only touches the queues.
type Session struct {
	ID   ConnID
	conn frameConn

	InQueue  chan []byte // tick goroutine reads messages from here
	OutQueue chan []byte // writer goroutine reads from here

	Addr string

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	onClose   func(ConnID)

	limiter      *rate.Limiter // readLoop goroutine only
	writeTimeout time.Duration

	log *zap.Logger
}

func newSession(conn frameConn, id ConnID, opts Options, onClose func(ConnID), log *zap.Logger) *Session {
	s := &Session{
		ID:           id,
		conn:         conn,
		InQueue:      make(chan []byte, opts.InQueueSize),
		OutQueue:     make(chan []byte, opts.OutQueueSize),
		Addr:         conn.RemoteAddr(),
		closeCh:      make(chan struct{}),
		onClose:      onClose,
		writeTimeout: opts.WriteTimeout,
		log:          log.With(zap.Uint64("conn", uint64(id))),
	}
	if opts.PacketsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.PacketsPerSecond), opts.PacketsPerSecond)
	}
	return s
}

// Start launches the reader and writer goroutines.
func (s *Session) Start() {
	go s.readLoop()
	go s.writeLoop()
}

// Send queues a message for the writer goroutine.
// Non-blocking: if OutQueue is full, the session is closed (backpressure).
func (s *Session) Send(data []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	select {
	case s.OutQueue <- data:
		return nil
	default:
		s.log.Warn("output queue full, dropping slow connection")
		s.Close()
		return ErrClosed
	}
}

// Drain returns up to max queued inbound messages without blocking.
func (s *Session) Drain(max int) [][]byte {
	var out [][]byte
	for max <= 0 || len(out) < max {
		select {
		case data := <-s.InQueue:
			out = append(out, data)
		default:
			return out
		}
	}
	return out
}

// Close shuts down the session. Safe to call from any goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.closeCh)
		s.conn.Close()
		if s.onClose != nil {
			s.onClose(s.ID)
		}
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// readLoop pushes inbound messages onto InQueue until the connection fails,
// the session closes or the peer exceeds its packet rate.
func (s *Session) readLoop() {
	defer s.Close()

	for {
		select {
		case <-s.closeCh:
			return
		default:
		}

		payload, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() {
				s.log.Debug("read error", zap.Error(err))
			}
			return
		}
		if len(payload) == 0 {
			continue
		}

		if s.limiter != nil && !s.limiter.Allow() {
			s.log.Warn("packet rate exceeded, closing connection")
			return
		}

		// Block until InQueue has space; dropping would break ordering.
		select {
		case s.InQueue <- payload:
		case <-s.closeCh:
			return
		}
	}
}

func (s *Session) writeLoop() {
	defer s.Close()

	for {
		select {
		case data := <-s.OutQueue:
			if !s.writeOne(data) {
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

func (s *Session) writeOne(data []byte) bool {
	s.log.Debug("TX",
		zap.String("tag", fmt.Sprintf("0x%02X(%d)", data[0], data[0])),
		zap.Int("len", len(data)),
	)
	if err := s.conn.WriteMessage(data, time.Now().Add(s.writeTimeout)); err != nil {
		if !s.closed.Load() {
			s.log.Debug("write error", zap.Error(err))
		}
		return false
	}
	return true
}
