// Package net adapts connection-oriented transports (TCP, WebSocket relay,
// in-memory loopback) to the opaque capability the session layer consumes:
// send, broadcast, non-blocking batch receive, accept and close.
package net

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownConn = errors.New("unknown connection")
	ErrClosed      = errors.New("transport closed")
)

// ConnID identifies a connection within one transport endpoint.
type ConnID uint64

type EventKind int

const (
	EventConnRequested EventKind = iota // a remote wants in; Accept or Close it
	EventConnClosed                     // the remote went away
)

func (k EventKind) String() string {
	switch k {
	case EventConnRequested:
		return "ConnRequested"
	case EventConnClosed:
		return "ConnClosed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a connection lifecycle notification returned by Poll.
type Event struct {
	Kind EventKind
	Conn ConnID
	Addr string
}

// Transport is consumed from a single goroutine (the session tick). I/O may
// run on other goroutines, but every method here is non-blocking.
type Transport interface {
	// Send queues payload for one accepted connection. Unreliable payloads
	// may be dropped by transports that distinguish channels.
	Send(conn ConnID, payload []byte, reliable bool) error
	// Broadcast queues payload for every accepted connection.
	Broadcast(payload []byte, reliable bool) error
	// Receive returns up to max messages already delivered by conn, in order.
	Receive(conn ConnID, max int) [][]byte
	// Accept admits a requested connection.
	Accept(conn ConnID) error
	// Close drops a connection synchronously; nothing more is received from it.
	Close(conn ConnID) error
	// Poll returns lifecycle events since the previous call.
	Poll() []Event
	// Shutdown closes every connection and stops listening.
	Shutdown() error
}

// Options tune stream transports.
type Options struct {
	InQueueSize      int
	OutQueueSize     int
	WriteTimeout     time.Duration
	PacketsPerSecond int // 0 = unlimited
}

func (o Options) withDefaults() Options {
	if o.InQueueSize <= 0 {
		o.InQueueSize = 256
	}
	if o.OutQueueSize <= 0 {
		o.OutQueueSize = 512
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	return o
}
