package net

import (
	"fmt"
	"sync"
)

// Loopback is an in-memory network with one host endpoint and any number
// of client endpoints. Messages are delivered in order and become
// receivable immediately. Unreliable sends can be dropped on demand.
type Loopback struct {
	mu             sync.Mutex
	links          map[ConnID]*loopLink
	order          []ConnID
	nextID         ConnID
	hostEvents     []Event
	dropUnreliable bool
	host           *LoopbackHost
}

type loopLink struct {
	id       ConnID
	addr     string
	toHost   [][]byte
	toClient [][]byte
	accepted bool
	closed   bool
	events   []Event // pending client-side events
}

func NewLoopback() *Loopback {
	l := &Loopback{links: make(map[ConnID]*loopLink)}
	l.host = &LoopbackHost{net: l}
	return l
}

// SetDropUnreliable makes every unreliable send vanish.
func (l *Loopback) SetDropUnreliable(drop bool) {
	l.mu.Lock()
	l.dropUnreliable = drop
	l.mu.Unlock()
}

// Host returns the host-side transport.
func (l *Loopback) Host() *LoopbackHost {
	return l.host
}

// Dial creates a client endpoint and raises ConnRequested on the host.
func (l *Loopback) Dial() (*LoopbackClient, ConnID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	link := &loopLink{id: l.nextID, addr: fmt.Sprintf("loopback:%d", l.nextID)}
	l.links[link.id] = link
	l.order = append(l.order, link.id)
	l.hostEvents = append(l.hostEvents, Event{Kind: EventConnRequested, Conn: link.id, Addr: link.addr})
	return &LoopbackClient{net: l, link: link}, link.id
}

func (l *Loopback) dropped(reliable bool) bool {
	return !reliable && l.dropUnreliable
}

// LoopbackHost is the host side of a Loopback.
type LoopbackHost struct {
	net *Loopback
}

func (h *LoopbackHost) link(conn ConnID) (*loopLink, bool) {
	link, ok := h.net.links[conn]
	if !ok || link.closed {
		return nil, false
	}
	return link, true
}

func (h *LoopbackHost) Send(conn ConnID, payload []byte, reliable bool) error {
	h.net.mu.Lock()
	defer h.net.mu.Unlock()
	link, ok := h.link(conn)
	if !ok || !link.accepted {
		return ErrUnknownConn
	}
	if !h.net.dropped(reliable) {
		link.toClient = append(link.toClient, clone(payload))
	}
	return nil
}

func (h *LoopbackHost) Broadcast(payload []byte, reliable bool) error {
	h.net.mu.Lock()
	defer h.net.mu.Unlock()
	if h.net.dropped(reliable) {
		return nil
	}
	for _, id := range h.net.order {
		if link, ok := h.link(id); ok && link.accepted {
			link.toClient = append(link.toClient, clone(payload))
		}
	}
	return nil
}

func (h *LoopbackHost) Receive(conn ConnID, max int) [][]byte {
	h.net.mu.Lock()
	defer h.net.mu.Unlock()
	link, ok := h.link(conn)
	if !ok || !link.accepted {
		return nil
	}
	return take(&link.toHost, max)
}

func (h *LoopbackHost) Accept(conn ConnID) error {
	h.net.mu.Lock()
	defer h.net.mu.Unlock()
	link, ok := h.link(conn)
	if !ok {
		return ErrUnknownConn
	}
	link.accepted = true
	return nil
}

func (h *LoopbackHost) Close(conn ConnID) error {
	h.net.mu.Lock()
	defer h.net.mu.Unlock()
	link, ok := h.link(conn)
	if !ok {
		return ErrUnknownConn
	}
	link.closed = true
	link.toHost = nil
	link.events = append(link.events, Event{Kind: EventConnClosed, Conn: conn, Addr: "loopback:host"})
	return nil
}

func (h *LoopbackHost) Poll() []Event {
	h.net.mu.Lock()
	defer h.net.mu.Unlock()
	events := h.net.hostEvents
	h.net.hostEvents = nil
	return events
}

func (h *LoopbackHost) Shutdown() error {
	h.net.mu.Lock()
	defer h.net.mu.Unlock()
	for _, link := range h.net.links {
		if !link.closed {
			link.closed = true
			link.events = append(link.events, Event{Kind: EventConnClosed, Conn: link.id, Addr: "loopback:host"})
		}
	}
	return nil
}

// LoopbackClient is one client side of a Loopback. Its single connection
// shares the ConnID the host sees.
type LoopbackClient struct {
	net  *Loopback
	link *loopLink
}

func (c *LoopbackClient) check(conn ConnID) error {
	if conn != c.link.id || c.link.closed {
		return ErrUnknownConn
	}
	return nil
}

// Send queues payload toward the host. Messages sent before the host
// accepts are held until it does.
func (c *LoopbackClient) Send(conn ConnID, payload []byte, reliable bool) error {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	if err := c.check(conn); err != nil {
		return err
	}
	if !c.net.dropped(reliable) {
		c.link.toHost = append(c.link.toHost, clone(payload))
	}
	return nil
}

func (c *LoopbackClient) Broadcast(payload []byte, reliable bool) error {
	return c.Send(c.link.id, payload, reliable)
}

func (c *LoopbackClient) Receive(conn ConnID, max int) [][]byte {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	if conn != c.link.id {
		return nil
	}
	return take(&c.link.toClient, max)
}

func (c *LoopbackClient) Accept(conn ConnID) error {
	return c.check(conn)
}

func (c *LoopbackClient) Close(conn ConnID) error {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	if err := c.check(conn); err != nil {
		return err
	}
	c.link.closed = true
	c.link.toClient = nil
	c.net.hostEvents = append(c.net.hostEvents, Event{Kind: EventConnClosed, Conn: conn, Addr: c.link.addr})
	return nil
}

func (c *LoopbackClient) Poll() []Event {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	events := c.link.events
	c.link.events = nil
	return events
}

func (c *LoopbackClient) Shutdown() error {
	if err := c.Close(c.link.id); err != nil && err != ErrUnknownConn {
		return err
	}
	return nil
}

func take(queue *[][]byte, max int) [][]byte {
	q := *queue
	if len(q) == 0 {
		return nil
	}
	n := len(q)
	if max > 0 && max < n {
		n = max
	}
	out := q[:n:n]
	*queue = q[n:]
	return out
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
