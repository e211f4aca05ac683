// Package protocol defines the typed wire messages exchanged between a host
// and its clients, and the registry that maps one-byte tags to decoders.
//
// Wire layout: [1 byte tag][kind header][fields]. Object messages carry a
// 4-byte object ID header, component messages add a 4-byte component index.
// All integers are little-endian and fixed-width; there is no versioning,
// both ends must run identical layouts.
package protocol

import (
	"errors"
	"fmt"

	"github.com/quarryline/netsync/internal/net/packet"
)

var (
	ErrUnknownTag   = errors.New("unknown message tag")
	ErrShortPayload = errors.New("short message payload")
	ErrEmpty        = errors.New("empty message")
)

// Tag is the one-byte wire discriminator of a message kind.
type Tag byte

// Identity is the stable cross-session key of a participant. Zero means none.
type Identity uint64

const NoIdentity Identity = 0

// Kind says what a message targets.
type Kind int

const (
	KindControl   Kind = iota // free-standing (scene change, spawn, destroy, ...)
	KindObject                // targets one NetworkObject
	KindComponent             // targets one NetworkBehaviour of a NetworkObject
)

func (k Kind) String() string {
	switch k {
	case KindControl:
		return "control"
	case KindObject:
		return "object"
	case KindComponent:
		return "component"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Role is the local side of a session.
type Role int

const (
	RoleHost Role = iota
	RoleClient
)

func (r Role) String() string {
	if r == RoleHost {
		return "host"
	}
	return "client"
}

// Filter restricts which role may act on a message.
type Filter int

const (
	FilterAll        Filter = iota
	FilterClientOnly        // sent by the host, processed by clients
	FilterHostOnly          // sent by clients, processed by the host
)

func (f Filter) String() string {
	switch f {
	case FilterAll:
		return "all"
	case FilterClientOnly:
		return "client-only"
	case FilterHostOnly:
		return "host-only"
	default:
		return fmt.Sprintf("Filter(%d)", int(f))
	}
}

// Allows reports whether a receiver with the given role may process the message.
func (f Filter) Allows(role Role) bool {
	switch f {
	case FilterAll:
		return true
	case FilterClientOnly:
		return role == RoleClient
	case FilterHostOnly:
		return role == RoleHost
	}
	return false
}

// Message is one decoded protocol message. Encode writes the body that
// follows the tag and kind header.
type Message interface {
	Tag() Tag
	Encode(w *packet.Writer)
}

// ObjectMessage targets a NetworkObject by ID.
type ObjectMessage interface {
	Message
	ObjectID() int32
}

// ComponentMessage targets a NetworkBehaviour by object ID and component index.
type ComponentMessage interface {
	ObjectMessage
	ComponentIndex() int32
}

// Header carries the kind header fields parsed before a body decoder runs.
type Header struct {
	Object    int32
	Component int32
}

// ObjectHeader is embedded by object-targeted messages.
type ObjectHeader struct {
	Object int32
}

func (h ObjectHeader) ObjectID() int32 { return h.Object }

// ComponentHeader is embedded by component-targeted messages.
type ComponentHeader struct {
	Object    int32
	Component int32
}

func (h ComponentHeader) ObjectID() int32       { return h.Object }
func (h ComponentHeader) ComponentIndex() int32 { return h.Component }
