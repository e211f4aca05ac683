// Package system holds the per-tick systems that drive one session through
// the phases of the tick loop.
package system

import (
	"time"

	"github.com/quarryline/netsync/internal/core/event"
	coresys "github.com/quarryline/netsync/internal/core/system"
)

// Session is the part of a Host or Client the tick systems drive.
type Session interface {
	BeginTick(dt time.Duration)
	PollTransport()
	ReceiveAll()
	RunDeferred()
	PostUpdate()
	Replicate()
	Flush()
	RefreshGauges()
	Paused() bool
	Bus() *event.Bus
}

// Install registers the session systems on r in phase order. gameplay may
// be nil; otherwise it is gated on s.Paused.
func Install(r *coresys.Runner, s Session, gameplay func(dt time.Duration)) {
	r.Register(NewInputSystem(s))
	r.Register(NewEventSystem(s.Bus()))
	r.Register(NewDeferredSystem(s))
	if gameplay != nil {
		r.Register(NewGameplaySystem(s, gameplay))
	}
	r.Register(NewBarrierSystem(s))
	r.Register(NewOutputSystem(s))
	r.Register(NewCleanupSystem(s))
}

// InputSystem advances the session clock, handles transport events and
// dispatches inbound batches. Phase 0 (Input).
type InputSystem struct {
	s Session
}

func NewInputSystem(s Session) *InputSystem { return &InputSystem{s: s} }

func (sys *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (sys *InputSystem) Update(dt time.Duration) {
	sys.s.BeginTick(dt)
	sys.s.PollTransport()
	sys.s.ReceiveAll()
}

// EventSystem delivers the events emitted during the previous tick.
// Phase 1 (PreUpdate).
type EventSystem struct {
	bus *event.Bus
}

func NewEventSystem(bus *event.Bus) *EventSystem { return &EventSystem{bus: bus} }

func (sys *EventSystem) Phase() coresys.Phase { return coresys.PhasePreUpdate }

func (sys *EventSystem) Update(_ time.Duration) {
	sys.bus.SwapBuffers()
	sys.bus.DispatchAll()
}

// DeferredSystem runs due deferred tasks, including the client's
// finish-loading replay. Phase 2 (Update).
type DeferredSystem struct {
	s Session
}

func NewDeferredSystem(s Session) *DeferredSystem { return &DeferredSystem{s: s} }

func (sys *DeferredSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (sys *DeferredSystem) Update(_ time.Duration) { sys.s.RunDeferred() }

// GameplaySystem runs gameplay code on ticks where the session is not
// paused, so game time stands still while a scene loads. It runs after the
// deferred tasks of the same tick. Phase 2 (Update).
type GameplaySystem struct {
	s       Session
	fn      func(dt time.Duration)
	skipped int
}

func NewGameplaySystem(s Session, fn func(dt time.Duration)) *GameplaySystem {
	return &GameplaySystem{s: s, fn: fn}
}

func (sys *GameplaySystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (sys *GameplaySystem) Update(dt time.Duration) {
	if sys.s.Paused() {
		sys.skipped++
		return
	}
	sys.fn(dt)
}

// Skipped returns how many ticks were held back by a pause.
func (sys *GameplaySystem) Skipped() int { return sys.skipped }

// BarrierSystem evaluates loading timeouts and the scene barrier.
// Phase 3 (PostUpdate).
type BarrierSystem struct {
	s Session
}

func NewBarrierSystem(s Session) *BarrierSystem { return &BarrierSystem{s: s} }

func (sys *BarrierSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (sys *BarrierSystem) Update(_ time.Duration) { sys.s.PostUpdate() }

// OutputSystem queues dirty NetVars and writes the outbox. Phase 4 (Output).
type OutputSystem struct {
	s Session
}

func NewOutputSystem(s Session) *OutputSystem { return &OutputSystem{s: s} }

func (sys *OutputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (sys *OutputSystem) Update(_ time.Duration) {
	sys.s.Replicate()
	sys.s.Flush()
}

// CleanupSystem publishes end-of-tick gauges. Phase 5 (Cleanup).
type CleanupSystem struct {
	s Session
}

func NewCleanupSystem(s Session) *CleanupSystem { return &CleanupSystem{s: s} }

func (sys *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (sys *CleanupSystem) Update(_ time.Duration) { sys.s.RefreshGauges() }
