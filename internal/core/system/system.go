package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: transport events, drain and dispatch inbound batches
	PhasePreUpdate               // 1: deliver last tick's events
	PhaseUpdate                  // 2: deferred tasks, client finish-loading replay
	PhasePostUpdate              // 3: loading barrier, timeouts
	PhaseOutput                  // 4: flush dirty NetVars, write outbox to the transport
	PhaseCleanup                 // 5: drop closed peers
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhasePreUpdate:
		return "pre-update"
	case PhaseUpdate:
		return "update"
	case PhasePostUpdate:
		return "post-update"
	case PhaseOutput:
		return "output"
	case PhaseCleanup:
		return "cleanup"
	}
	return "unknown"
}

// System is one unit of per-tick work.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}

// Func adapts a function to System.
type Func struct {
	P  Phase
	Fn func(dt time.Duration)
}

func (f Func) Phase() Phase            { return f.P }
func (f Func) Update(dt time.Duration) { f.Fn(dt) }
