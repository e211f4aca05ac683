package system

import (
	"slices"
	"testing"
	"time"

	"github.com/quarryline/netsync/internal/core/event"
	coresys "github.com/quarryline/netsync/internal/core/system"
)

type recorder struct {
	calls  []string
	bus    *event.Bus
	dt     time.Duration
	paused bool
}

func (r *recorder) BeginTick(dt time.Duration) { r.dt = dt; r.calls = append(r.calls, "begin") }
func (r *recorder) PollTransport()             { r.calls = append(r.calls, "poll") }
func (r *recorder) ReceiveAll()                { r.calls = append(r.calls, "receive") }
func (r *recorder) RunDeferred()               { r.calls = append(r.calls, "deferred") }
func (r *recorder) PostUpdate()                { r.calls = append(r.calls, "post") }
func (r *recorder) Replicate()                 { r.calls = append(r.calls, "replicate") }
func (r *recorder) Flush()                     { r.calls = append(r.calls, "flush") }
func (r *recorder) RefreshGauges()             { r.calls = append(r.calls, "gauges") }
func (r *recorder) Paused() bool               { return r.paused }
func (r *recorder) Bus() *event.Bus            { return r.bus }

type ping struct{}

func TestInstallRunsPhasesInOrder(t *testing.T) {
	rec := &recorder{bus: event.NewBus()}
	event.Subscribe(rec.bus, func(ping) { rec.calls = append(rec.calls, "event") })

	r := coresys.NewRunner()
	// Registered first but runs in its own phase.
	r.Register(coresys.Func{P: coresys.PhaseCleanup, Fn: func(time.Duration) { rec.calls = append(rec.calls, "late") }})
	Install(r, rec, func(time.Duration) { rec.calls = append(rec.calls, "gameplay") })
	if r.Len() != 8 {
		t.Fatalf("systems = %d", r.Len())
	}

	event.Emit(rec.bus, ping{})
	r.Tick(20 * time.Millisecond)

	want := []string{"begin", "poll", "receive", "event", "deferred", "gameplay", "post", "replicate", "flush", "late", "gauges"}
	if !slices.Equal(rec.calls, want) {
		t.Fatalf("calls = %v\nwant    %v", rec.calls, want)
	}
	if rec.dt != 20*time.Millisecond {
		t.Fatalf("dt = %v", rec.dt)
	}
}

func TestGameplayStandsStillWhilePaused(t *testing.T) {
	rec := &recorder{bus: event.NewBus(), paused: true}
	var played time.Duration
	sys := NewGameplaySystem(rec, func(dt time.Duration) { played += dt })

	r := coresys.NewRunner()
	r.Register(sys)
	for i := 0; i < 3; i++ {
		r.Tick(10 * time.Millisecond)
	}
	rec.paused = false
	r.Tick(10 * time.Millisecond)

	if played != 10*time.Millisecond {
		t.Fatalf("played = %v, want one tick", played)
	}
	if sys.Skipped() != 3 {
		t.Fatalf("skipped = %d, want 3", sys.Skipped())
	}
}

func TestInstallWithoutGameplay(t *testing.T) {
	r := coresys.NewRunner()
	Install(r, &recorder{bus: event.NewBus()}, nil)
	if r.Len() != 6 {
		t.Fatalf("systems = %d, want 6", r.Len())
	}
}
