package scripting

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quarryline/netsync/internal/protocol"
	"github.com/quarryline/netsync/internal/replica"
	"github.com/quarryline/netsync/internal/world"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

const switchScript = `
changes = 0
function switch_changed(ev)
  changes = changes + 1
  last_field = ev.field
  last_new = ev.new
  last_old = ev.old
  last_id = ev.net_id
end
`

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "switch.lua"), []byte(switchScript), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not lua"), 0o644); err != nil {
		t.Fatal(err)
	}
	e, err := NewEngine(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func TestChangeCallbackRunsLua(t *testing.T) {
	e := newTestEngine(t)
	reg := replica.NewRegistry(replica.Options{Role: protocol.RoleHost, Local: 1, Callbacks: e})

	obj := replica.NewObject("lever", world.NewSwitch())
	id, err := reg.Register(obj, 0)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	sw, _ := replica.Find[*world.Switch](obj)

	sw.Toggle()
	sw.On.Set(true)

	if got := e.Global("changes"); got != lua.LNumber(1) {
		t.Fatalf("changes = %v, want 1", got)
	}
	if e.Global("last_field") != lua.LString("on") || e.Global("last_new") != lua.LTrue || e.Global("last_old") != lua.LFalse {
		t.Fatalf("event = %v %v %v", e.Global("last_field"), e.Global("last_old"), e.Global("last_new"))
	}
	if e.Global("last_id") != lua.LNumber(id) {
		t.Fatalf("net_id = %v, want %d", e.Global("last_id"), id)
	}
}

func TestInvokeChange(t *testing.T) {
	e := newTestEngine(t)
	if err := e.InvokeChange("undefined_callback", replica.ChangeEvent{}); err != nil {
		t.Fatalf("undefined callback: %v", err)
	}
	if err := e.DoString(`function broken(ev) error("boom") end`); err != nil {
		t.Fatal(err)
	}
	if err := e.InvokeChange("broken", replica.ChangeEvent{New: int32(3)}); err == nil {
		t.Fatal("expected error from failing callback")
	}
}

func TestTickCallsOnTick(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Tick(50*time.Millisecond, 1); err != nil {
		t.Fatalf("tick without on_tick: %v", err)
	}
	if err := e.DoString(`
elapsed = 0
function on_tick(dt, tick)
  elapsed = elapsed + dt
  last_tick = tick
end`); err != nil {
		t.Fatal(err)
	}
	for i := uint64(1); i <= 4; i++ {
		if err := e.Tick(250*time.Millisecond, i); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	if e.Global("elapsed") != lua.LNumber(1) || e.Global("last_tick") != lua.LNumber(4) {
		t.Fatalf("elapsed = %v last_tick = %v", e.Global("elapsed"), e.Global("last_tick"))
	}

	if err := e.DoString(`function on_tick() error("stalled") end`); err != nil {
		t.Fatal(err)
	}
	if err := e.Tick(time.Millisecond, 5); err == nil {
		t.Fatal("expected on_tick error")
	}
}

func TestMissingDirIsEmpty(t *testing.T) {
	e, err := NewEngine(filepath.Join(t.TempDir(), "absent"), zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()
	if e.Global("switch_changed") != lua.LNil {
		t.Fatal("callback defined without scripts")
	}
}

func TestBadScriptFails(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.lua"), []byte("function ("), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewEngine(dir, zap.NewNop()); err == nil {
		t.Fatal("expected load error")
	}
}

func TestToLua(t *testing.T) {
	cases := []struct {
		in   any
		want lua.LValue
	}{
		{int32(-4), lua.LNumber(-4)},
		{float32(1.5), lua.LNumber(1.5)},
		{true, lua.LTrue},
		{"x", lua.LString("x")},
		{protocol.Identity(9), lua.LNumber(9)},
		{nil, lua.LNil},
	}
	for _, c := range cases {
		if got := toLua(c.in); got != c.want {
			t.Errorf("toLua(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}
