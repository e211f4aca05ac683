package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quarryline/netsync/internal/protocol"
	"github.com/quarryline/netsync/internal/replica"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM that resolves named NetVar change
// callbacks to global Lua functions. Single-goroutine access only (tick loop).
type Engine struct {
	vm      *lua.LState
	log     *zap.Logger
	missing map[string]bool
}

// NewEngine creates a Lua engine and loads every script in dir. A missing
// directory yields an engine with no callbacks.
func NewEngine(dir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{SkipOpenLibs: false})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log, missing: make(map[string]bool)}
	vm.SetGlobal("log_info", vm.NewFunction(e.luaLogInfo))

	if dir != "" {
		if err := e.loadDir(dir); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load scripts: %w", err)
		}
	}
	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// DoString runs a chunk of Lua source.
func (e *Engine) DoString(src string) error {
	return e.vm.DoString(src)
}

// InvokeChange calls the global Lua function named name with a table
// {net_id, component, field, old, new}. An undefined function is not an
// error; it is logged once.
func (e *Engine) InvokeChange(name string, ev replica.ChangeEvent) error {
	fn := e.vm.GetGlobal(name)
	if fn == lua.LNil {
		if !e.missing[name] {
			e.missing[name] = true
			e.log.Debug("lua callback not defined", zap.String("name", name))
		}
		return nil
	}

	t := e.vm.NewTable()
	t.RawSetString("net_id", lua.LNumber(ev.NetID))
	t.RawSetString("component", lua.LNumber(ev.Component))
	t.RawSetString("field", lua.LString(ev.Field))
	t.RawSetString("old", toLua(ev.Old))
	t.RawSetString("new", toLua(ev.New))

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, t); err != nil {
		return fmt.Errorf("lua %s: %w", name, err)
	}
	return nil
}

// Tick calls the global Lua function on_tick(dt_seconds, tick) if a script
// defines it.
func (e *Engine) Tick(dt time.Duration, tick uint64) error {
	fn := e.vm.GetGlobal("on_tick")
	if fn == lua.LNil {
		return nil
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, lua.LNumber(dt.Seconds()), lua.LNumber(tick)); err != nil {
		return fmt.Errorf("lua on_tick: %w", err)
	}
	return nil
}

func toLua(v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(x)
	case int32:
		return lua.LNumber(x)
	case float32:
		return lua.LNumber(x)
	case string:
		return lua.LString(x)
	case protocol.Identity:
		return lua.LNumber(x)
	default:
		return lua.LString(fmt.Sprint(x))
	}
}

func (e *Engine) luaLogInfo(L *lua.LState) int {
	e.log.Info("lua", zap.String("msg", L.CheckString(1)))
	return 0
}

// Global returns a global Lua value.
func (e *Engine) Global(name string) lua.LValue {
	return e.vm.GetGlobal(name)
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
