package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM for trigger behavior.
// Single-goroutine access only (simulation loop).
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all trigger scripts from the
// given directory.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}

	if err := e.loadDir(filepath.Join(scriptsDir, "triggers")); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load trigger scripts: %w", err)
	}

	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
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

// TouchContext holds pre-packed data for one trigger contact.
type TouchContext struct {
	TriggerID        int
	TriggerArchetype string
	MoverID          int
	MoverArchetype   string
	MoverX           float64
	MoverY           float64
	MoverZ           float64
	Tick             int64
}

// TouchCommand is a single action returned by the Lua touch hook.
type TouchCommand struct {
	Type    string // "remove_mover", "remove_trigger", "teleport_mover", "log"
	X, Y, Z float64
	Message string
}

// RunTouch calls Lua on_touch(ctx) and returns the commands it produced.
// A missing hook or a script error yields no commands.
func (e *Engine) RunTouch(ctx TouchContext) []TouchCommand {
	fn := e.vm.GetGlobal("on_touch")
	if fn == lua.LNil {
		return nil
	}

	t := e.vm.NewTable()

	trig := e.vm.NewTable()
	trig.RawSetString("id", lua.LNumber(ctx.TriggerID))
	trig.RawSetString("archetype", lua.LString(ctx.TriggerArchetype))
	t.RawSetString("trigger", trig)

	mov := e.vm.NewTable()
	mov.RawSetString("id", lua.LNumber(ctx.MoverID))
	mov.RawSetString("archetype", lua.LString(ctx.MoverArchetype))
	mov.RawSetString("x", lua.LNumber(ctx.MoverX))
	mov.RawSetString("y", lua.LNumber(ctx.MoverY))
	mov.RawSetString("z", lua.LNumber(ctx.MoverZ))
	t.RawSetString("mover", mov)

	t.RawSetString("tick", lua.LNumber(ctx.Tick))

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		e.log.Error("lua on_touch error", zap.Error(err),
			zap.Int("trigger_id", ctx.TriggerID))
		return nil
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		return nil
	}

	var cmds []TouchCommand
	rt.ForEach(func(_, v lua.LValue) {
		if row, ok := v.(*lua.LTable); ok {
			cmds = append(cmds, TouchCommand{
				Type:    lStr(row, "type"),
				X:       lFloat(row, "x"),
				Y:       lFloat(row, "y"),
				Z:       lFloat(row, "z"),
				Message: lStr(row, "message"),
			})
		}
	})
	return cmds
}

// --- Lua helpers ---

// lFloat reads a float field from a Lua table.
func lFloat(t *lua.LTable, key string) float64 {
	return float64(lua.LVAsNumber(t.RawGetString(key)))
}

// lStr reads a string field from a Lua table.
func lStr(t *lua.LTable, key string) string {
	return lua.LVAsString(t.RawGetString(key))
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
