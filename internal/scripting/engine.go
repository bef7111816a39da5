// Package scripting hosts the Lua VM that drives tunable engine behavior
// such as weather selection.
package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM.
// Single-goroutine access only (frame loop).
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads every script in scriptsDir.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	if err := e.loadDir(scriptsDir); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load scripts: %w", err)
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

// WeatherContext is the state handed to next_weather.
type WeatherContext struct {
	Frame   uint64
	Hour    int
	Day     int
	Night   bool
	Indoor  bool
	Current string
	Roll    float64 // uniform in [0, 1)
}

// NextWeather calls the Lua next_weather function and returns the weather
// name it picked. ok is false when the script is missing or failed, in
// which case the caller keeps the current weather.
func (e *Engine) NextWeather(ctx WeatherContext) (string, bool) {
	fn := e.vm.GetGlobal("next_weather")
	if fn == lua.LNil {
		e.log.Debug("lua function next_weather not found")
		return ctx.Current, false
	}

	t := e.vm.NewTable()
	t.RawSetString("frame", lua.LNumber(ctx.Frame))
	t.RawSetString("hour", lua.LNumber(ctx.Hour))
	t.RawSetString("day", lua.LNumber(ctx.Day))
	t.RawSetString("night", lua.LBool(ctx.Night))
	t.RawSetString("indoor", lua.LBool(ctx.Indoor))
	t.RawSetString("current", lua.LString(ctx.Current))
	t.RawSetString("roll", lua.LNumber(ctx.Roll))

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		e.log.Error("lua next_weather error", zap.Error(err))
		return ctx.Current, false
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	tbl, ok := result.(*lua.LTable)
	if !ok {
		e.log.Error("lua next_weather returned non-table", zap.String("type", result.Type().String()))
		return ctx.Current, false
	}
	name, ok := tbl.RawGetString("weather").(lua.LString)
	if !ok {
		e.log.Error("lua next_weather result has no weather field")
		return ctx.Current, false
	}
	return string(name), true
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
