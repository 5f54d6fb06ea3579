package scripting

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

//go:embed tuning.lua
var defaultTuning string

// Engine wraps a single gopher-lua VM holding the tuning formulas.
// Single-goroutine access only (game loop).
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine, loads the embedded default tuning script,
// then overlays any .lua files found in overrideDir (missing dir is fine).
func NewEngine(overrideDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}

	if err := vm.DoString(defaultTuning); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load embedded tuning: %w", err)
	}
	if err := e.loadDir(overrideDir); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load tuning overrides: %w", err)
	}
	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	if dir == "" {
		return nil
	}
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

// EnvContext holds pre-packed environment data for decay calculation.
type EnvContext struct {
	TempC     float64
	AQI       int
	Condition string
}

// DecayMultipliers scales the base per-second need decay by environment.
type DecayMultipliers struct {
	Water  float64
	Food   float64
	Sleep  float64
	Energy float64
}

func neutralDecay() DecayMultipliers {
	return DecayMultipliers{Water: 1, Food: 1, Sleep: 1, Energy: 1}
}

// CalcDecayMultipliers calls Lua calc_decay_multipliers(env). Heat raises
// water decay, foul air raises energy decay, and so on, per the script.
// Any script failure falls back to neutral multipliers.
func (e *Engine) CalcDecayMultipliers(env EnvContext) DecayMultipliers {
	fn := e.vm.GetGlobal("calc_decay_multipliers")
	if fn == lua.LNil {
		e.log.Error("lua function calc_decay_multipliers not found")
		return neutralDecay()
	}

	t := e.vm.NewTable()
	t.RawSetString("temp_c", lua.LNumber(env.TempC))
	t.RawSetString("aqi", lua.LNumber(env.AQI))
	t.RawSetString("condition", lua.LString(env.Condition))

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		e.log.Error("lua calc_decay_multipliers error", zap.Error(err))
		return neutralDecay()
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		e.log.Error("lua calc_decay_multipliers returned non-table")
		return neutralDecay()
	}

	m := DecayMultipliers{
		Water:  lFloat(rt, "water"),
		Food:   lFloat(rt, "food"),
		Sleep:  lFloat(rt, "sleep"),
		Energy: lFloat(rt, "energy"),
	}
	// Zero means the script omitted a field; treat as neutral.
	if m.Water == 0 {
		m.Water = 1
	}
	if m.Food == 0 {
		m.Food = 1
	}
	if m.Sleep == 0 {
		m.Sleep = 1
	}
	if m.Energy == 0 {
		m.Energy = 1
	}
	return m
}

// BiasContext holds pre-packed personality data for urge weighting.
type BiasContext struct {
	SocialBias float64
	BuildBias  float64
	HeroicBias float64
	Chattiness float64
	FleeBias   float64
	TimeOfDay  float64 // [0,1), fraction of the sim day
}

// UrgeWeights are the per-class multipliers the brain applies when scoring
// non-survival urges.
type UrgeWeights struct {
	Social float64
	Build  float64
	Heroic float64
	Chat   float64
	Flee   float64
}

func neutralWeights() UrgeWeights {
	return UrgeWeights{Social: 1, Build: 1, Heroic: 1, Chat: 1, Flee: 1}
}

// CalcUrgeWeights calls Lua calc_urge_weights(ctx) so tuning can reshape
// personality influence without a rebuild.
func (e *Engine) CalcUrgeWeights(ctx BiasContext) UrgeWeights {
	fn := e.vm.GetGlobal("calc_urge_weights")
	if fn == lua.LNil {
		return neutralWeights()
	}

	t := e.vm.NewTable()
	t.RawSetString("social_bias", lua.LNumber(ctx.SocialBias))
	t.RawSetString("build_bias", lua.LNumber(ctx.BuildBias))
	t.RawSetString("heroic_bias", lua.LNumber(ctx.HeroicBias))
	t.RawSetString("chattiness", lua.LNumber(ctx.Chattiness))
	t.RawSetString("flee_bias", lua.LNumber(ctx.FleeBias))
	t.RawSetString("time_of_day", lua.LNumber(ctx.TimeOfDay))

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		e.log.Error("lua calc_urge_weights error", zap.Error(err))
		return neutralWeights()
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		return neutralWeights()
	}

	w := UrgeWeights{
		Social: lFloat(rt, "social"),
		Build:  lFloat(rt, "build"),
		Heroic: lFloat(rt, "heroic"),
		Chat:   lFloat(rt, "chat"),
		Flee:   lFloat(rt, "flee"),
	}
	if w.Social == 0 {
		w.Social = 1
	}
	if w.Build == 0 {
		w.Build = 1
	}
	if w.Heroic == 0 {
		w.Heroic = 1
	}
	if w.Chat == 0 {
		w.Chat = 1
	}
	if w.Flee == 0 {
		w.Flee = 1
	}
	return w
}

// lFloat reads a float field from a Lua table.
func lFloat(t *lua.LTable, key string) float64 {
	return float64(lua.LVAsNumber(t.RawGetString(key)))
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
