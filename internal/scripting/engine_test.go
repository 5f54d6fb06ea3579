package scripting

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine("", zap.NewNop())
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func TestDecayMultipliersNeutralConditions(t *testing.T) {
	e := newTestEngine(t)
	m := e.CalcDecayMultipliers(EnvContext{TempC: 20, AQI: 50, Condition: "clear"})
	if m != (DecayMultipliers{Water: 1, Food: 1, Sleep: 1, Energy: 1}) {
		t.Fatalf("multipliers = %+v, want all neutral", m)
	}
}

func TestDecayMultipliersHeatRaisesWater(t *testing.T) {
	e := newTestEngine(t)
	m := e.CalcDecayMultipliers(EnvContext{TempC: 40, AQI: 50, Condition: "clear"})
	if math.Abs(m.Water-1.5) > 1e-9 {
		t.Fatalf("water = %.3f, want 1.5 at 40C", m.Water)
	}
	if m.Food != 1 {
		t.Fatalf("food = %.3f, heat should not touch food", m.Food)
	}
}

func TestDecayMultipliersColdRaisesFood(t *testing.T) {
	e := newTestEngine(t)
	m := e.CalcDecayMultipliers(EnvContext{TempC: -5, AQI: 50, Condition: "clear"})
	if math.Abs(m.Food-1.4) > 1e-9 {
		t.Fatalf("food = %.3f, want 1.4 at -5C", m.Food)
	}
}

func TestDecayMultipliersStorm(t *testing.T) {
	e := newTestEngine(t)
	m := e.CalcDecayMultipliers(EnvContext{TempC: 20, AQI: 50, Condition: "storm"})
	if math.Abs(m.Energy-1.25) > 1e-9 {
		t.Fatalf("energy = %.3f, want 1.25 in a storm", m.Energy)
	}
	if math.Abs(m.Sleep-1.15) > 1e-9 {
		t.Fatalf("sleep = %.3f, want 1.15 in a storm", m.Sleep)
	}
}

func TestUrgeWeightsPassThroughBiases(t *testing.T) {
	e := newTestEngine(t)
	w := e.CalcUrgeWeights(BiasContext{
		SocialBias: 1.5, BuildBias: 0.5, HeroicBias: 2, Chattiness: 1.2, FleeBias: 0.8,
		TimeOfDay: 0.5,
	})
	if math.Abs(w.Social-1.5) > 1e-9 || math.Abs(w.Build-0.5) > 1e-9 {
		t.Fatalf("weights = %+v, want biases passed through at midday", w)
	}
}

func TestUrgeWeightsEveningSkewsSocial(t *testing.T) {
	e := newTestEngine(t)
	w := e.CalcUrgeWeights(BiasContext{
		SocialBias: 1, BuildBias: 1, HeroicBias: 1, Chattiness: 1, FleeBias: 1,
		TimeOfDay: 0.9,
	})
	if math.Abs(w.Social-1.3) > 1e-9 {
		t.Fatalf("social = %.3f, want 1.3 in the evening", w.Social)
	}
	if math.Abs(w.Build-0.8) > 1e-9 {
		t.Fatalf("build = %.3f, want 0.8 in the evening", w.Build)
	}
}

func TestOverrideDirReplacesFunction(t *testing.T) {
	dir := t.TempDir()
	script := `function calc_decay_multipliers(env)
    return { water = 3.0, food = 1.0, sleep = 1.0, energy = 1.0 }
end`
	if err := os.WriteFile(filepath.Join(dir, "override.lua"), []byte(script), 0o644); err != nil {
		t.Fatal(err)
	}

	e, err := NewEngine(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	defer e.Close()

	m := e.CalcDecayMultipliers(EnvContext{TempC: 20, AQI: 50, Condition: "clear"})
	if m.Water != 3 {
		t.Fatalf("water = %.3f, want 3 from the override", m.Water)
	}
}

func TestMissingOverrideDirIsFine(t *testing.T) {
	e, err := NewEngine("does/not/exist", zap.NewNop())
	if err != nil {
		t.Fatalf("missing dir should not error: %v", err)
	}
	e.Close()
}
