package system

import (
	"math"
	"testing"
	"time"

	"github.com/rgriola/bridge-sim/internal/config"
	"github.com/rgriola/bridge-sim/internal/scripting"
	"github.com/rgriola/bridge-sim/internal/world"
)

func TestApplyDecayBaseRates(t *testing.T) {
	cfg := config.Defaults().Needs
	n := world.Needs{Water: 50, Food: 50, Sleep: 50, Energy: 50}
	neutral := scripting.DecayMultipliers{Water: 1, Food: 1, Sleep: 1, Energy: 1}

	ApplyDecay(&n, 2.0, cfg, neutral)

	if math.Abs(n.Water-48) > 1e-9 {
		t.Errorf("water = %.3f, want 48", n.Water)
	}
	if math.Abs(n.Food-48.6) > 1e-9 {
		t.Errorf("food = %.3f, want 48.6", n.Food)
	}
	if math.Abs(n.Sleep-49) > 1e-9 {
		t.Errorf("sleep = %.3f, want 49", n.Sleep)
	}
	if math.Abs(n.Energy-48.8) > 1e-9 {
		t.Errorf("energy = %.3f, want 48.8", n.Energy)
	}
}

func TestApplyDecayEnvironmentMultiplier(t *testing.T) {
	cfg := config.Defaults().Needs
	n := world.Needs{Water: 50, Food: 50, Sleep: 50, Energy: 50}
	hot := scripting.DecayMultipliers{Water: 2, Food: 1, Sleep: 1, Energy: 1}

	ApplyDecay(&n, 1.0, cfg, hot)

	if math.Abs(n.Water-48) > 1e-9 {
		t.Errorf("water = %.3f, want 48 at double decay", n.Water)
	}
	if math.Abs(n.Food-49.3) > 1e-9 {
		t.Errorf("food = %.3f, want 49.3 unaffected", n.Food)
	}
}

func TestApplyDecayClampsAtZero(t *testing.T) {
	cfg := config.Defaults().Needs
	n := world.Needs{Water: 0.1, Food: 50, Sleep: 50, Energy: 50}
	neutral := scripting.DecayMultipliers{Water: 1, Food: 1, Sleep: 1, Energy: 1}

	ApplyDecay(&n, 10.0, cfg, neutral)

	if n.Water != 0 {
		t.Errorf("water = %.3f, want clamped to 0", n.Water)
	}
}

func TestApplyRecoveryDrinking(t *testing.T) {
	cfg := config.Defaults().Needs
	a := &world.Agent{State: world.StateDrinking, Needs: world.Needs{Water: 10}}

	ApplyRecovery(a, 1.0, cfg)

	if math.Abs(a.Needs.Water-30) > 1e-9 {
		t.Errorf("water = %.3f, want 30", a.Needs.Water)
	}
	if a.Needs.Food != 0 {
		t.Errorf("food = %.3f, drinking should not feed", a.Needs.Food)
	}
}

func TestApplyRecoveryRestingRestoresBoth(t *testing.T) {
	cfg := config.Defaults().Needs
	a := &world.Agent{State: world.StateResting, Needs: world.Needs{Sleep: 10, Energy: 10}}

	ApplyRecovery(a, 2.0, cfg)

	if math.Abs(a.Needs.Sleep-20) > 1e-9 {
		t.Errorf("sleep = %.3f, want 20", a.Needs.Sleep)
	}
	if math.Abs(a.Needs.Energy-18) > 1e-9 {
		t.Errorf("energy = %.3f, want 18", a.Needs.Energy)
	}
}

func TestMetabolismSystemDecaysAllAgents(t *testing.T) {
	sim := newTestSim(1)
	a := sim.addAgent("ada", 0, 0, world.Needs{Water: 50, Food: 50, Sleep: 50, Energy: 50})
	b := sim.addAgent("brook", 5, 5, world.Needs{Water: 80, Food: 80, Sleep: 80, Energy: 80})

	sim.env.Update(200 * time.Millisecond)
	sim.met.Update(2 * time.Second)

	if math.Abs(a.Needs.Water-48) > 1e-9 {
		t.Errorf("a water = %.3f, want 48", a.Needs.Water)
	}
	if math.Abs(b.Needs.Water-78) > 1e-9 {
		t.Errorf("b water = %.3f, want 78", b.Needs.Water)
	}
}
