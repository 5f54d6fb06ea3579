package system

import (
	"time"

	"github.com/rgriola/bridge-sim/internal/config"
	coresys "github.com/rgriola/bridge-sim/internal/core/system"
	"github.com/rgriola/bridge-sim/internal/data"
	"github.com/rgriola/bridge-sim/internal/scripting"
	"github.com/rgriola/bridge-sim/internal/world"
)

// MetabolismSystem decays every agent's needs each tick and applies
// recovery for agents mid-operation. Phase 2 (Metabolism).
type MetabolismSystem struct {
	world         *world.State
	env           *EnvironmentSystem
	cfg           config.NeedsConfig
	personalities *data.PersonalityTable
}

func NewMetabolismSystem(ws *world.State, env *EnvironmentSystem, cfg config.NeedsConfig, personalities *data.PersonalityTable) *MetabolismSystem {
	return &MetabolismSystem{world: ws, env: env, cfg: cfg, personalities: personalities}
}

func (s *MetabolismSystem) Phase() coresys.Phase { return coresys.PhaseMetabolism }

func (s *MetabolismSystem) Update(dt time.Duration) {
	sec := dt.Seconds()
	mult := s.env.Decay()
	for _, id := range s.world.AgentIDsSorted() {
		a, ok := s.world.Agent(id)
		if !ok {
			continue
		}
		bias := 1.0
		if s.personalities != nil {
			if p := s.personalities.Get(a.Personality); p != nil && p.DecayBias > 0 {
				bias = p.DecayBias
			}
		}
		ApplyDecay(&a.Needs, sec*bias, s.cfg, mult)
		ApplyRecovery(a, sec, s.cfg)
	}
}

// ApplyDecay lowers all four needs by their per-second rates scaled by the
// environment multipliers. Values clamp to [0,100]; agents at zero simply
// stay at zero, there is no death spiral.
func ApplyDecay(n *world.Needs, sec float64, cfg config.NeedsConfig, m scripting.DecayMultipliers) {
	n.Set(world.NeedWater, n.Water-cfg.DecayWater*m.Water*sec)
	n.Set(world.NeedFood, n.Food-cfg.DecayFood*m.Food*sec)
	n.Set(world.NeedSleep, n.Sleep-cfg.DecaySleep*m.Sleep*sec)
	n.Set(world.NeedEnergy, n.Energy-cfg.DecayEnergy*m.Energy*sec)
}

// ApplyRecovery tops needs back up while the agent is mid-operation.
// Resting restores both sleep and energy; the consumption states restore
// their single need.
func ApplyRecovery(a *world.Agent, sec float64, cfg config.NeedsConfig) {
	switch a.State {
	case world.StateDrinking:
		a.Needs.Set(world.NeedWater, a.Needs.Water+cfg.RecoverWater*sec)
	case world.StateEating:
		a.Needs.Set(world.NeedFood, a.Needs.Food+cfg.RecoverFood*sec)
	case world.StateResting:
		a.Needs.Set(world.NeedSleep, a.Needs.Sleep+cfg.RecoverSleep*sec)
		a.Needs.Set(world.NeedEnergy, a.Needs.Energy+cfg.RecoverEnergy*sec)
	}
}
