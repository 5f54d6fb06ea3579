package system

import (
	"math"
	"time"

	"github.com/rgriola/bridge-sim/internal/config"
	coresys "github.com/rgriola/bridge-sim/internal/core/system"
	"github.com/rgriola/bridge-sim/internal/scripting"
	"github.com/rgriola/bridge-sim/internal/weather"
	"github.com/rgriola/bridge-sim/internal/world"
	"go.uber.org/zap"
)

// EnvironmentSystem applies weather samples, grows the world bounds under
// crowding, and rebuilds the spatial structures. Phase 1 (Environment).
// Everything it publishes — env, decay multipliers, the spatial hash, the
// walk grid — is fixed for the rest of the tick, so the brain and physics
// see one consistent world.
type EnvironmentSystem struct {
	world   *world.State
	grid    *world.Grid
	engine  *scripting.Engine
	samples <-chan weather.Sample
	cfg     config.SimulationConfig
	log     *zap.Logger

	walk  *world.WalkGrid
	decay scripting.DecayMultipliers
}

func NewEnvironmentSystem(ws *world.State, grid *world.Grid, engine *scripting.Engine, samples <-chan weather.Sample, cfg config.SimulationConfig, log *zap.Logger) *EnvironmentSystem {
	return &EnvironmentSystem{
		world:   ws,
		grid:    grid,
		engine:  engine,
		samples: samples,
		cfg:     cfg,
		log:     log,
		decay:   scripting.DecayMultipliers{Water: 1, Food: 1, Sleep: 1, Energy: 1},
	}
}

func (s *EnvironmentSystem) Phase() coresys.Phase { return coresys.PhaseEnvironment }

// WalkGrid returns the current pathfinding grid. Valid as of the start of
// the tick; never swapped mid-tick.
func (s *EnvironmentSystem) WalkGrid() *world.WalkGrid { return s.walk }

// Decay returns this tick's environment decay multipliers.
func (s *EnvironmentSystem) Decay() scripting.DecayMultipliers { return s.decay }

func (s *EnvironmentSystem) Update(_ time.Duration) {
	s.drainWeather()
	s.applyDecayMultipliers()
	s.maybeGrowBounds()
	s.rebuildWalkGrid()
	s.grid.Rebuild(s.world)
}

func (s *EnvironmentSystem) drainWeather() {
	if s.samples == nil {
		return
	}
	for {
		select {
		case sample := <-s.samples:
			s.world.Env = world.Environment{
				TempC:     sample.TempC,
				AQI:       sample.AQI,
				Condition: sample.Condition,
			}
			s.log.Info("weather applied",
				zap.Float64("temp_c", sample.TempC),
				zap.Int("aqi", sample.AQI),
				zap.String("condition", sample.Condition))
		default:
			return
		}
	}
}

func (s *EnvironmentSystem) applyDecayMultipliers() {
	if s.engine == nil {
		return
	}
	s.decay = s.engine.CalcDecayMultipliers(scripting.EnvContext{
		TempC:     s.world.Env.TempC,
		AQI:       s.world.Env.AQI,
		Condition: s.world.Env.Condition,
	})
}

// maybeGrowBounds enlarges the world when agent density crosses the
// configured threshold. Growth only ever happens here, at tick start.
func (s *EnvironmentSystem) maybeGrowBounds() {
	if s.cfg.AgentsPerCell <= 0 {
		return
	}
	r := s.world.Bounds.Radius
	cells := math.Pi * r * r / (s.cfg.CellSize * s.cfg.CellSize)
	if cells <= 0 {
		return
	}
	density := float64(s.world.Agents.Len()) / cells
	if density > s.cfg.AgentsPerCell {
		next := r * 1.2
		s.world.GrowBounds(next)
		s.log.Info("bounds grown",
			zap.Float64("radius", next),
			zap.Float64("density", density))
	}
}

func (s *EnvironmentSystem) rebuildWalkGrid() {
	if s.walk != nil && !s.world.WalkDirty() {
		return
	}
	s.walk = world.BuildWalkGrid(s.world, s.cfg.CellSize)
	s.world.ClearWalkDirty()
	// Paths planned on the old grid may now cross blocked cells.
	for _, id := range s.world.AgentIDsSorted() {
		if a, ok := s.world.Agent(id); ok {
			a.Path = nil
		}
	}
}
