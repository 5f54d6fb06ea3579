package system

import (
	"math"
	"time"

	"github.com/rgriola/bridge-sim/internal/config"
	"github.com/rgriola/bridge-sim/internal/core/ecs"
	coresys "github.com/rgriola/bridge-sim/internal/core/system"
	"github.com/rgriola/bridge-sim/internal/world"
)

// PhysicsSystem moves agents along their paths and resolves overlaps.
// Phase 4 (Physics). Order inside the tick is fixed: steering first, then
// the constraint loop (separation, structure pushout, bounds clamp), all in
// sorted id order so runs with the same seed replay identically.
type PhysicsSystem struct {
	world *world.State
	grid  *world.Grid
	cfg   config.SimulationConfig

	scratch []ecs.EntityID
}

func NewPhysicsSystem(ws *world.State, grid *world.Grid, cfg config.SimulationConfig) *PhysicsSystem {
	return &PhysicsSystem{world: ws, grid: grid, cfg: cfg}
}

func (s *PhysicsSystem) Phase() coresys.Phase { return coresys.PhasePhysics }

// maxResolvePasses bounds the constraint iteration. A pair converges in one
// pass; deeper stacks only shed a fraction of their residual per pass, so
// the bound is generous. The loop exits early once a pass moves nobody.
const maxResolvePasses = 32

func (s *PhysicsSystem) Update(dt time.Duration) {
	sec := dt.Seconds()
	ids := s.world.AgentIDsSorted()

	for _, id := range ids {
		if a, ok := s.world.Agent(id); ok {
			s.steer(a, sec)
		}
	}

	// Separation, structure pushout, and the bounds clamp can each undo the
	// others' work, so all three iterate together until a pass is clean:
	// no pair of centers closer than MinSeparation, nobody inside a blocking
	// footprint, nobody out of bounds.
	for pass := 0; pass < maxResolvePasses; pass++ {
		moved := s.separate(ids)
		for _, id := range ids {
			a, ok := s.world.Agent(id)
			if !ok {
				continue
			}
			if s.pushOutOfStructures(a) {
				moved = true
			}
			x, z := s.world.ClampToBounds(a.X, a.Z)
			if x != a.X || z != a.Z {
				a.X, a.Z = x, z
				moved = true
			}
		}
		if !moved {
			return
		}
	}
}

// steer advances the agent along its waypoint list at MoveSpeed, popping
// waypoints inside ApproachDist. Leftover travel in a tick carries into the
// next waypoint so speed is independent of waypoint spacing.
func (s *PhysicsSystem) steer(a *world.Agent, sec float64) {
	if len(a.Path) == 0 {
		return
	}
	budget := s.cfg.MoveSpeed * sec
	moved := 0.0
	for budget > 0 && len(a.Path) > 0 {
		wp := a.Path[0]
		dx, dz := wp.X-a.X, wp.Z-a.Z
		d := math.Hypot(dx, dz)
		if d <= s.cfg.ApproachDist {
			a.Path = a.Path[1:]
			continue
		}
		step := budget
		if step > d {
			step = d
		}
		a.X += dx / d * step
		a.Z += dz / d * step
		moved += step
		budget -= step
	}
	if moved > 0 {
		a.Stats.DistanceMoved += moved
		a.Dirty = true
	}
}

// separate pushes overlapping pairs apart by half the overlap each and
// reports whether anyone moved. The grid was built at tick start; the slight
// staleness is fine because the push distances are small relative to the
// cell size.
func (s *PhysicsSystem) separate(ids []ecs.EntityID) bool {
	minSep := s.cfg.MinSeparation
	if minSep <= 0 {
		return false
	}
	moved := false
	for _, id := range ids {
		a, ok := s.world.Agent(id)
		if !ok {
			continue
		}
		s.scratch = s.scratch[:0]
		s.scratch = s.grid.QueryNeighbors(a.X, a.Z, minSep*2, s.scratch)
		for _, oid := range s.scratch {
			// Each pair resolves once, from the lower id.
			if oid <= id {
				continue
			}
			b, ok := s.world.Agent(oid)
			if !ok {
				continue
			}
			dx, dz := b.X-a.X, b.Z-a.Z
			d := math.Hypot(dx, dz)
			if d >= minSep {
				continue
			}
			var nx, nz float64
			if d > 1e-9 {
				nx, nz = dx/d, dz/d
			} else {
				// Exactly coincident: push along +X, lower id goes -X.
				nx, nz = 1, 0
			}
			push := (minSep - d) / 2
			a.X -= nx * push
			a.Z -= nz * push
			b.X += nx * push
			b.Z += nz * push
			moved = true
		}
	}
	return moved
}

// pushOutOfStructures ejects an agent standing inside a blocking structure
// footprint, unless the agent currently occupies that structure. Reports
// whether the agent was moved.
func (s *PhysicsSystem) pushOutOfStructures(a *world.Agent) bool {
	moved := false
	for _, st := range s.world.Structures() {
		if !st.Blocking || st.ID == a.TargetID {
			continue
		}
		dx, dz := a.X-st.X, a.Z-st.Z
		d := math.Hypot(dx, dz)
		if d >= st.Radius {
			continue
		}
		if d < 1e-9 {
			dx, dz, d = 1, 0, 1
		}
		a.X = st.X + dx/d*st.Radius
		a.Z = st.Z + dz/d*st.Radius
		moved = true
	}
	return moved
}
