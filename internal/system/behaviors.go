package system

import (
	"fmt"
	"math"

	"github.com/rgriola/bridge-sim/internal/core/event"
	"github.com/rgriola/bridge-sim/internal/nav"
	"github.com/rgriola/bridge-sim/internal/world"
	"go.uber.org/zap"
)

// maxStuckTicks is how many consecutive failed plans or zero-progress ticks
// a seeking agent tolerates before giving up and going idle.
const maxStuckTicks = 15

func (s *BrainSystem) registerHandlers() {
	s.handlers = map[world.AgentState]func(*world.Agent, float64){
		world.StateIdle:        s.handleIdle,
		world.StateSeekWater:   s.handleSeek,
		world.StateSeekFood:    s.handleSeek,
		world.StateSeekShelter: s.handleSeek,
		world.StateDrinking:    s.handleDrinking,
		world.StateEating:      s.handleEating,
		world.StateResting:     s.handleResting,
		world.StateBuilding:    s.handleBuilding,
		world.StateSocializing: s.handleSocializing,
		world.StateFleeing:     s.handleFleeing,
		world.StateSpeaking:    s.handleSpeaking,
		world.StateReproducing: s.handleReproducing,
		world.StateHelping:     s.handleHelping,
	}
}

// handleIdle occasionally wanders to a random point. Idle agents with no
// path roll a wander each tick; the destination is drawn uniformly from the
// disc around the agent, clamped to bounds.
func (s *BrainSystem) handleIdle(a *world.Agent, sec float64) {
	if len(a.Path) > 0 {
		return
	}
	if !s.roll(0.08 * sec) {
		return
	}
	const wanderRadius = 12.0
	angle := s.world.Rand.Float64() * 2 * math.Pi
	dist := 2 + s.world.Rand.Float64()*wanderRadius
	x, z := s.world.ClampToBounds(a.X+math.Cos(angle)*dist, a.Z+math.Sin(angle)*dist)
	s.planPathTo(a, x, z)
}

// handleSeek drives the three seek states: resolve a structure, path to it,
// and switch to the matching operation on arrival.
func (s *BrainSystem) handleSeek(a *world.Agent, sec float64) {
	kind, op := seekGoal(a.State)

	if a.TargetID == 0 {
		st, ok := s.world.NearestAvailable(kind, a.X, a.Z)
		if !ok {
			// Nothing to seek. Go idle rather than spin; the need stays
			// low and the desire re-fires once something exists.
			s.transitionTo(a, world.StateIdle)
			return
		}
		a.TargetID = st.ID
		a.TargetKind = string(kind)
		a.TargetX, a.TargetZ = st.X, st.Z
	}

	st, ok := s.world.Structure(a.TargetID)
	if !ok || !st.Available() {
		// Filled up or vanished while en route; retarget next tick.
		a.TargetID = 0
		a.Path = nil
		a.StuckTicks++
		if a.StuckTicks > maxStuckTicks {
			s.transitionTo(a, world.StateIdle)
		}
		return
	}

	if s.withinReach(a, st) {
		if !st.Occupy(a.ID) {
			a.TargetID = 0
			a.Path = nil
			return
		}
		a.Path = nil
		a.StuckTicks = 0
		a.State = op
		a.Progress = 0
		return
	}

	if len(a.Path) == 0 {
		if !s.planPathTo(a, st.X, st.Z) {
			a.StuckTicks++
			if a.StuckTicks > maxStuckTicks {
				s.transitionTo(a, world.StateIdle)
			}
		}
	}
}

func seekGoal(st world.AgentState) (world.StructureKind, world.AgentState) {
	switch st {
	case world.StateSeekWater:
		return world.KindWater, world.StateDrinking
	case world.StateSeekFood:
		return world.KindFood, world.StateEating
	}
	return world.KindShelter, world.StateResting
}

func (s *BrainSystem) handleDrinking(a *world.Agent, sec float64) {
	if s.advance(a, sec, s.needs.DrinkSeconds) {
		a.Stats.Drinks++
		a.Dirty = true
		s.finishOperation(a)
	}
}

func (s *BrainSystem) handleEating(a *world.Agent, sec float64) {
	if s.advance(a, sec, s.needs.EatSeconds) {
		a.Stats.Meals++
		a.Dirty = true
		s.finishOperation(a)
	}
}

func (s *BrainSystem) handleResting(a *world.Agent, sec float64) {
	if s.advance(a, sec, s.needs.RestSeconds) {
		a.Stats.Rests++
		a.Dirty = true
		s.finishOperation(a)
	}
}

// handleBuilding raises a new structure next to the agent when the timer
// completes. The kind chosen is whatever the settlement has fewest of.
func (s *BrainSystem) handleBuilding(a *world.Agent, sec float64) {
	if !s.advance(a, sec, s.needs.BuildSeconds) {
		return
	}
	kind := s.scarcestKind()
	x, z := s.world.ClampToBounds(
		a.X+(s.world.Rand.Float64()-0.5)*6,
		a.Z+(s.world.Rand.Float64()-0.5)*6,
	)
	st := s.world.AddStructure(&world.Structure{
		Kind:     kind,
		Name:     fmt.Sprintf("%s-%d", kind, s.world.Tick),
		X:        x,
		Z:        z,
		Radius:   1.5,
		Capacity: 2,
		Blocking: kind == world.KindShelter,
	})
	a.Stats.Builds++
	a.Dirty = true
	event.Emit(s.bus, event.Lifecycle{
		EntityID: a.ID,
		BotID:    a.ExtID,
		Kind:     "built",
		Detail:   fmt.Sprintf("%s built %s", a.Name, st.Name),
	})
	s.log.Info("structure built",
		zap.String("agent", a.Name),
		zap.String("kind", string(kind)),
		zap.Float64("x", x),
		zap.Float64("z", z))
	s.transitionTo(a, world.StateIdle)
}

func (s *BrainSystem) scarcestKind() world.StructureKind {
	counts := map[world.StructureKind]int{}
	for _, st := range s.world.Structures() {
		counts[st.Kind]++
	}
	order := []world.StructureKind{world.KindWater, world.KindFood, world.KindShelter, world.KindSocial}
	best := order[0]
	for _, k := range order[1:] {
		if counts[k] < counts[best] {
			best = k
		}
	}
	return best
}

// handleSocializing walks to the nearest social spot and hangs out there.
func (s *BrainSystem) handleSocializing(a *world.Agent, sec float64) {
	if a.TargetID == 0 {
		st, ok := s.world.NearestAvailable(world.KindSocial, a.X, a.Z)
		if !ok {
			s.transitionTo(a, world.StateIdle)
			return
		}
		a.TargetID = st.ID
		a.TargetKind = string(st.Kind)
		a.TargetX, a.TargetZ = st.X, st.Z
		st.Occupy(a.ID)
	}
	st, ok := s.world.Structure(a.TargetID)
	if !ok {
		s.transitionTo(a, world.StateIdle)
		return
	}
	if !s.withinReach(a, st) {
		if len(a.Path) == 0 && !s.planPathTo(a, st.X, st.Z) {
			a.StuckTicks++
			if a.StuckTicks > maxStuckTicks {
				s.transitionTo(a, world.StateIdle)
			}
		}
		return
	}
	if s.advance(a, sec, s.needs.SocializeSeconds) {
		a.Stats.Socials++
		a.Dirty = true
		s.finishOperation(a)
	}
}

// handleFleeing sends the agent to shelter; arrival converts into Resting
// so the storm is waited out under cover.
func (s *BrainSystem) handleFleeing(a *world.Agent, sec float64) {
	if s.world.Env.Condition != "storm" {
		s.transitionTo(a, world.StateIdle)
		return
	}
	if a.TargetID == 0 {
		st, ok := s.world.NearestAvailable(world.KindShelter, a.X, a.Z)
		if !ok {
			s.transitionTo(a, world.StateIdle)
			return
		}
		a.TargetID = st.ID
		a.TargetKind = string(world.KindShelter)
		a.TargetX, a.TargetZ = st.X, st.Z
		a.FleeFromX, a.FleeFromZ = a.X, a.Z
	}
	st, ok := s.world.Structure(a.TargetID)
	if !ok || !st.Available() {
		a.TargetID = 0
		a.Path = nil
		return
	}
	if s.withinReach(a, st) {
		if st.Occupy(a.ID) {
			a.Path = nil
			a.State = world.StateResting
			a.Progress = 0
		}
		return
	}
	if len(a.Path) == 0 && !s.planPathTo(a, st.X, st.Z) {
		a.StuckTicks++
		if a.StuckTicks > maxStuckTicks {
			s.transitionTo(a, world.StateIdle)
		}
	}
}

func (s *BrainSystem) handleSpeaking(a *world.Agent, _ float64) {
	a.SpeakTicksLeft--
	if a.SpeakTicksLeft > 0 {
		return
	}
	resume := a.ResumeState
	if resume == "" || resume == world.StateSpeaking {
		resume = world.StateIdle
	}
	a.ResumeState = ""
	s.transitionTo(a, resume)
}

// handleReproducing runs the timer then spawns a child beside the parent.
// The child inherits the parent's personality and starts with full needs;
// the parent pays an energy and food cost.
func (s *BrainSystem) handleReproducing(a *world.Agent, sec float64) {
	if !s.advance(a, sec, s.needs.ReproduceSeconds) {
		return
	}
	s.childSeq++
	child := &world.Agent{
		Name:        fmt.Sprintf("%s-%d", a.Name, s.childSeq),
		Personality: a.Personality,
		X:           a.X + 1,
		Z:           a.Z + 1,
		State:       world.StateIdle,
		Needs:       world.Needs{Water: 100, Food: 100, Sleep: 100, Energy: 100},
	}
	child.X, child.Z = s.world.ClampToBounds(child.X, child.Z)
	id := s.world.AddAgent(child)

	a.Needs.Set(world.NeedEnergy, a.Needs.Energy-20)
	a.Needs.Set(world.NeedFood, a.Needs.Food-10)
	a.Stats.Reproductions++
	a.Dirty = true

	event.Emit(s.bus, event.Lifecycle{
		EntityID: a.ID,
		BotID:    a.ExtID,
		Kind:     "reproduced",
		Detail:   fmt.Sprintf("%s had a child %s", a.Name, child.Name),
	})
	event.Emit(s.bus, event.Lifecycle{
		EntityID: id,
		Kind:     "born",
		Detail:   fmt.Sprintf("%s was born", child.Name),
	})
	s.log.Info("agent born",
		zap.String("parent", a.Name),
		zap.String("child", child.Name))
	s.transitionTo(a, world.StateIdle)
}

// handleHelping chases the distressed agent and tops up their worst need.
func (s *BrainSystem) handleHelping(a *world.Agent, sec float64) {
	target, ok := s.world.Agent(a.HelpTarget)
	if !ok {
		s.transitionTo(a, world.StateIdle)
		return
	}
	const reachDist = 1.5
	if dist2(a.X, a.Z, target.X, target.Z) > reachDist*reachDist {
		// Re-plan every time the path empties; the victim may be moving.
		if len(a.Path) == 0 && !s.planPathTo(a, target.X, target.Z) {
			a.StuckTicks++
			if a.StuckTicks > maxStuckTicks {
				s.transitionTo(a, world.StateIdle)
			}
		}
		return
	}
	if !s.advance(a, sec, s.needs.HelpSeconds) {
		return
	}
	k, v := target.Needs.Lowest()
	target.Needs.Set(k, v+30)
	a.Stats.Helps++
	a.Dirty = true
	event.Emit(s.bus, event.Lifecycle{
		EntityID: a.ID,
		BotID:    a.ExtID,
		Kind:     "helped",
		Detail:   fmt.Sprintf("%s helped %s with %s", a.Name, target.Name, k),
	})
	s.log.Info("agent helped",
		zap.String("helper", a.Name),
		zap.String("target", target.Name),
		zap.String("need", k.String()))
	s.transitionTo(a, world.StateIdle)
}

// advance moves the operation timer and reports completion.
func (s *BrainSystem) advance(a *world.Agent, sec, duration float64) bool {
	if duration <= 0 {
		return true
	}
	a.Progress += sec / duration
	if a.Progress < 1 {
		return false
	}
	a.Progress = 1
	return true
}

// finishOperation releases the occupied structure and returns to idle.
func (s *BrainSystem) finishOperation(a *world.Agent) {
	s.transitionTo(a, world.StateIdle)
}

// withinReach reports whether the agent can start using the structure.
func (s *BrainSystem) withinReach(a *world.Agent, st *world.Structure) bool {
	reach := st.Radius + s.sim.ApproachDist
	return dist2(a.X, a.Z, st.X, st.Z) <= reach*reach
}

// planPathTo runs the pathfinder on the current walk grid and installs the
// resulting waypoints. Returns false when no route exists in budget.
func (s *BrainSystem) planPathTo(a *world.Agent, x, z float64) bool {
	g := s.env.WalkGrid()
	if g == nil {
		return false
	}
	sx, sz := g.CellOf(a.X, a.Z)
	gx, gz := g.CellOf(x, z)
	cells, ok := nav.FindPath(g, nav.Cell{X: sx, Z: sz}, nav.Cell{X: gx, Z: gz}, s.sim.PathBudget)
	if !ok {
		return false
	}
	a.Path = nav.ToWaypoints(g, cells)
	// Walk the last leg to the exact target, not just its cell center.
	a.Path = append(a.Path, world.Waypoint{X: x, Z: z})
	a.TargetX, a.TargetZ = x, z
	return true
}
