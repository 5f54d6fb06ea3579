package world

import (
	"math"
	"math/rand"
	"sort"

	"github.com/rgriola/bridge-sim/internal/core/ecs"
)

// Environment holds the latest sampled outdoor conditions. A neutral default
// applies until the first weather sample arrives.
type Environment struct {
	TempC     float64
	AQI       int
	Condition string
}

func NeutralEnvironment() Environment {
	return Environment{TempC: 20, AQI: 50, Condition: "clear"}
}

// Bounds is the circular playable area centered at the origin. The radius
// only grows, and only at tick start, so all systems in one tick see the
// same extent.
type Bounds struct {
	Radius float64
}

// State is the live world registry. It is owned by the game loop goroutine:
// every read and write happens between ticks of the runner, so there are no
// locks here. Anything arriving from other goroutines is funneled through
// channels drained in the input phase.
type State struct {
	World  *ecs.World
	Agents *ecs.Store[Agent]
	Rand   *rand.Rand

	Env    Environment
	Bounds Bounds
	Tick   uint64

	structures []*Structure
	nextStruct int

	byExt  map[int64]ecs.EntityID
	byName map[string]ecs.EntityID

	walkDirty bool
}

func NewState(w *ecs.World, seed int64, startRadius float64) *State {
	s := &State{
		World:  w,
		Agents: ecs.NewStore[Agent](),
		Rand:   rand.New(rand.NewSource(seed)),
		Env:    NeutralEnvironment(),
		Bounds: Bounds{Radius: startRadius},
		byExt:  make(map[int64]ecs.EntityID),
		byName: make(map[string]ecs.EntityID),
	}
	w.RegisterPurgeable(s)
	return s
}

// AddAgent registers a fully-initialized agent and returns its entity id.
func (s *State) AddAgent(a *Agent) ecs.EntityID {
	id := s.World.CreateEntity()
	a.ID = id
	a.BornTick = s.Tick
	if a.State == "" {
		a.State = StateIdle
	}
	s.Agents.Set(id, a)
	if a.ExtID != 0 {
		s.byExt[a.ExtID] = id
	}
	if a.Name != "" {
		s.byName[a.Name] = id
	}
	return id
}

// Remove implements ecs.Purgeable: invoked by the destroy-queue flush so a
// removed agent leaves no trace in the registry or any structure occupancy.
func (s *State) Remove(id ecs.EntityID) {
	a, ok := s.Agents.Get(id)
	if !ok {
		return
	}
	for _, st := range s.structures {
		st.Release(id)
	}
	delete(s.byExt, a.ExtID)
	delete(s.byName, a.Name)
	s.Agents.Remove(id)
}

func (s *State) Agent(id ecs.EntityID) (*Agent, bool) {
	return s.Agents.Get(id)
}

func (s *State) AgentByExt(ext int64) (*Agent, bool) {
	id, ok := s.byExt[ext]
	if !ok {
		return nil, false
	}
	return s.Agents.Get(id)
}

// BindExt attaches a database row id to an agent born mid-run, once the
// persistence layer has created its row.
func (s *State) BindExt(id ecs.EntityID, ext int64) {
	a, ok := s.Agents.Get(id)
	if !ok {
		return
	}
	a.ExtID = ext
	s.byExt[ext] = id
}

func (s *State) AgentByName(name string) (*Agent, bool) {
	id, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return s.Agents.Get(id)
}

// AgentIDsSorted returns all agent ids in ascending order. Systems take this
// snapshot once per pass so iteration order, and therefore every tie-break
// downstream, is identical across runs.
func (s *State) AgentIDsSorted() []ecs.EntityID {
	ids := s.Agents.IDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// AddStructure places a structure and returns it. Blocking structures mark
// the walk grid dirty.
func (s *State) AddStructure(st *Structure) *Structure {
	s.nextStruct++
	st.ID = s.nextStruct
	s.structures = append(s.structures, st)
	if st.Blocking {
		s.walkDirty = true
	}
	return st
}

func (s *State) Structures() []*Structure { return s.structures }

func (s *State) Structure(id int) (*Structure, bool) {
	for _, st := range s.structures {
		if st.ID == id {
			return st, true
		}
	}
	return nil, false
}

// NearestAvailable finds the closest structure of the given kind with spare
// capacity. Structures are scanned in placement order, and strict less-than
// on distance keeps the pick deterministic when two are equidistant.
func (s *State) NearestAvailable(kind StructureKind, x, z float64) (*Structure, bool) {
	var best *Structure
	bestDist := math.MaxFloat64
	for _, st := range s.structures {
		if st.Kind != kind || !st.Available() {
			continue
		}
		dx, dz := st.X-x, st.Z-z
		d := dx*dx + dz*dz
		if d < bestDist {
			best, bestDist = st, d
		}
	}
	return best, best != nil
}

// GrowBounds enlarges the playable radius. Called only by the environment
// system at tick start; marks the walk grid for rebuild.
func (s *State) GrowBounds(radius float64) {
	if radius > s.Bounds.Radius {
		s.Bounds.Radius = radius
		s.walkDirty = true
	}
}

// WalkDirty reports and clears the pending walk-grid rebuild flag.
func (s *State) WalkDirty() bool { return s.walkDirty }

func (s *State) ClearWalkDirty() { s.walkDirty = false }

// ClampToBounds pulls a point back inside the circular bounds.
func (s *State) ClampToBounds(x, z float64) (float64, float64) {
	d := math.Hypot(x, z)
	if d <= s.Bounds.Radius || d == 0 {
		return x, z
	}
	scale := s.Bounds.Radius / d
	return x * scale, z * scale
}
