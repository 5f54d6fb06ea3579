package world

import (
	"github.com/rgriola/bridge-sim/internal/core/ecs"
)

// AgentState is the FSM state an agent is in. States are plain strings so
// they serialize directly into broadcast deltas and persistence rows.
type AgentState string

const (
	StateIdle        AgentState = "idle"
	StateSeekWater   AgentState = "seek_water"
	StateSeekFood    AgentState = "seek_food"
	StateSeekShelter AgentState = "seek_shelter"
	StateDrinking    AgentState = "drinking"
	StateEating      AgentState = "eating"
	StateResting     AgentState = "resting"
	StateBuilding    AgentState = "building"
	StateSocializing AgentState = "socializing"
	StateFleeing     AgentState = "fleeing"
	StateSpeaking    AgentState = "speaking"
	StateReproducing AgentState = "reproducing"
	StateHelping     AgentState = "helping"
)

// NeedKind identifies one of the four survival needs. The declaration order
// doubles as the tie-break order when two needs are equally urgent.
type NeedKind int

const (
	NeedEnergy NeedKind = iota
	NeedFood
	NeedSleep
	NeedWater
	needCount
)

func (k NeedKind) String() string {
	switch k {
	case NeedEnergy:
		return "energy"
	case NeedFood:
		return "food"
	case NeedSleep:
		return "sleep"
	case NeedWater:
		return "water"
	}
	return "unknown"
}

// Needs holds the four survival meters, each clamped to [0,100].
type Needs struct {
	Water  float64
	Food   float64
	Sleep  float64
	Energy float64
}

func (n *Needs) Get(k NeedKind) float64 {
	switch k {
	case NeedWater:
		return n.Water
	case NeedFood:
		return n.Food
	case NeedSleep:
		return n.Sleep
	case NeedEnergy:
		return n.Energy
	}
	return 0
}

func (n *Needs) Set(k NeedKind, v float64) {
	v = Clamp(v, 0, 100)
	switch k {
	case NeedWater:
		n.Water = v
	case NeedFood:
		n.Food = v
	case NeedSleep:
		n.Sleep = v
	case NeedEnergy:
		n.Energy = v
	}
}

// Lowest returns the most depleted need. Ties resolve in NeedKind declaration
// order so evaluation is deterministic across runs.
func (n *Needs) Lowest() (NeedKind, float64) {
	best := NeedKind(0)
	bestVal := n.Get(best)
	for k := NeedKind(1); k < needCount; k++ {
		if v := n.Get(k); v < bestVal {
			best, bestVal = k, v
		}
	}
	return best, bestVal
}

// Waypoint is one step of a planned path, in world coordinates.
type Waypoint struct {
	X, Z float64
}

// LifetimeStats accumulates per-agent counters persisted across restarts.
type LifetimeStats struct {
	Drinks        int64
	Meals         int64
	Rests         int64
	Builds        int64
	Socials       int64
	Helps         int64
	Reproductions int64
	PostsMade     int64
	CommentsMade  int64
	VotesCast     int64
	DistanceMoved float64
}

// Agent is the full mutable record for one simulated bot. All fields are
// owned by the game loop goroutine; no locking.
type Agent struct {
	ID          ecs.EntityID
	ExtID       int64 // row id in the bots table; 0 until first persist
	Name        string
	Personality string

	X, Y, Z float64

	State    AgentState
	Progress float64 // [0,1] through the current timed operation

	Needs Needs

	// Navigation. Path is consumed front-to-front by the physics pass;
	// empty path with a non-idle seek state means the agent is stuck.
	Path        []Waypoint
	TargetX     float64
	TargetZ     float64
	TargetKind  string // structure kind being sought, "" when none
	TargetID    int    // structure id occupied or being approached, 0 when none
	StuckTicks  int
	HelpTarget  ecs.EntityID // agent being helped, zero when none
	FleeFromX   float64
	FleeFromZ   float64

	// Speaking is ticked, not wall-clocked, so runs replay identically.
	SpeakTicksLeft int
	Speech         string
	ResumeState    AgentState // state to return to when speaking ends

	Stats LifetimeStats
	Dirty bool // stats changed since last flush

	BornTick uint64
}

// Clamp bounds v to [lo,hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
