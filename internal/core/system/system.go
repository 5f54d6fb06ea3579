package system

import "time"

// Phase defines execution ordering within a single tick. The simulation is
// single-threaded: every phase runs to completion before the next starts, and
// the order below is the contract the brain and physics depend on.
type Phase int

const (
	PhaseInput       Phase = iota // 0: drain queued I/O results (observers, generation, polls)
	PhaseEnvironment              // 1: apply weather, grow bounds, rebuild spatial hash
	PhaseMetabolism               // 2: need decay/recovery per agent
	PhaseBrain                    // 3: FSM evaluation + behavior handlers
	PhasePhysics                  // 4: waypoint steering + separation, once over the full agent set
	PhaseOutput                   // 5: build + flush broadcast deltas
	PhasePersist                  // 6: dispatch stats flush
	PhaseCleanup                  // 7: destroy queued agents, retention sweep
)

// System is the interface every simulation system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
