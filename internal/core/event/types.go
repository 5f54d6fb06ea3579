package event

import "github.com/rgriola/bridge-sim/internal/core/ecs"

// Simulation events carried across tick boundaries.

// AgentSpoke is emitted when an agent produces an utterance (generated post,
// comment, or a polled post being vocalized). The broadcast system turns
// these into speech deltas for observers.
type AgentSpoke struct {
	EntityID ecs.EntityID
	Text     string
}

// Lifecycle marks a notable agent event worth journaling: a birth, a build
// finishing, a rescue. The persistence system buffers these and writes them
// with the next stats flush.
type Lifecycle struct {
	EntityID ecs.EntityID
	BotID    int64
	Kind     string // "born", "built", "helped", "reproduced"
	Detail   string
}
