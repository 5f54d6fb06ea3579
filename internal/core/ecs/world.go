package ecs

// World owns the entity pool, the set of purgeable caches, and a deferred
// destruction queue flushed at tick end. Deferring destroys to the cleanup
// phase keeps the per-tick iteration safe against mid-tick removals: systems
// iterate the id snapshot taken at tick start and dead ids simply no longer
// resolve.
type World struct {
	pool         *EntityPool
	purgeables   []Purgeable
	destroyQueue []EntityID
}

func NewWorld() *World {
	return &World{
		pool:         NewEntityPool(),
		purgeables:   make([]Purgeable, 0, 8),
		destroyQueue: make([]EntityID, 0, 16),
	}
}

func (w *World) Pool() *EntityPool { return w.pool }

// RegisterPurgeable adds a cache that must be cleared when an agent is
// destroyed (agent registry, spatial hash, broadcast diff state).
func (w *World) RegisterPurgeable(p Purgeable) {
	w.purgeables = append(w.purgeables, p)
}

func (w *World) CreateEntity() EntityID {
	return w.pool.Create()
}

func (w *World) Alive(id EntityID) bool {
	return w.pool.Alive(id)
}

// MarkForDestruction queues an agent for end-of-tick removal.
func (w *World) MarkForDestruction(id EntityID) {
	w.destroyQueue = append(w.destroyQueue, id)
}

// FlushDestroyQueue destroys all queued agents and purges them from every
// registered cache. Called by the cleanup system at the end of each tick.
func (w *World) FlushDestroyQueue() {
	for _, id := range w.destroyQueue {
		for _, p := range w.purgeables {
			p.Remove(id)
		}
		w.pool.Destroy(id)
	}
	w.destroyQueue = w.destroyQueue[:0]
}
