package world

import (
	"math"

	"github.com/rgriola/bridge-sim/internal/core/ecs"
)

// Grid is the spatial hash over agent positions. It is rebuilt from scratch
// once per tick by the environment system, so queries during the brain and
// physics phases all see positions as of the start of the tick. Queries
// return candidates with false positives; callers do their own exact
// distance filtering.
type Grid struct {
	cellSize float64
	cells    map[int64][]ecs.EntityID
	where    map[ecs.EntityID]int64
}

func NewGrid(cellSize float64) *Grid {
	return &Grid{
		cellSize: cellSize,
		cells:    make(map[int64][]ecs.EntityID),
		where:    make(map[ecs.EntityID]int64),
	}
}

func (g *Grid) key(x, z float64) int64 {
	cx := int64(math.Floor(x / g.cellSize))
	cz := int64(math.Floor(z / g.cellSize))
	return cx<<32 | (cz & 0xffffffff)
}

// Rebuild re-buckets every agent. Insertion follows the sorted id order the
// caller iterates, so per-cell slices are ordered and queries deterministic.
func (g *Grid) Rebuild(s *State) {
	for k := range g.cells {
		delete(g.cells, k)
	}
	for k := range g.where {
		delete(g.where, k)
	}
	for _, id := range s.AgentIDsSorted() {
		a, ok := s.Agent(id)
		if !ok {
			continue
		}
		k := g.key(a.X, a.Z)
		g.cells[k] = append(g.cells[k], id)
		g.where[id] = k
	}
}

// QueryNeighbors appends to out all agent ids in cells overlapping the
// circle at (x,z) with the given radius. The result can include agents
// outside the exact radius.
func (g *Grid) QueryNeighbors(x, z, radius float64, out []ecs.EntityID) []ecs.EntityID {
	minX := int64(math.Floor((x - radius) / g.cellSize))
	maxX := int64(math.Floor((x + radius) / g.cellSize))
	minZ := int64(math.Floor((z - radius) / g.cellSize))
	maxZ := int64(math.Floor((z + radius) / g.cellSize))
	for cx := minX; cx <= maxX; cx++ {
		for cz := minZ; cz <= maxZ; cz++ {
			k := cx<<32 | (cz & 0xffffffff)
			out = append(out, g.cells[k]...)
		}
	}
	return out
}

// Remove implements ecs.Purgeable. The grid is rebuilt every tick anyway,
// but purging keeps destroyed ids out of queries for the remainder of the
// tick they die in.
func (g *Grid) Remove(id ecs.EntityID) {
	k, ok := g.where[id]
	if !ok {
		return
	}
	delete(g.where, id)
	bucket := g.cells[k]
	for i, other := range bucket {
		if other == id {
			g.cells[k] = append(bucket[:i], bucket[i+1:]...)
			return
		}
	}
}
