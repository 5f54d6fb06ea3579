package nav

import (
	"container/heap"

	"github.com/rgriola/bridge-sim/internal/world"
)

// Cell is a walk-grid coordinate pair.
type Cell struct {
	X, Z int
}

const (
	costStraight = 10
	costDiagonal = 14
)

type node struct {
	cell   Cell
	index  int // linear grid index, second tie-break key
	g      int
	f      int
	parent int // position in the closed slice, -1 for start
}

type openHeap []node

func (h openHeap) Len() int { return len(h) }

// Less orders by f, then by linear cell index so equal-cost frontiers expand
// in a fixed order.
func (h openHeap) Less(i, j int) bool {
	if h[i].f != h[j].f {
		return h[i].f < h[j].f
	}
	return h[i].index < h[j].index
}

func (h openHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *openHeap) Push(x any) { *h = append(*h, x.(node)) }

func (h *openHeap) Pop() any {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}

var neighborOffsets = [8]Cell{
	{1, 0}, {-1, 0}, {0, 1}, {0, -1},
	{1, 1}, {1, -1}, {-1, 1}, {-1, -1},
}

func octile(a, b Cell) int {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dz := a.Z - b.Z
	if dz < 0 {
		dz = -dz
	}
	if dx < dz {
		dx, dz = dz, dx
	}
	return costStraight*(dx-dz) + costDiagonal*dz
}

// FindPath plans an 8-connected path on the walk grid from start to goal.
// Diagonal steps are refused when either adjacent cardinal cell is blocked,
// so paths never cut corners through structure edges. Expansion stops after
// budget nodes; a nil path with ok=false means unreachable or out of budget.
// start==goal returns an empty, ok path.
func FindPath(g *world.WalkGrid, start, goal Cell, budget int) ([]Cell, bool) {
	if start == goal {
		return nil, true
	}
	if !g.Walkable(goal.X, goal.Z) {
		nx, nz, ok := g.NearestWalkable(goal.X, goal.Z)
		if !ok {
			return nil, false
		}
		goal = Cell{nx, nz}
		if start == goal {
			return nil, true
		}
	}

	open := make(openHeap, 0, 64)
	heap.Push(&open, node{
		cell:   start,
		index:  g.Index(start.X, start.Z),
		f:      octile(start, goal),
		parent: -1,
	})

	bestG := map[int]int{g.Index(start.X, start.Z): 0}
	closed := make([]node, 0, 128)
	expanded := 0

	for open.Len() > 0 {
		cur := heap.Pop(&open).(node)
		if best, ok := bestG[cur.index]; ok && cur.g > best {
			continue // stale duplicate
		}
		closed = append(closed, cur)
		if cur.cell == goal {
			return rebuild(closed), true
		}
		expanded++
		if expanded >= budget {
			return nil, false
		}

		for _, off := range neighborOffsets {
			next := Cell{cur.cell.X + off.X, cur.cell.Z + off.Z}
			if !g.Walkable(next.X, next.Z) {
				continue
			}
			step := costStraight
			if off.X != 0 && off.Z != 0 {
				// Corner-cut guard: both cardinals must be open.
				if !g.Walkable(cur.cell.X+off.X, cur.cell.Z) ||
					!g.Walkable(cur.cell.X, cur.cell.Z+off.Z) {
					continue
				}
				step = costDiagonal
			}
			idx := g.Index(next.X, next.Z)
			ng := cur.g + step
			if best, ok := bestG[idx]; ok && ng >= best {
				continue
			}
			bestG[idx] = ng
			heap.Push(&open, node{
				cell:   next,
				index:  idx,
				g:      ng,
				f:      ng + octile(next, goal),
				parent: len(closed) - 1,
			})
		}
	}
	return nil, false
}

// rebuild walks parent links from the goal node (last closed) back to the
// start, then reverses. The start cell itself is omitted.
func rebuild(closed []node) []Cell {
	var rev []Cell
	for i := len(closed) - 1; i >= 0; i = closed[i].parent {
		rev = append(rev, closed[i].cell)
		if closed[i].parent == -1 {
			break
		}
	}
	// drop the start cell and reverse
	path := make([]Cell, 0, len(rev)-1)
	for i := len(rev) - 2; i >= 0; i-- {
		path = append(path, rev[i])
	}
	return path
}

// ToWaypoints converts a cell path to world-space waypoints.
func ToWaypoints(g *world.WalkGrid, path []Cell) []world.Waypoint {
	out := make([]world.Waypoint, len(path))
	for i, c := range path {
		x, z := g.Center(c.X, c.Z)
		out[i] = world.Waypoint{X: x, Z: z}
	}
	return out
}
