package world

import "math"

// WalkGrid is the rasterized walkability mask the pathfinder plans over.
// It covers the square bounding the circular world; cells outside the circle
// or inside a blocking structure are unwalkable. The grid is rebuilt when
// bounds grow or a blocking structure lands, never mid-tick.
type WalkGrid struct {
	cellSize float64
	half     int // cells from origin to edge along one axis
	width    int // cells per axis, 2*half+1
	radius   float64
	blocked  []bool
}

func BuildWalkGrid(s *State, cellSize float64) *WalkGrid {
	half := int(math.Ceil(s.Bounds.Radius/cellSize)) + 1
	g := &WalkGrid{
		cellSize: cellSize,
		half:     half,
		width:    2*half + 1,
		radius:   s.Bounds.Radius,
	}
	g.blocked = make([]bool, g.width*g.width)
	for _, st := range s.Structures() {
		if !st.Blocking {
			continue
		}
		g.blockCircle(st.X, st.Z, st.Radius)
	}
	return g
}

func (g *WalkGrid) blockCircle(x, z, r float64) {
	minX, minZ := g.CellOf(x-r, z-r)
	maxX, maxZ := g.CellOf(x+r, z+r)
	for cx := minX; cx <= maxX; cx++ {
		for cz := minZ; cz <= maxZ; cz++ {
			if !g.InBounds(cx, cz) {
				continue
			}
			wx, wz := g.Center(cx, cz)
			if math.Hypot(wx-x, wz-z) <= r {
				g.blocked[g.Index(cx, cz)] = true
			}
		}
	}
}

func (g *WalkGrid) Width() int        { return g.width }
func (g *WalkGrid) CellSize() float64 { return g.cellSize }

// Index maps a cell to its linear offset, the tie-break key the pathfinder
// uses for equal-cost nodes.
func (g *WalkGrid) Index(cx, cz int) int {
	return (cz+g.half)*g.width + (cx + g.half)
}

func (g *WalkGrid) InBounds(cx, cz int) bool {
	return cx >= -g.half && cx <= g.half && cz >= -g.half && cz <= g.half
}

// Walkable reports whether a cell is inside the circular bounds and not
// carved out by a blocking structure.
func (g *WalkGrid) Walkable(cx, cz int) bool {
	if !g.InBounds(cx, cz) {
		return false
	}
	wx, wz := g.Center(cx, cz)
	if math.Hypot(wx, wz) > g.radius {
		return false
	}
	return !g.blocked[g.Index(cx, cz)]
}

// CellOf converts world coordinates to cell coordinates.
func (g *WalkGrid) CellOf(x, z float64) (int, int) {
	return int(math.Floor(x/g.cellSize + 0.5)), int(math.Floor(z/g.cellSize + 0.5))
}

// Center converts cell coordinates to the world-space cell center.
func (g *WalkGrid) Center(cx, cz int) (float64, float64) {
	return float64(cx) * g.cellSize, float64(cz) * g.cellSize
}

// NearestWalkable returns the closest walkable cell to (cx,cz), scanning
// rings outward. Used when a goal lands inside a blocking structure.
func (g *WalkGrid) NearestWalkable(cx, cz int) (int, int, bool) {
	if g.Walkable(cx, cz) {
		return cx, cz, true
	}
	for ring := 1; ring <= g.width; ring++ {
		for dz := -ring; dz <= ring; dz++ {
			for dx := -ring; dx <= ring; dx++ {
				if dx > -ring && dx < ring && dz > -ring && dz < ring {
					continue
				}
				if g.Walkable(cx+dx, cz+dz) {
					return cx + dx, cz + dz, true
				}
			}
		}
	}
	return 0, 0, false
}
