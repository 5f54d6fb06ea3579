package world

import (
	"math"
	"testing"

	"github.com/rgriola/bridge-sim/internal/core/ecs"
)

func newTestState() *State {
	return NewState(ecs.NewWorld(), 1, 40)
}

func TestNeedsLowestTieBreak(t *testing.T) {
	n := Needs{Water: 20, Food: 20, Sleep: 20, Energy: 20}
	k, v := n.Lowest()
	if k != NeedEnergy || v != 20 {
		t.Fatalf("lowest = %s %.1f, want energy 20 on all-equal tie", k, v)
	}

	n.Sleep = 5
	k, _ = n.Lowest()
	if k != NeedSleep {
		t.Fatalf("lowest = %s, want sleep", k)
	}
}

func TestNeedsSetClamps(t *testing.T) {
	var n Needs
	n.Set(NeedWater, 150)
	if n.Water != 100 {
		t.Fatalf("water = %.1f, want clamped to 100", n.Water)
	}
	n.Set(NeedWater, -5)
	if n.Water != 0 {
		t.Fatalf("water = %.1f, want clamped to 0", n.Water)
	}
}

func TestNearestAvailablePrefersCloser(t *testing.T) {
	s := newTestState()
	s.AddStructure(&Structure{Kind: KindWater, Name: "far", X: 20, Z: 0, Radius: 1})
	near := s.AddStructure(&Structure{Kind: KindWater, Name: "near", X: 5, Z: 0, Radius: 1})

	got, ok := s.NearestAvailable(KindWater, 0, 0)
	if !ok || got.ID != near.ID {
		t.Fatalf("got %v, want the nearer well", got)
	}
}

func TestNearestAvailableEquidistantTakesFirstPlaced(t *testing.T) {
	s := newTestState()
	first := s.AddStructure(&Structure{Kind: KindWater, Name: "west", X: -10, Z: 0, Radius: 1})
	s.AddStructure(&Structure{Kind: KindWater, Name: "east", X: 10, Z: 0, Radius: 1})

	got, ok := s.NearestAvailable(KindWater, 0, 0)
	if !ok || got.ID != first.ID {
		t.Fatalf("got %s, want first-placed on equidistant tie", got.Name)
	}
}

func TestNearestAvailableSkipsFull(t *testing.T) {
	s := newTestState()
	full := s.AddStructure(&Structure{Kind: KindWater, Name: "near", X: 5, Z: 0, Radius: 1, Capacity: 1})
	spare := s.AddStructure(&Structure{Kind: KindWater, Name: "far", X: 20, Z: 0, Radius: 1, Capacity: 1})

	a := &Agent{Name: "ada"}
	s.AddAgent(a)
	full.Occupy(a.ID)

	got, ok := s.NearestAvailable(KindWater, 0, 0)
	if !ok || got.ID != spare.ID {
		t.Fatalf("got %v, want the spare well", got)
	}
}

func TestRemoveReleasesOccupancy(t *testing.T) {
	s := newTestState()
	st := s.AddStructure(&Structure{Kind: KindShelter, Name: "hut", X: 0, Z: 0, Radius: 2, Capacity: 1})
	a := &Agent{Name: "ada", ExtID: 7}
	id := s.AddAgent(a)
	st.Occupy(id)

	s.World.MarkForDestruction(id)
	s.World.FlushDestroyQueue()

	if st.Occupancy() != 0 {
		t.Fatalf("occupancy = %d, want 0 after destroy", st.Occupancy())
	}
	if _, ok := s.Agent(id); ok {
		t.Fatal("agent still resolvable after destroy")
	}
	if _, ok := s.AgentByExt(7); ok {
		t.Fatal("ext index still resolves destroyed agent")
	}
	if _, ok := s.AgentByName("ada"); ok {
		t.Fatal("name index still resolves destroyed agent")
	}
}

func TestGrowBoundsNeverShrinks(t *testing.T) {
	s := newTestState()
	s.GrowBounds(50)
	if s.Bounds.Radius != 50 {
		t.Fatalf("radius = %.1f, want 50", s.Bounds.Radius)
	}
	if !s.WalkDirty() {
		t.Fatal("growth should mark the walk grid dirty")
	}
	s.ClearWalkDirty()
	s.GrowBounds(30)
	if s.Bounds.Radius != 50 {
		t.Fatalf("radius = %.1f, shrink must be ignored", s.Bounds.Radius)
	}
	if s.WalkDirty() {
		t.Fatal("ignored shrink should not dirty the walk grid")
	}
}

func TestClampToBounds(t *testing.T) {
	s := newTestState()
	x, z := s.ClampToBounds(100, 0)
	if math.Abs(x-40) > 1e-9 || z != 0 {
		t.Fatalf("clamped to (%.2f, %.2f), want (40, 0)", x, z)
	}
	x, z = s.ClampToBounds(3, 4)
	if x != 3 || z != 4 {
		t.Fatalf("inside point moved to (%.2f, %.2f)", x, z)
	}
}

func TestGridQueryNeighbors(t *testing.T) {
	s := newTestState()
	g := NewGrid(4)
	a := &Agent{Name: "ada", X: 0, Z: 0}
	b := &Agent{Name: "brook", X: 3, Z: 0}
	c := &Agent{Name: "casey", X: 30, Z: 30}
	s.AddAgent(a)
	s.AddAgent(b)
	s.AddAgent(c)
	g.Rebuild(s)

	var out []ecs.EntityID
	out = g.QueryNeighbors(0, 0, 5, out)

	found := map[ecs.EntityID]bool{}
	for _, id := range out {
		found[id] = true
	}
	if !found[a.ID] || !found[b.ID] {
		t.Fatalf("query missed nearby agents: %v", out)
	}
	if found[c.ID] {
		t.Fatal("query returned agent far outside the radius")
	}
}

func TestWalkGridBlocksStructures(t *testing.T) {
	s := newTestState()
	s.AddStructure(&Structure{Kind: KindShelter, Name: "hut", X: 0, Z: 0, Radius: 3, Blocking: true})
	g := BuildWalkGrid(s, 1.0)

	if g.Walkable(0, 0) {
		t.Fatal("structure center should be blocked")
	}
	if !g.Walkable(10, 0) {
		t.Fatal("open ground should be walkable")
	}
	if g.Walkable(100, 0) {
		t.Fatal("outside the world circle should be unwalkable")
	}

	cx, cz, ok := g.NearestWalkable(0, 0)
	if !ok {
		t.Fatal("no walkable cell found near the structure")
	}
	if !g.Walkable(cx, cz) {
		t.Fatalf("nearest walkable (%d,%d) is not walkable", cx, cz)
	}
}
