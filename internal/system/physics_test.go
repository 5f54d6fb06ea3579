package system

import (
	"math"
	"testing"
	"time"

	"github.com/rgriola/bridge-sim/internal/world"
)

func TestSteeringFollowsWaypoints(t *testing.T) {
	sim := newTestSim(1)
	a := sim.addAgent("ada", 0, 0, fullNeeds())
	a.State = world.StateSeekWater // keep the idle wander out of it
	a.Path = []world.Waypoint{{X: 5, Z: 0}}

	sim.env.Update(200 * time.Millisecond)
	sim.phys.Update(time.Second) // MoveSpeed 3

	if math.Abs(a.X-3) > 1e-9 || math.Abs(a.Z) > 1e-9 {
		t.Fatalf("pos = (%.2f, %.2f), want (3, 0)", a.X, a.Z)
	}

	sim.env.Update(200 * time.Millisecond)
	sim.phys.Update(time.Second)

	if math.Abs(a.X-5) > 1e-9 {
		t.Fatalf("x = %.2f, want 5", a.X)
	}
	if len(a.Path) != 0 {
		t.Fatalf("path len = %d, want waypoint popped", len(a.Path))
	}
	if math.Abs(a.Stats.DistanceMoved-5) > 1e-9 {
		t.Fatalf("distance moved = %.2f, want 5", a.Stats.DistanceMoved)
	}
}

func TestSeparationPushesOverlapApart(t *testing.T) {
	sim := newTestSim(1)
	a := sim.addAgent("ada", 0, 0, fullNeeds())
	b := sim.addAgent("brook", 0.2, 0, fullNeeds())

	sim.env.Update(200 * time.Millisecond)
	sim.phys.Update(200 * time.Millisecond)

	d := math.Hypot(a.X-b.X, a.Z-b.Z)
	if d < sim.cfg.Simulation.MinSeparation-1e-6 {
		t.Fatalf("distance = %.3f, want >= %.3f", d, sim.cfg.Simulation.MinSeparation)
	}
}

func TestSeparationCoincidentDeterministic(t *testing.T) {
	sim := newTestSim(1)
	a := sim.addAgent("ada", 3, 3, fullNeeds())
	b := sim.addAgent("brook", 3, 3, fullNeeds())

	sim.env.Update(200 * time.Millisecond)
	sim.phys.Update(200 * time.Millisecond)

	// Exactly coincident agents split along X, lower id to the left.
	if a.X >= b.X {
		t.Fatalf("a.X = %.3f, b.X = %.3f, want a left of b", a.X, b.X)
	}
	d := math.Hypot(a.X-b.X, a.Z-b.Z)
	if d < sim.cfg.Simulation.MinSeparation-1e-6 {
		t.Fatalf("distance = %.3f, want >= %.3f", d, sim.cfg.Simulation.MinSeparation)
	}
}

func TestClusterSeparationLeavesNoOverlap(t *testing.T) {
	sim := newTestSim(1)
	agents := []*world.Agent{
		sim.addAgent("ada", 3, 3, fullNeeds()),
		sim.addAgent("brook", 3, 3, fullNeeds()),
		sim.addAgent("cass", 3, 3, fullNeeds()),
		sim.addAgent("dara", 3.1, 3, fullNeeds()),
	}

	sim.env.Update(200 * time.Millisecond)
	sim.phys.Update(200 * time.Millisecond)

	minSep := sim.cfg.Simulation.MinSeparation
	for i := 0; i < len(agents); i++ {
		for j := i + 1; j < len(agents); j++ {
			d := math.Hypot(agents[i].X-agents[j].X, agents[i].Z-agents[j].Z)
			if d < minSep-1e-6 {
				t.Fatalf("pair (%s,%s) distance %.4f < min separation %.4f",
					agents[i].Name, agents[j].Name, d, minSep)
			}
		}
	}
}

func TestClusterSeparationAgainstStructureWall(t *testing.T) {
	sim := newTestSim(1)
	sim.state.AddStructure(&world.Structure{
		Kind: world.KindShelter, Name: "longhouse", X: 0, Z: 0, Radius: 3, Blocking: true,
	})
	// Both start inside the footprint at the same bearing; pushout alone
	// would stack them on the rim at the same point.
	a := sim.addAgent("ada", 1, 0, fullNeeds())
	b := sim.addAgent("brook", 1.2, 0, fullNeeds())

	sim.env.Update(200 * time.Millisecond)
	sim.phys.Update(200 * time.Millisecond)

	minSep := sim.cfg.Simulation.MinSeparation
	if d := math.Hypot(a.X-b.X, a.Z-b.Z); d < minSep-1e-6 {
		t.Fatalf("distance = %.4f, want >= %.4f after pushout", d, minSep)
	}
	for _, ag := range []*world.Agent{a, b} {
		if d := math.Hypot(ag.X, ag.Z); d < 3-1e-6 {
			t.Fatalf("%s is %.4f from the center, still inside the footprint", ag.Name, d)
		}
	}
}

func TestBlockingStructurePushout(t *testing.T) {
	sim := newTestSim(1)
	sim.state.AddStructure(&world.Structure{
		Kind: world.KindShelter, Name: "longhouse", X: 0, Z: 0, Radius: 3, Blocking: true,
	})
	a := sim.addAgent("ada", 1, 0, fullNeeds())

	sim.env.Update(200 * time.Millisecond)
	sim.phys.Update(200 * time.Millisecond)

	if d := math.Hypot(a.X, a.Z); d < 3-1e-9 {
		t.Fatalf("agent %.3f from structure center, want pushed to radius 3", d)
	}
}

func TestOccupantNotPushedOut(t *testing.T) {
	sim := newTestSim(1)
	st := sim.state.AddStructure(&world.Structure{
		Kind: world.KindShelter, Name: "longhouse", X: 0, Z: 0, Radius: 3, Blocking: true, Capacity: 4,
	})
	a := sim.addAgent("ada", 1, 0, fullNeeds())
	a.State = world.StateResting
	a.TargetID = st.ID
	st.Occupy(a.ID)

	sim.env.Update(200 * time.Millisecond)
	sim.phys.Update(200 * time.Millisecond)

	if math.Abs(a.X-1) > 1e-9 || math.Abs(a.Z) > 1e-9 {
		t.Fatalf("pos = (%.3f, %.3f), occupant should stay put", a.X, a.Z)
	}
}

func TestBoundsClamp(t *testing.T) {
	sim := newTestSim(1)
	a := sim.addAgent("ada", 1000, 0, fullNeeds())

	sim.env.Update(200 * time.Millisecond)
	sim.phys.Update(200 * time.Millisecond)

	if d := math.Hypot(a.X, a.Z); d > sim.cfg.Simulation.BoundsRadius+1e-6 {
		t.Fatalf("agent %.1f from origin, want inside radius %.1f", d, sim.cfg.Simulation.BoundsRadius)
	}
}
