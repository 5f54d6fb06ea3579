package system

import (
	"testing"
	"time"

	"github.com/rgriola/bridge-sim/internal/core/event"
	gonet "github.com/rgriola/bridge-sim/internal/net"
	"go.uber.org/zap"
)

func newTestBroadcast(sim *testSim) *BroadcastSystem {
	return NewBroadcastSystem(sim.state, gonet.NewSessionStore(), sim.bus,
		sim.cfg.Network, sim.cfg.Simulation, "test", zap.NewNop())
}

func TestDeltaOnlyIncludesChangedAgents(t *testing.T) {
	sim := newTestSim(1)
	moving := sim.addAgent("ada", 0, 0, fullNeeds())
	sim.addAgent("brook", 10, 0, fullNeeds())
	bc := newTestBroadcast(sim)

	// Baseline: first diff sees everyone as new.
	p, cur := bc.buildDelta()
	if len(p.Agents) != 2 {
		t.Fatalf("first delta has %d agents, want 2", len(p.Agents))
	}
	if p.Agents[0].Name == "" {
		t.Fatal("new agents must carry identity fields")
	}
	bc.prev = cur

	moving.X = 5
	p, cur = bc.buildDelta()
	if len(p.Agents) != 1 {
		t.Fatalf("delta has %d agents, want only the mover", len(p.Agents))
	}
	if p.Agents[0].ID != uint64(moving.ID) {
		t.Fatalf("delta carries id %d, want %d", p.Agents[0].ID, moving.ID)
	}
	if p.Agents[0].Name != "" {
		t.Fatal("known agent should omit identity fields")
	}
	bc.prev = cur

	// Nothing moved: empty delta.
	p, _ = bc.buildDelta()
	if len(p.Agents) != 0 || len(p.Removed) != 0 || p.Env != nil {
		t.Fatalf("idle delta not empty: %+v", p)
	}
}

func TestDeltaReportsRemovals(t *testing.T) {
	sim := newTestSim(1)
	a := sim.addAgent("ada", 0, 0, fullNeeds())
	sim.addAgent("brook", 10, 0, fullNeeds())
	bc := newTestBroadcast(sim)

	_, cur := bc.buildDelta()
	bc.prev = cur

	sim.state.World.MarkForDestruction(a.ID)
	sim.state.World.FlushDestroyQueue()

	p, _ := bc.buildDelta()
	if len(p.Removed) != 1 || p.Removed[0] != uint64(a.ID) {
		t.Fatalf("removed = %v, want [%d]", p.Removed, a.ID)
	}
}

func TestDeltaIncludesEnvOnChange(t *testing.T) {
	sim := newTestSim(1)
	bc := newTestBroadcast(sim)

	_, cur := bc.buildDelta()
	bc.prev = cur
	bc.prevEnv = sim.state.Env

	p, _ := bc.buildDelta()
	if p.Env != nil {
		t.Fatal("env included without a change")
	}

	sim.state.Env.Condition = "storm"
	p, _ = bc.buildDelta()
	if p.Env == nil || p.Env.Condition != "storm" {
		t.Fatalf("env = %+v, want the storm", p.Env)
	}
}

func TestSpeechRidesTheDelta(t *testing.T) {
	sim := newTestSim(1)
	a := sim.addAgent("ada", 0, 0, fullNeeds())
	bc := newTestBroadcast(sim)

	event.Emit(sim.bus, event.AgentSpoke{EntityID: a.ID, Text: "hello"})
	sim.bus.SwapBuffers()
	sim.bus.DispatchAll()

	bc.Update(200 * time.Millisecond)

	// speechBuf is cleared once broadcast; verify it was captured first by
	// replaying the sequence with a manual build.
	event.Emit(sim.bus, event.AgentSpoke{EntityID: a.ID, Text: "again"})
	sim.bus.SwapBuffers()
	sim.bus.DispatchAll()
	p, _ := bc.buildDelta()
	if len(p.Speech) != 1 || p.Speech[0].Text != "again" {
		t.Fatalf("speech = %+v, want the single new utterance", p.Speech)
	}
	if p.Speech[0].AgentID != uint64(a.ID) {
		t.Fatalf("speech agent = %d, want %d", p.Speech[0].AgentID, a.ID)
	}
}
