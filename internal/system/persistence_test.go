package system

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rgriola/bridge-sim/internal/config"
	"github.com/rgriola/bridge-sim/internal/core/ecs"
	"github.com/rgriola/bridge-sim/internal/core/event"
	"github.com/rgriola/bridge-sim/internal/persist"
	"github.com/rgriola/bridge-sim/internal/world"
	"go.uber.org/zap"
)

type stubBotStore struct {
	mu     sync.Mutex
	nextID int64
	saved  int
}

func (s *stubBotStore) Create(_ context.Context, _ *persist.BotRow) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID, nil
}

func (s *stubBotStore) SaveAll(_ context.Context, bots []persist.BotRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved += len(bots)
	return nil
}

type stubStatsStore struct{}

func (stubStatsStore) Flush(context.Context, []persist.StatsRow) {}

type stubJournalStore struct{}

func (stubJournalStore) Append(context.Context, []persist.JournalEntry) error { return nil }

type stubPostStore struct{}

func (stubPostStore) CastVote(context.Context, int64, int64, int16) error { return nil }
func (stubPostStore) PruneOld(context.Context, time.Time, time.Duration, int) (int, error) {
	return 0, nil
}

func newPersistHarness(writer *persist.Writer) (*PersistenceSystem, *world.State) {
	cfg := config.Defaults()
	w := ecs.NewWorld()
	state := world.NewState(w, 1, cfg.Simulation.BoundsRadius)
	bus := event.NewBus()
	s := NewPersistenceSystem(state, writer, nil, nil, nil, bus, cfg.Retention, cfg.Simulation, zap.NewNop())
	s.flushEvery = 1
	return s, state
}

func TestFlushResultsBindNewbornsAndRetries(t *testing.T) {
	s, state := newPersistHarness(nil)

	newborn := &world.Agent{Name: "ada-1"}
	state.AddAgent(newborn)
	saved := &world.Agent{Name: "ada", ExtID: 42}
	state.AddAgent(saved)
	saved.Dirty = false

	s.applyFlushResult(persist.FlushResult{
		Newborns: []persist.NewbornResult{{Ref: uint64(newborn.ID), ExtID: 7}},
		Retry:    []int64{42},
	})

	if newborn.ExtID != 7 {
		t.Fatalf("newborn ext id = %d, want 7", newborn.ExtID)
	}
	if a, ok := state.AgentByExt(7); !ok || a != newborn {
		t.Fatal("newborn not reachable by its assigned id")
	}
	if !saved.Dirty {
		t.Fatal("failed save should re-mark the agent dirty")
	}
}

func TestSnapshotRoundTripAssignsNewbornIDs(t *testing.T) {
	bots := &stubBotStore{}
	writer := persist.NewWriter(persist.Stores{
		Bots:    bots,
		Stats:   stubStatsStore{},
		Journal: stubJournalStore{},
		Posts:   stubPostStore{},
	}, zap.NewNop())
	defer writer.Close()

	s, state := newPersistHarness(writer)
	newborn := &world.Agent{Name: "ada-1"}
	state.AddAgent(newborn)

	s.Update(200 * time.Millisecond) // queues the snapshot

	deadline := time.Now().Add(2 * time.Second)
	for newborn.ExtID == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
		s.Update(200 * time.Millisecond)
	}
	if newborn.ExtID == 0 {
		t.Fatal("newborn never got a database id back")
	}
}

func TestDirtyFlagClearsOnQueuedSnapshot(t *testing.T) {
	writer := persist.NewWriter(persist.Stores{
		Bots:    &stubBotStore{},
		Stats:   stubStatsStore{},
		Journal: stubJournalStore{},
		Posts:   stubPostStore{},
	}, zap.NewNop())
	defer writer.Close()

	s, state := newPersistHarness(writer)
	a := &world.Agent{Name: "ada", ExtID: 42}
	state.AddAgent(a)
	a.Dirty = true

	s.submitFlush()

	if a.Dirty {
		t.Fatal("dirty flag should clear once the snapshot is queued")
	}
}
