package system

import (
	"time"

	"github.com/rgriola/bridge-sim/internal/config"
	"github.com/rgriola/bridge-sim/internal/core/ecs"
	coresys "github.com/rgriola/bridge-sim/internal/core/system"
	"github.com/rgriola/bridge-sim/internal/persist"
	"go.uber.org/zap"
)

// CleanupSystem flushes the deferred destroy queue every tick and queues the
// post retention sweep on its interval. Phase 7 (Cleanup), the last phase,
// so destroyed agents were still visible to the broadcast diff this tick.
// The sweep itself runs on the store writer's goroutine.
type CleanupSystem struct {
	world  *ecs.World
	writer *persist.Writer
	cfg    config.RetentionConfig
	log    *zap.Logger

	sweepEvery int
	tickCount  int
}

func NewCleanupSystem(world *ecs.World, writer *persist.Writer, retention config.RetentionConfig, sim config.SimulationConfig, log *zap.Logger) *CleanupSystem {
	every := 0
	if sim.TickRate > 0 && retention.SweepInterval > 0 {
		every = int(retention.SweepInterval / sim.TickRate)
		if every < 1 {
			every = 1
		}
	}
	return &CleanupSystem{
		world:      world,
		writer:     writer,
		cfg:        retention,
		log:        log,
		sweepEvery: every,
	}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	s.world.FlushDestroyQueue()

	if s.writer == nil || s.sweepEvery == 0 {
		return
	}
	s.tickCount++
	if s.tickCount < s.sweepEvery {
		return
	}
	s.tickCount = 0

	if !s.writer.TryPrune(persist.PruneJob{Now: time.Now(), Window: s.cfg.Window, MaxPosts: s.cfg.MaxPosts}) {
		s.log.Warn("prune deferred, write queue full")
	}
}
