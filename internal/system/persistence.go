package system

import (
	"context"
	"time"

	"github.com/rgriola/bridge-sim/internal/config"
	"github.com/rgriola/bridge-sim/internal/core/ecs"
	"github.com/rgriola/bridge-sim/internal/core/event"
	coresys "github.com/rgriola/bridge-sim/internal/core/system"
	"github.com/rgriola/bridge-sim/internal/persist"
	"github.com/rgriola/bridge-sim/internal/world"
	"go.uber.org/zap"
)

// PersistenceSystem flushes dirty agents, lifetime stats, and the event
// journal to Postgres on an interval. Phase 6 (Persist). Snapshots are
// handed to the store writer's goroutine, so a slow database never
// stretches a tick; ids for newly created rows come back on a channel
// drained here.
type PersistenceSystem struct {
	world   *world.State
	writer  *persist.Writer
	bots    *persist.BotRepo
	stats   *persist.StatsRepo
	journal *persist.JournalRepo
	log     *zap.Logger

	flushEvery int
	tickCount  int

	journalBuf []event.Lifecycle

	// Newborns submitted but not yet assigned an id, keyed by entity with
	// the tick the row was submitted. Entries expire after two intervals so
	// a failed insert gets retried.
	newbornPending map[ecs.EntityID]uint64
}

func NewPersistenceSystem(ws *world.State, writer *persist.Writer, bots *persist.BotRepo, stats *persist.StatsRepo, journal *persist.JournalRepo, bus *event.Bus, retention config.RetentionConfig, sim config.SimulationConfig, log *zap.Logger) *PersistenceSystem {
	every := 1
	if sim.TickRate > 0 && retention.FlushInterval > 0 {
		every = int(retention.FlushInterval / sim.TickRate)
		if every < 1 {
			every = 1
		}
	}
	s := &PersistenceSystem{
		world:          ws,
		writer:         writer,
		bots:           bots,
		stats:          stats,
		journal:        journal,
		log:            log,
		flushEvery:     every,
		newbornPending: make(map[ecs.EntityID]uint64),
	}
	event.Subscribe(bus, func(e event.Lifecycle) {
		s.journalBuf = append(s.journalBuf, e)
	})
	return s
}

func (s *PersistenceSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *PersistenceSystem) Update(_ time.Duration) {
	if s.writer == nil {
		// Running without a database: drop the buffer so it can't grow
		// without bound.
		s.journalBuf = s.journalBuf[:0]
		return
	}

	s.drainFlushResults()

	s.tickCount++
	if s.tickCount < s.flushEvery {
		return
	}
	s.tickCount = 0
	s.submitFlush()
}

func (s *PersistenceSystem) drainFlushResults() {
	for {
		select {
		case res := <-s.writer.FlushResults():
			s.applyFlushResult(res)
		default:
			return
		}
	}
}

func (s *PersistenceSystem) applyFlushResult(res persist.FlushResult) {
	for _, nb := range res.Newborns {
		id := ecs.EntityID(nb.Ref)
		s.world.BindExt(id, nb.ExtID)
		delete(s.newbornPending, id)
	}
	// Failed saves keep their dirty flag so the next snapshot retries them.
	for _, extID := range res.Retry {
		if a, ok := s.world.AgentByExt(extID); ok {
			a.Dirty = true
		}
	}
}

// submitFlush hands one snapshot to the writer. Dirty flags clear only when
// the snapshot is actually queued.
func (s *PersistenceSystem) submitFlush() {
	var job persist.FlushJob
	var dirtied []*world.Agent
	for _, id := range s.world.AgentIDsSorted() {
		a, ok := s.world.Agent(id)
		if !ok {
			continue
		}
		if a.ExtID == 0 {
			if sub, pending := s.newbornPending[id]; pending && s.world.Tick < sub+uint64(2*s.flushEvery) {
				continue
			}
			job.Newborns = append(job.Newborns, persist.NewbornRow{
				Ref: uint64(id),
				Row: s.botRow(a),
			})
			continue
		}
		if !a.Dirty {
			continue
		}
		job.Bots = append(job.Bots, s.botRow(a))
		job.Stats = append(job.Stats, s.statsRow(a))
		dirtied = append(dirtied, a)
	}
	job.Journal, s.journalBuf = s.resolveJournal()

	if len(job.Newborns) == 0 && len(job.Bots) == 0 && len(job.Journal) == 0 {
		return
	}
	if !s.writer.TryFlush(job) {
		// Queue full; nothing was cleared, so the next interval resubmits.
		s.log.Warn("flush queue full, snapshot deferred",
			zap.Int("bots", len(job.Bots)), zap.Int("newborns", len(job.Newborns)))
		s.journalBuf = append(s.journalBuf, lifecycleFrom(job.Journal)...)
		return
	}
	for _, nb := range job.Newborns {
		s.newbornPending[ecs.EntityID(nb.Ref)] = s.world.Tick
	}
	for _, a := range dirtied {
		a.Dirty = false
	}
	s.log.Debug("snapshot queued",
		zap.Int("bots", len(job.Bots)), zap.Int("newborns", len(job.Newborns)))
}

// resolveJournal converts buffered events into rows. Events whose agent has
// no bot id yet stay buffered for the next interval.
func (s *PersistenceSystem) resolveJournal() ([]persist.JournalEntry, []event.Lifecycle) {
	var rows []persist.JournalEntry
	var keep []event.Lifecycle
	for _, e := range s.journalBuf {
		botID := e.BotID
		if botID == 0 {
			if a, ok := s.world.Agent(e.EntityID); ok {
				botID = a.ExtID
			}
		}
		if botID == 0 {
			keep = append(keep, e)
			continue
		}
		rows = append(rows, persist.JournalEntry{
			BotID:  botID,
			Kind:   e.Kind,
			Detail: e.Detail,
			Tick:   s.world.Tick,
		})
	}
	return rows, keep
}

// lifecycleFrom turns resolved rows back into buffered events after a
// deferred submit, keeping their resolved bot ids.
func lifecycleFrom(rows []persist.JournalEntry) []event.Lifecycle {
	out := make([]event.Lifecycle, 0, len(rows))
	for _, r := range rows {
		out = append(out, event.Lifecycle{BotID: r.BotID, Kind: r.Kind, Detail: r.Detail})
	}
	return out
}

// SaveAll persists every agent synchronously, bypassing the writer. Called
// once at shutdown, after the writer has drained and closed.
func (s *PersistenceSystem) SaveAll(ctx context.Context) {
	if s.bots == nil {
		return
	}
	s.drainFlushResults()

	for _, id := range s.world.AgentIDsSorted() {
		a, ok := s.world.Agent(id)
		if !ok || a.ExtID != 0 {
			continue
		}
		row := s.botRow(a)
		extID, err := s.bots.Create(ctx, &row)
		if err != nil {
			s.log.Warn("newborn insert failed", zap.String("name", a.Name), zap.Error(err))
			continue
		}
		s.world.BindExt(id, extID)
	}

	var botRows []persist.BotRow
	var statRows []persist.StatsRow
	for _, id := range s.world.AgentIDsSorted() {
		a, ok := s.world.Agent(id)
		if !ok || a.ExtID == 0 {
			continue
		}
		botRows = append(botRows, s.botRow(a))
		statRows = append(statRows, s.statsRow(a))
		a.Dirty = false
	}
	if len(botRows) > 0 {
		if err := s.bots.SaveAll(ctx, botRows); err != nil {
			s.log.Warn("final save failed", zap.Int("rows", len(botRows)), zap.Error(err))
		} else {
			s.stats.Flush(ctx, statRows)
		}
	}

	rows, _ := s.resolveJournal()
	s.journalBuf = s.journalBuf[:0]
	if len(rows) > 0 {
		if err := s.journal.Append(ctx, rows); err != nil {
			s.log.Warn("final journal flush failed", zap.Int("entries", len(rows)), zap.Error(err))
		}
	}
}

func (s *PersistenceSystem) botRow(a *world.Agent) persist.BotRow {
	return persist.BotRow{
		ID:          a.ExtID,
		Name:        a.Name,
		Personality: a.Personality,
		X:           a.X,
		Z:           a.Z,
		State:       string(a.State),
		Water:       a.Needs.Water,
		Food:        a.Needs.Food,
		Sleep:       a.Needs.Sleep,
		Energy:      a.Needs.Energy,
	}
}

func (s *PersistenceSystem) statsRow(a *world.Agent) persist.StatsRow {
	return persist.StatsRow{
		BotID:         a.ExtID,
		Drinks:        a.Stats.Drinks,
		Meals:         a.Stats.Meals,
		Rests:         a.Stats.Rests,
		Builds:        a.Stats.Builds,
		Socials:       a.Stats.Socials,
		Helps:         a.Stats.Helps,
		Reproductions: a.Stats.Reproductions,
		PostsMade:     a.Stats.PostsMade,
		CommentsMade:  a.Stats.CommentsMade,
		VotesCast:     a.Stats.VotesCast,
		DistanceMoved: a.Stats.DistanceMoved,
	}
}
