package persist

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

// The writer's stores are narrow interfaces, satisfied by the repos, so the
// write path is testable without Postgres.
type BotStore interface {
	Create(ctx context.Context, b *BotRow) (int64, error)
	SaveAll(ctx context.Context, bots []BotRow) error
}

type StatsStore interface {
	Flush(ctx context.Context, rows []StatsRow)
}

type JournalStore interface {
	Append(ctx context.Context, entries []JournalEntry) error
}

type PostWriteStore interface {
	CastVote(ctx context.Context, postID, botID int64, value int16) error
	PruneOld(ctx context.Context, now time.Time, window time.Duration, maxPosts int) (int, error)
}

// Stores bundles the write targets handed to a Writer.
type Stores struct {
	Bots    BotStore
	Stats   StatsStore
	Journal JournalStore
	Posts   PostWriteStore
}

// VoteJob records one bot's vote on a post.
type VoteJob struct {
	PostID int64
	BotID  int64
	Value  int16
}

// VoteResult reports a vote back to the loop; stats only count on success.
type VoteResult struct {
	BotID int64
	Err   error
}

// NewbornRow asks for a bots-table row for an agent spawned mid-run. Ref is
// an opaque caller key (the entity id) echoed back with the assigned id.
type NewbornRow struct {
	Ref uint64
	Row BotRow
}

type NewbornResult struct {
	Ref   uint64
	ExtID int64
}

// FlushJob is one interval's persistence snapshot: rows to create for
// newborns, dirty bot and stats rows, and buffered journal entries.
type FlushJob struct {
	Newborns []NewbornRow
	Bots     []BotRow
	Stats    []StatsRow
	Journal  []JournalEntry
}

// FlushResult carries the ids newborns were assigned and the bots whose
// save failed and should be re-marked dirty for the next interval.
type FlushResult struct {
	Newborns []NewbornResult
	Retry    []int64
}

// PruneJob runs one post-retention sweep.
type PruneJob struct {
	Now      time.Time
	Window   time.Duration
	MaxPosts int
}

// Writer serializes all database writes on its own goroutine so the game
// loop never waits on Postgres. Jobs are submitted without blocking and
// results come back on channels drained on the loop, the same shape the
// generation dispatcher uses.
type Writer struct {
	stores Stores
	log    *zap.Logger

	jobs    chan any
	votes   chan VoteResult
	flushes chan FlushResult
	wg      sync.WaitGroup
}

func NewWriter(stores Stores, log *zap.Logger) *Writer {
	w := &Writer{
		stores:  stores,
		log:     log,
		jobs:    make(chan any, 128),
		votes:   make(chan VoteResult, 256),
		flushes: make(chan FlushResult, 8),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// TryVote queues a vote. Returns false when the queue is full; the vote is
// simply lost, which is fine for a reaction roll.
func (w *Writer) TryVote(job VoteJob) bool {
	select {
	case w.jobs <- job:
		return true
	default:
		return false
	}
}

// TryFlush queues a persistence snapshot. The caller keeps its dirty flags
// set when this returns false and retries next interval.
func (w *Writer) TryFlush(job FlushJob) bool {
	select {
	case w.jobs <- job:
		return true
	default:
		return false
	}
}

// TryPrune queues a retention sweep.
func (w *Writer) TryPrune(job PruneJob) bool {
	select {
	case w.jobs <- job:
		return true
	default:
		return false
	}
}

// VoteResults is drained by the input phase.
func (w *Writer) VoteResults() <-chan VoteResult { return w.votes }

// FlushResults is drained by the persistence system.
func (w *Writer) FlushResults() <-chan FlushResult { return w.flushes }

// Close stops accepting jobs and waits for queued writes to finish. Results
// already delivered stay readable.
func (w *Writer) Close() {
	close(w.jobs)
	w.wg.Wait()
}

func (w *Writer) run() {
	defer w.wg.Done()
	for job := range w.jobs {
		switch j := job.(type) {
		case VoteJob:
			w.doVote(j)
		case FlushJob:
			w.doFlush(j)
		case PruneJob:
			w.doPrune(j)
		}
	}
}

func (w *Writer) doVote(j VoteJob) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	err := w.stores.Posts.CastVote(ctx, j.PostID, j.BotID, j.Value)
	cancel()
	select {
	case w.votes <- VoteResult{BotID: j.BotID, Err: err}:
	default:
		w.log.Warn("vote result dropped", zap.Int64("bot_id", j.BotID))
	}
}

func (w *Writer) doFlush(j FlushJob) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var res FlushResult
	for _, nb := range j.Newborns {
		row := nb.Row
		extID, err := w.stores.Bots.Create(ctx, &row)
		if err != nil {
			w.log.Warn("newborn insert failed",
				zap.String("name", row.Name), zap.Error(err))
			continue
		}
		res.Newborns = append(res.Newborns, NewbornResult{Ref: nb.Ref, ExtID: extID})
	}

	if len(j.Bots) > 0 {
		if err := w.stores.Bots.SaveAll(ctx, j.Bots); err != nil {
			w.log.Warn("bot flush failed", zap.Int("rows", len(j.Bots)), zap.Error(err))
			for _, b := range j.Bots {
				res.Retry = append(res.Retry, b.ID)
			}
		} else {
			w.stores.Stats.Flush(ctx, j.Stats)
		}
	}

	if len(j.Journal) > 0 {
		if err := w.stores.Journal.Append(ctx, j.Journal); err != nil {
			w.log.Warn("journal flush failed",
				zap.Int("entries", len(j.Journal)), zap.Error(err))
		}
	}

	if len(res.Newborns) == 0 && len(res.Retry) == 0 {
		return
	}
	select {
	case w.flushes <- res:
	default:
		w.log.Warn("flush result dropped",
			zap.Int("newborns", len(res.Newborns)), zap.Int("retries", len(res.Retry)))
	}
}

func (w *Writer) doPrune(j PruneJob) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	n, err := w.stores.Posts.PruneOld(ctx, j.Now, j.Window, j.MaxPosts)
	if err != nil {
		w.log.Warn("retention sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		w.log.Info("posts pruned", zap.Int("count", n))
	}
}
