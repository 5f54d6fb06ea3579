package system

import (
	"context"
	"time"

	"github.com/rgriola/bridge-sim/internal/config"
	"github.com/rgriola/bridge-sim/internal/persist"
	"go.uber.org/zap"
)

// Poller watches the posts table for rows written by other processes (or
// this one's generation workers) and feeds batches to the input system over
// a channel. It runs in its own goroutine; the game loop never waits on it.
type Poller struct {
	posts  *persist.PostRepo
	every  time.Duration
	lastID int64
	out    chan []persist.PostRow
	log    *zap.Logger
}

func NewPoller(posts *persist.PostRepo, cfg config.RetentionConfig, log *zap.Logger) *Poller {
	every := cfg.PollInterval
	if every <= 0 {
		every = 15 * time.Second
	}
	return &Poller{
		posts: posts,
		every: every,
		out:   make(chan []persist.PostRow, 4),
		log:   log,
	}
}

// Batches returns the channel the input system drains.
func (p *Poller) Batches() <-chan []persist.PostRow { return p.out }

// Prime sets the starting id so posts that existed before boot are not
// replayed as new.
func (p *Poller) Prime(ctx context.Context) error {
	rows, err := p.posts.FetchAfter(ctx, 0, 1)
	if err != nil {
		return err
	}
	// Walk to the current tail; FetchAfter pages oldest-first.
	for len(rows) > 0 {
		p.lastID = rows[len(rows)-1].ID
		rows, err = p.posts.FetchAfter(ctx, p.lastID, 100)
		if err != nil {
			return err
		}
	}
	return nil
}

// Run polls until the context is canceled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	rows, err := p.posts.FetchAfter(fetchCtx, p.lastID, 100)
	cancel()
	if err != nil {
		p.log.Warn("post poll failed", zap.Error(err))
		return
	}
	if len(rows) == 0 {
		return
	}
	p.lastID = rows[len(rows)-1].ID
	select {
	case p.out <- rows:
	default:
		// The game loop is behind; drop the batch rather than block.
		// lastID already advanced, so these posts are simply skipped.
		p.log.Warn("poll batch dropped", zap.Int("posts", len(rows)))
	}
}
