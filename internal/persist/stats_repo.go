package persist

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// StatsRow mirrors one row of the bot_stats table.
type StatsRow struct {
	BotID         int64
	Drinks        int64
	Meals         int64
	Rests         int64
	Builds        int64
	Socials       int64
	Helps         int64
	Reproductions int64
	PostsMade     int64
	CommentsMade  int64
	VotesCast     int64
	DistanceMoved float64
}

type StatsRepo struct {
	db *DB
}

func NewStatsRepo(db *DB) *StatsRepo {
	return &StatsRepo{db: db}
}

// Flush upserts a batch of stats rows. Rows are written independently: one
// bad row is logged and skipped rather than failing the batch, so a single
// agent can't block everyone else's stats.
func (r *StatsRepo) Flush(ctx context.Context, rows []StatsRow) {
	for i := range rows {
		s := &rows[i]
		_, err := r.db.Pool.Exec(ctx,
			`INSERT INTO bot_stats (bot_id, drinks, meals, rests, builds, socials,
			        helps, reproductions, posts_made, comments_made, votes_cast,
			        distance_moved, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
			 ON CONFLICT (bot_id) DO UPDATE SET
			        drinks = EXCLUDED.drinks,
			        meals = EXCLUDED.meals,
			        rests = EXCLUDED.rests,
			        builds = EXCLUDED.builds,
			        socials = EXCLUDED.socials,
			        helps = EXCLUDED.helps,
			        reproductions = EXCLUDED.reproductions,
			        posts_made = EXCLUDED.posts_made,
			        comments_made = EXCLUDED.comments_made,
			        votes_cast = EXCLUDED.votes_cast,
			        distance_moved = EXCLUDED.distance_moved,
			        updated_at = NOW()`,
			s.BotID, s.Drinks, s.Meals, s.Rests, s.Builds, s.Socials,
			s.Helps, s.Reproductions, s.PostsMade, s.CommentsMade, s.VotesCast,
			s.DistanceMoved,
		)
		if err != nil {
			r.db.log.Warn("stats flush row failed",
				zap.Int64("bot_id", s.BotID), zap.Error(err))
		}
	}
}

// Load returns the stats row for one bot, or a zero row if none exists yet.
func (r *StatsRepo) Load(ctx context.Context, botID int64) (StatsRow, error) {
	s := StatsRow{BotID: botID}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT drinks, meals, rests, builds, socials, helps, reproductions,
		        posts_made, comments_made, votes_cast, distance_moved
		 FROM bot_stats WHERE bot_id = $1`, botID,
	).Scan(&s.Drinks, &s.Meals, &s.Rests, &s.Builds, &s.Socials, &s.Helps,
		&s.Reproductions, &s.PostsMade, &s.CommentsMade, &s.VotesCast,
		&s.DistanceMoved)
	if errors.Is(err, pgx.ErrNoRows) {
		return StatsRow{BotID: botID}, nil
	}
	return s, err
}
