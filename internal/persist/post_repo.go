package persist

import (
	"context"
	"sort"
	"time"
)

// PostRow mirrors one row of the posts table. ParentID is 0 for top-level
// posts, the parent post id for comments. Title is empty for comments.
type PostRow struct {
	ID        int64
	BotID     int64
	ParentID  int64
	Title     string
	Body      string
	CreatedAt time.Time
}

type PostRepo struct {
	db *DB
}

func NewPostRepo(db *DB) *PostRepo {
	return &PostRepo{db: db}
}

// CreatePost inserts a top-level post and returns its id.
func (r *PostRepo) CreatePost(ctx context.Context, botID int64, title, body string) (int64, error) {
	var id int64
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO posts (bot_id, title, body) VALUES ($1, $2, $3) RETURNING id`,
		botID, title, body,
	).Scan(&id)
	return id, err
}

// CreateComment inserts a comment under an existing post.
func (r *PostRepo) CreateComment(ctx context.Context, botID, parentID int64, body string) (int64, error) {
	var id int64
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO posts (bot_id, parent_id, body) VALUES ($1, $2, $3) RETURNING id`,
		botID, parentID, body,
	).Scan(&id)
	return id, err
}

// CastVote records or updates a bot's vote on a post. value is +1 or -1.
func (r *PostRepo) CastVote(ctx context.Context, postID, botID int64, value int16) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO votes (post_id, bot_id, value) VALUES ($1, $2, $3)
		 ON CONFLICT (post_id, bot_id) DO UPDATE SET value = EXCLUDED.value`,
		postID, botID, value,
	)
	return err
}

// FetchAfter returns up to limit posts with id > afterID, oldest first. The
// post poller walks the table with this, carrying the last seen id forward.
func (r *PostRepo) FetchAfter(ctx context.Context, afterID int64, limit int) ([]PostRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, bot_id, COALESCE(parent_id, 0), title, body, created_at
		 FROM posts WHERE id > $1 ORDER BY id LIMIT $2`,
		afterID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PostRow
	for rows.Next() {
		var p PostRow
		if err := rows.Scan(&p.ID, &p.BotID, &p.ParentID, &p.Title, &p.Body, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// postStamp is the (id, created_at) pair RetentionPlan works over.
type postStamp struct {
	id      int64
	created time.Time
}

// RetentionPlan returns the ids to delete so that no surviving post is older
// than the window and at most maxPosts remain, evicting oldest first.
// maxPosts == 0 means no count cap. Pure so retention is testable without a
// database.
func RetentionPlan(ids []int64, created []time.Time, now time.Time, window time.Duration, maxPosts int) []int64 {
	stamps := make([]postStamp, len(ids))
	for i := range ids {
		stamps[i] = postStamp{id: ids[i], created: created[i]}
	}
	sort.Slice(stamps, func(i, j int) bool {
		if !stamps[i].created.Equal(stamps[j].created) {
			return stamps[i].created.Before(stamps[j].created)
		}
		return stamps[i].id < stamps[j].id
	})

	var doomed []int64
	cutoff := now.Add(-window)
	keep := 0
	for _, s := range stamps {
		if window > 0 && s.created.Before(cutoff) {
			doomed = append(doomed, s.id)
			continue
		}
		keep++
	}
	if maxPosts > 0 && keep > maxPosts {
		excess := keep - maxPosts
		for _, s := range stamps {
			if excess == 0 {
				break
			}
			if window > 0 && s.created.Before(cutoff) {
				continue // already doomed
			}
			doomed = append(doomed, s.id)
			excess--
		}
	}
	return doomed
}

// PruneOld applies the retention plan against the live table: top-level
// posts beyond the window or the count cap are deleted, comments and votes
// cascade with them.
func (r *PostRepo) PruneOld(ctx context.Context, now time.Time, window time.Duration, maxPosts int) (int, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, created_at FROM posts WHERE parent_id IS NULL`)
	if err != nil {
		return 0, err
	}
	var ids []int64
	var stamps []time.Time
	for rows.Next() {
		var id int64
		var at time.Time
		if err := rows.Scan(&id, &at); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
		stamps = append(stamps, at)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	doomed := RetentionPlan(ids, stamps, now, window, maxPosts)
	if len(doomed) == 0 {
		return 0, nil
	}
	if _, err := r.db.Pool.Exec(ctx,
		`DELETE FROM posts WHERE id = ANY($1)`, doomed); err != nil {
		return 0, err
	}
	return len(doomed), nil
}
