package persist

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// BotRow mirrors one row of the bots table.
type BotRow struct {
	ID          int64
	Name        string
	Personality string
	X, Z        float64
	State       string
	Water       float64
	Food        float64
	Sleep       float64
	Energy      float64
}

type BotRepo struct {
	db *DB
}

func NewBotRepo(db *DB) *BotRepo {
	return &BotRepo{db: db}
}

// LoadAll returns every persisted bot, ordered by id so boot spawns are
// deterministic.
func (r *BotRepo) LoadAll(ctx context.Context) ([]BotRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, name, personality, x, z, state, water, food, sleep, energy
		 FROM bots ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BotRow
	for rows.Next() {
		var b BotRow
		if err := rows.Scan(&b.ID, &b.Name, &b.Personality, &b.X, &b.Z,
			&b.State, &b.Water, &b.Food, &b.Sleep, &b.Energy); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Load returns one bot by name, or nil if it does not exist.
func (r *BotRepo) Load(ctx context.Context, name string) (*BotRow, error) {
	b := &BotRow{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, name, personality, x, z, state, water, food, sleep, energy
		 FROM bots WHERE name = $1`, name,
	).Scan(&b.ID, &b.Name, &b.Personality, &b.X, &b.Z,
		&b.State, &b.Water, &b.Food, &b.Sleep, &b.Energy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Create inserts a new bot and returns its assigned id.
func (r *BotRepo) Create(ctx context.Context, b *BotRow) (int64, error) {
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO bots (name, personality, x, z, state, water, food, sleep, energy)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		b.Name, b.Personality, b.X, b.Z, b.State, b.Water, b.Food, b.Sleep, b.Energy,
	).Scan(&b.ID)
	if err != nil {
		return 0, err
	}
	return b.ID, nil
}

// Save writes the live fields of one bot back to its row.
func (r *BotRepo) Save(ctx context.Context, b *BotRow) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE bots SET x = $2, z = $3, state = $4,
		        water = $5, food = $6, sleep = $7, energy = $8,
		        updated_at = NOW()
		 WHERE id = $1`,
		b.ID, b.X, b.Z, b.State, b.Water, b.Food, b.Sleep, b.Energy,
	)
	return err
}

// SaveAll writes a batch of bots in one transaction. Used at shutdown so the
// world resumes where it stopped.
func (r *BotRepo) SaveAll(ctx context.Context, bots []BotRow) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := range bots {
		b := &bots[i]
		if _, err := tx.Exec(ctx,
			`UPDATE bots SET x = $2, z = $3, state = $4,
			        water = $5, food = $6, sleep = $7, energy = $8,
			        updated_at = NOW()
			 WHERE id = $1`,
			b.ID, b.X, b.Z, b.State, b.Water, b.Food, b.Sleep, b.Energy,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Delete removes a bot; stats, posts, and votes cascade.
func (r *BotRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM bots WHERE id = $1`, id)
	return err
}
