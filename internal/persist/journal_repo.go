package persist

import (
	"context"
	"fmt"
)

// JournalEntry is one notable sim event recorded for later inspection:
// births, builds finishing, rescues. The journal is append-only; nothing in
// the sim reads it back.
type JournalEntry struct {
	BotID  int64
	Kind   string // "born", "built", "helped", "reproduced"
	Detail string
	Tick   uint64
}

type JournalRepo struct {
	db *DB
}

func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

// Append writes a batch of journal entries in a single transaction. If it
// fails the caller drops the batch; the journal is best effort.
func (r *JournalRepo) Append(ctx context.Context, entries []JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		if _, err := tx.Exec(ctx,
			`INSERT INTO event_journal (bot_id, kind, detail, tick)
			 VALUES ($1, $2, $3, $4)`,
			e.BotID, e.Kind, e.Detail, int64(e.Tick),
		); err != nil {
			return fmt.Errorf("journal insert: %w", err)
		}
	}
	return tx.Commit(ctx)
}
