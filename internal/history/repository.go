package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	insertRecordSQL = `INSERT INTO question_history
	(user_id, title, topic, difficulty, description, submitted_solution, attempted_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

	listRecordsSQL = `SELECT user_id, title, topic, difficulty, description, submitted_solution, attempted_at
	FROM question_history
	WHERE user_id = $1
	ORDER BY attempted_at DESC
	LIMIT $2`
)

// DBTX is the subset of pgxpool.Pool the repository uses.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository stores history records in Postgres.
type Repository struct {
	db DBTX
}

// NewRepository constructs a history repository.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// Insert persists one record.
func (r *Repository) Insert(ctx context.Context, rec Record) error {
	_, err := r.db.Exec(ctx, insertRecordSQL,
		rec.UserID, rec.Title, rec.Topic, rec.Difficulty, rec.Description, rec.SubmittedSolution, rec.Date)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

// ListByUser returns the user's most recent records, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string, limit int) ([]Record, error) {
	switch {
	case limit <= 0:
		limit = 20
	case limit > 100:
		limit = 100
	}
	rows, err := r.db.Query(ctx, listRecordsSQL, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history records: %w", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var rec Record
		err := row.Scan(&rec.UserID, &rec.Title, &rec.Topic, &rec.Difficulty, &rec.Description, &rec.SubmittedSolution, &rec.Date)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan history records: %w", err)
	}
	return records, nil
}
