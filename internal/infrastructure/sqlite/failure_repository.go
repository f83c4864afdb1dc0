package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/zjrosen/catalog-engine/internal/failures"
)

const failureColumns = `id, run_id, module_key, kind, reason, payload, created_at`

// failureRepository implements failures.Repository using SQLite.
type failureRepository struct {
	db *sql.DB
}

func newFailureRepository(db *sql.DB) *failureRepository {
	return &failureRepository{db: db}
}

var _ failures.Repository = (*failureRepository)(nil)

func scanFailure(scanner interface{ Scan(...any) error }) (*FailureModel, error) {
	var model FailureModel
	err := scanner.Scan(
		&model.ID, &model.RunID, &model.ModuleKey, &model.Kind,
		&model.Reason, &model.Payload, &model.CreatedAt,
	)
	return &model, err
}

// Record inserts failures in one transaction.
func (r *failureRepository) Record(list []*failures.Failure) error {
	if len(list) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT INTO failures (run_id, module_key, kind, reason, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, f := range list {
		if f.CreatedAt.IsZero() {
			f.CreatedAt = time.Now()
		}
		model := toFailureModel(f)
		result, err := stmt.Exec(model.RunID, model.ModuleKey, model.Kind, model.Reason, model.Payload, model.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert failure %s: %w", f.Key, err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		f.ID = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit failures: %w", err)
	}
	return nil
}

// List retrieves failures matching filter, newest first.
func (r *failureRepository) List(filter failures.ListFilter) ([]*failures.Failure, error) {
	query := `SELECT ` + failureColumns + ` FROM failures WHERE 1 = 1`
	var args []any

	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	if filter.Key != "" {
		query += ` AND module_key = ?`
		args = append(args, filter.Key)
	}
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}

	query += ` ORDER BY created_at DESC, id DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list failures: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*failures.Failure
	for rows.Next() {
		model, err := scanFailure(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan failure row: %w", err)
		}
		out = append(out, model.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating failure rows: %w", err)
	}
	return out, nil
}

// Clear hard-deletes failures for one run, or all of them.
func (r *failureRepository) Clear(runID string) (int64, error) {
	var (
		result sql.Result
		err    error
	)
	if runID == "" {
		result, err = r.db.Exec(`DELETE FROM failures`)
	} else {
		result, err = r.db.Exec(`DELETE FROM failures WHERE run_id = ?`, runID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to clear failures: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
