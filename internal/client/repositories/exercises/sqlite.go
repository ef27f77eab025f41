package exercises

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/avasiliev/kaltrack/internal/client/models"
	"github.com/avasiliev/kaltrack/internal/client/repositories/rowx"
	"github.com/avasiliev/kaltrack/internal/common"
	"github.com/avasiliev/kaltrack/internal/dbx"
)

// Table is the exercise entries table name, exported for change subscriptions.
const Table = "exercise_entries"

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// New returns a SQLiteRepository bound to the given DBTX.
func New(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, e *models.ExerciseEntry) error {
	query := `INSERT INTO exercise_entries (id, date, name, duration_min, calories_burned,
			synced_at, created_at, updated_at, deleted_at, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET date = excluded.date,
			name = excluded.name,
			duration_min = excluded.duration_min,
			calories_burned = excluded.calories_burned,
			synced_at = excluded.synced_at,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at,
			state = excluded.state`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.Date, e.Name, e.DurationMin, e.CaloriesBurned,
		rowx.NullUnix(e.SyncedAt), rowx.Unix(e.CreatedAt), rowx.Unix(e.UpdatedAt),
		rowx.NullUnix(e.DeletedAt), string(e.State))
	if err != nil {
		return fmt.Errorf("failed to upsert exercise entry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.ExerciseEntry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, date, name, duration_min, calories_burned, synced_at, created_at, updated_at
		FROM exercise_entries WHERE id = ? AND deleted_at IS NULL`, id)
	return scan(row)
}

func (r *SQLiteRepository) Range(ctx context.Context, from, to string) ([]models.ExerciseEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, date, name, duration_min, calories_burned, synced_at, created_at, updated_at
		FROM exercise_entries
		WHERE date >= ? AND date <= ? AND deleted_at IS NULL
		ORDER BY date DESC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to select exercise entries: %w", err)
	}
	defer rows.Close()

	var result []models.ExerciseEntry
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE exercise_entries SET deleted_at = ?, updated_at = ?, state = ?
		WHERE id = ? AND deleted_at IS NULL`,
		rowx.Unix(at), rowx.Unix(at), string(models.SyncStatePendingDelete), id)
	if err != nil {
		return fmt.Errorf("failed to delete exercise entry: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) HardDelete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM exercise_entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove exercise entry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE exercise_entries SET synced_at = ? WHERE id = ?`, rowx.Unix(at), id); err != nil {
		return fmt.Errorf("failed to mark exercise entry synced: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.ExerciseEntry, error) {
	var (
		e                    models.ExerciseEntry
		syncedAt             sql.NullInt64
		createdAt, updatedAt int64
	)
	err := s.Scan(&e.ID, &e.Date, &e.Name, &e.DurationMin, &e.CaloriesBurned,
		&syncedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	e.SyncedAt = rowx.TimePtr(syncedAt)
	e.CreatedAt = rowx.Time(createdAt)
	e.UpdatedAt = rowx.Time(updatedAt)
	e.State = models.SyncStateLive
	return &e, nil
}
