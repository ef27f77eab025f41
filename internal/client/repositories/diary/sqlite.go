package diary

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

// Table names, exported for change subscriptions.
const (
	Table     = "diary_entries"
	DaysTable = "diary_days"
)

const entryColumns = `id, date, meal, food_id, recipe_id, quantity, unit,
	calories, protein, carbs, fat, synced_at, created_at, updated_at`

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// New returns a SQLiteRepository bound to the given DBTX.
func New(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) UpsertEntry(ctx context.Context, e *models.DiaryEntry) error {
	query := `INSERT INTO diary_entries (id, date, meal, food_id, recipe_id, quantity, unit,
			calories, protein, carbs, fat, synced_at, created_at, updated_at, deleted_at, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET date = excluded.date,
			meal = excluded.meal,
			food_id = excluded.food_id,
			recipe_id = excluded.recipe_id,
			quantity = excluded.quantity,
			unit = excluded.unit,
			calories = excluded.calories,
			protein = excluded.protein,
			carbs = excluded.carbs,
			fat = excluded.fat,
			synced_at = excluded.synced_at,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at,
			state = excluded.state`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.Date, string(e.Meal), e.FoodID, e.RecipeID, e.Quantity, e.Unit,
		e.Calories, e.Protein, e.Carbs, e.Fat,
		rowx.NullUnix(e.SyncedAt), rowx.Unix(e.CreatedAt), rowx.Unix(e.UpdatedAt),
		rowx.NullUnix(e.DeletedAt), string(e.State))
	if err != nil {
		return fmt.Errorf("failed to upsert diary entry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetEntry(ctx context.Context, id string) (*models.DiaryEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM diary_entries WHERE id = ? AND deleted_at IS NULL`, id)
	return scanEntry(row)
}

func (r *SQLiteRepository) EntriesForDate(ctx context.Context, date string) ([]models.DiaryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM diary_entries
		WHERE date = ? AND deleted_at IS NULL
		ORDER BY meal, created_at`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to select diary entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (r *SQLiteRepository) EntriesForRange(ctx context.Context, from, to string) ([]models.DiaryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM diary_entries
		WHERE date >= ? AND date <= ? AND deleted_at IS NULL
		ORDER BY date, meal, created_at`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to select diary entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (r *SQLiteRepository) SoftDeleteEntry(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE diary_entries SET deleted_at = ?, updated_at = ?, state = ?
		WHERE id = ? AND deleted_at IS NULL`,
		rowx.Unix(at), rowx.Unix(at), string(models.SyncStatePendingDelete), id)
	if err != nil {
		return fmt.Errorf("failed to delete diary entry: %w", err)
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

func (r *SQLiteRepository) HardDeleteEntry(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM diary_entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove diary entry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkEntrySynced(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE diary_entries SET synced_at = ? WHERE id = ?`, rowx.Unix(at), id); err != nil {
		return fmt.Errorf("failed to mark diary entry synced: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UpsertDay(ctx context.Context, d *models.DiaryDay) error {
	query := `INSERT INTO diary_days (date, completed, synced_at, created_at, updated_at, state)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET completed = excluded.completed,
			synced_at = excluded.synced_at,
			updated_at = excluded.updated_at,
			state = excluded.state`
	completed := 0
	if d.Completed {
		completed = 1
	}
	_, err := r.db.ExecContext(ctx, query,
		d.Date, completed, rowx.NullUnix(d.SyncedAt),
		rowx.Unix(d.CreatedAt), rowx.Unix(d.UpdatedAt), string(models.SyncStateLive))
	if err != nil {
		return fmt.Errorf("failed to upsert diary day: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetDay(ctx context.Context, date string) (*models.DiaryDay, error) {
	var (
		d                    models.DiaryDay
		completed            int
		syncedAt             sql.NullInt64
		createdAt, updatedAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT date, completed, synced_at, created_at, updated_at
		FROM diary_days WHERE date = ?`, date).
		Scan(&d.Date, &completed, &syncedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	d.Completed = completed != 0
	d.SyncedAt = rowx.TimePtr(syncedAt)
	d.CreatedAt = rowx.Time(createdAt)
	d.UpdatedAt = rowx.Time(updatedAt)
	d.State = models.SyncStateLive
	return &d, nil
}

func (r *SQLiteRepository) MarkDaySynced(ctx context.Context, date string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE diary_days SET synced_at = ? WHERE date = ?`, rowx.Unix(at), date); err != nil {
		return fmt.Errorf("failed to mark diary day synced: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*models.DiaryEntry, error) {
	var (
		e                    models.DiaryEntry
		syncedAt             sql.NullInt64
		createdAt, updatedAt int64
	)
	err := s.Scan(&e.ID, &e.Date, (*string)(&e.Meal), &e.FoodID, &e.RecipeID,
		&e.Quantity, &e.Unit, &e.Calories, &e.Protein, &e.Carbs, &e.Fat,
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

func scanEntries(rows *sql.Rows) ([]models.DiaryEntry, error) {
	var result []models.DiaryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	return result, rows.Err()
}
