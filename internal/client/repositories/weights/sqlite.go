package weights

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

// Table is the weight entries table name, exported for change subscriptions.
const Table = "weight_entries"

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// New returns a SQLiteRepository bound to the given DBTX.
func New(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, w *models.WeightEntry) error {
	query := `INSERT INTO weight_entries (id, date, kilograms, note,
			synced_at, created_at, updated_at, deleted_at, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET date = excluded.date,
			kilograms = excluded.kilograms,
			note = excluded.note,
			synced_at = excluded.synced_at,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at,
			state = excluded.state`
	_, err := r.db.ExecContext(ctx, query,
		w.ID, w.Date, w.Kilograms, w.Note,
		rowx.NullUnix(w.SyncedAt), rowx.Unix(w.CreatedAt), rowx.Unix(w.UpdatedAt),
		rowx.NullUnix(w.DeletedAt), string(w.State))
	if err != nil {
		return fmt.Errorf("failed to upsert weight entry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.WeightEntry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, date, kilograms, note, synced_at, created_at, updated_at
		FROM weight_entries WHERE id = ? AND deleted_at IS NULL`, id)
	return scan(row)
}

func (r *SQLiteRepository) Range(ctx context.Context, from, to string) ([]models.WeightEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, date, kilograms, note, synced_at, created_at, updated_at
		FROM weight_entries
		WHERE date >= ? AND date <= ? AND deleted_at IS NULL
		ORDER BY date DESC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to select weight entries: %w", err)
	}
	defer rows.Close()

	var result []models.WeightEntry
	for rows.Next() {
		w, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *w)
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE weight_entries SET deleted_at = ?, updated_at = ?, state = ?
		WHERE id = ? AND deleted_at IS NULL`,
		rowx.Unix(at), rowx.Unix(at), string(models.SyncStatePendingDelete), id)
	if err != nil {
		return fmt.Errorf("failed to delete weight entry: %w", err)
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
	if _, err := r.db.ExecContext(ctx, `DELETE FROM weight_entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove weight entry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE weight_entries SET synced_at = ? WHERE id = ?`, rowx.Unix(at), id); err != nil {
		return fmt.Errorf("failed to mark weight entry synced: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.WeightEntry, error) {
	var (
		w                    models.WeightEntry
		syncedAt             sql.NullInt64
		createdAt, updatedAt int64
	)
	err := s.Scan(&w.ID, &w.Date, &w.Kilograms, &w.Note, &syncedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	w.SyncedAt = rowx.TimePtr(syncedAt)
	w.CreatedAt = rowx.Time(createdAt)
	w.UpdatedAt = rowx.Time(updatedAt)
	w.State = models.SyncStateLive
	return &w, nil
}
