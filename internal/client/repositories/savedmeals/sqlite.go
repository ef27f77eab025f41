package savedmeals

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avasiliev/kaltrack/internal/client/models"
	"github.com/avasiliev/kaltrack/internal/client/repositories/rowx"
	"github.com/avasiliev/kaltrack/internal/common"
	"github.com/avasiliev/kaltrack/internal/dbx"
)

// Table is the saved meals table name, exported for change subscriptions.
const Table = "saved_meals"

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// New returns a SQLiteRepository bound to the given DBTX.
func New(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, m *models.SavedMeal) error {
	items, err := json.Marshal(m.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal items: %w", err)
	}

	query := `INSERT INTO saved_meals (id, name, items, synced_at, created_at, updated_at, deleted_at, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name,
			items = excluded.items,
			synced_at = excluded.synced_at,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at,
			state = excluded.state`
	_, err = r.db.ExecContext(ctx, query,
		m.ID, m.Name, string(items),
		rowx.NullUnix(m.SyncedAt), rowx.Unix(m.CreatedAt), rowx.Unix(m.UpdatedAt),
		rowx.NullUnix(m.DeletedAt), string(m.State))
	if err != nil {
		return fmt.Errorf("failed to upsert saved meal: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.SavedMeal, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, items, synced_at, created_at, updated_at
		FROM saved_meals WHERE id = ? AND deleted_at IS NULL`, id)
	return scan(row)
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.SavedMeal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, items, synced_at, created_at, updated_at
		FROM saved_meals WHERE deleted_at IS NULL ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to select saved meals: %w", err)
	}
	defer rows.Close()

	var result []models.SavedMeal
	for rows.Next() {
		m, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *m)
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE saved_meals SET deleted_at = ?, updated_at = ?, state = ?
		WHERE id = ? AND deleted_at IS NULL`,
		rowx.Unix(at), rowx.Unix(at), string(models.SyncStatePendingDelete), id)
	if err != nil {
		return fmt.Errorf("failed to delete saved meal: %w", err)
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
	if _, err := r.db.ExecContext(ctx, `DELETE FROM saved_meals WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove saved meal: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE saved_meals SET synced_at = ? WHERE id = ?`, rowx.Unix(at), id); err != nil {
		return fmt.Errorf("failed to mark saved meal synced: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.SavedMeal, error) {
	var (
		m                    models.SavedMeal
		items                string
		syncedAt             sql.NullInt64
		createdAt, updatedAt int64
	)
	err := s.Scan(&m.ID, &m.Name, &items, &syncedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	if err := json.Unmarshal([]byte(items), &m.Items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal items: %w", err)
	}
	m.SyncedAt = rowx.TimePtr(syncedAt)
	m.CreatedAt = rowx.Time(createdAt)
	m.UpdatedAt = rowx.Time(updatedAt)
	m.State = models.SyncStateLive
	return &m, nil
}
