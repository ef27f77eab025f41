package recipes

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

// Table is the recipes table name, exported for change subscriptions.
const Table = "recipes"

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// New returns a SQLiteRepository bound to the given DBTX.
func New(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, rec *models.Recipe) error {
	ingredients, err := json.Marshal(rec.Ingredients)
	if err != nil {
		return fmt.Errorf("failed to marshal ingredients: %w", err)
	}

	query := `INSERT INTO recipes (id, name, servings, ingredients, notes,
			synced_at, created_at, updated_at, deleted_at, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name,
			servings = excluded.servings,
			ingredients = excluded.ingredients,
			notes = excluded.notes,
			synced_at = excluded.synced_at,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at,
			state = excluded.state`
	_, err = r.db.ExecContext(ctx, query,
		rec.ID, rec.Name, rec.Servings, string(ingredients), rec.Notes,
		rowx.NullUnix(rec.SyncedAt), rowx.Unix(rec.CreatedAt), rowx.Unix(rec.UpdatedAt),
		rowx.NullUnix(rec.DeletedAt), string(rec.State))
	if err != nil {
		return fmt.Errorf("failed to upsert recipe: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Recipe, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, servings, ingredients, notes, synced_at, created_at, updated_at
		FROM recipes WHERE id = ? AND deleted_at IS NULL`, id)
	return scan(row)
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.Recipe, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, servings, ingredients, notes, synced_at, created_at, updated_at
		FROM recipes WHERE deleted_at IS NULL ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to select recipes: %w", err)
	}
	defer rows.Close()

	var result []models.Recipe
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE recipes SET deleted_at = ?, updated_at = ?, state = ?
		WHERE id = ? AND deleted_at IS NULL`,
		rowx.Unix(at), rowx.Unix(at), string(models.SyncStatePendingDelete), id)
	if err != nil {
		return fmt.Errorf("failed to delete recipe: %w", err)
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
	if _, err := r.db.ExecContext(ctx, `DELETE FROM recipes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove recipe: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE recipes SET synced_at = ? WHERE id = ?`, rowx.Unix(at), id); err != nil {
		return fmt.Errorf("failed to mark recipe synced: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.Recipe, error) {
	var (
		rec                  models.Recipe
		ingredients          string
		syncedAt             sql.NullInt64
		createdAt, updatedAt int64
	)
	err := s.Scan(&rec.ID, &rec.Name, &rec.Servings, &ingredients, &rec.Notes,
		&syncedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	if err := json.Unmarshal([]byte(ingredients), &rec.Ingredients); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ingredients: %w", err)
	}
	rec.SyncedAt = rowx.TimePtr(syncedAt)
	rec.CreatedAt = rowx.Time(createdAt)
	rec.UpdatedAt = rowx.Time(updatedAt)
	rec.State = models.SyncStateLive
	return &rec, nil
}
