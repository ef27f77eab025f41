package foods

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

// Table is the foods table name, exported for change subscriptions.
const Table = "foods"

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// New returns a SQLiteRepository bound to the given DBTX.
func New(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `id, name, brand, barcode, serving_size, serving_unit,
	calories, protein, carbs, fat, shared, synced_at, created_at, updated_at`

// Upsert inserts or replaces a food by id. On conflict all domain and sync
// columns are updated.
func (r *SQLiteRepository) Upsert(ctx context.Context, f *models.Food) error {
	query := `INSERT INTO foods (id, name, brand, barcode, serving_size, serving_unit,
			calories, protein, carbs, fat, shared, synced_at, created_at, updated_at, deleted_at, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name,
			brand = excluded.brand,
			barcode = excluded.barcode,
			serving_size = excluded.serving_size,
			serving_unit = excluded.serving_unit,
			calories = excluded.calories,
			protein = excluded.protein,
			carbs = excluded.carbs,
			fat = excluded.fat,
			shared = excluded.shared,
			synced_at = excluded.synced_at,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at,
			state = excluded.state`
	_, err := r.db.ExecContext(ctx, query,
		f.ID, f.Name, f.Brand, f.Barcode, f.ServingSize, f.ServingUnit,
		f.Calories, f.Protein, f.Carbs, f.Fat, boolInt(f.Shared),
		rowx.NullUnix(f.SyncedAt), rowx.Unix(f.CreatedAt), rowx.Unix(f.UpdatedAt),
		rowx.NullUnix(f.DeletedAt), string(f.State))
	if err != nil {
		return fmt.Errorf("failed to upsert food: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Food, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM foods WHERE id = ? AND deleted_at IS NULL`, id)
	return r.scan(row)
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.Food, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM foods WHERE deleted_at IS NULL ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to select foods: %w", err)
	}
	defer rows.Close()

	var result []models.Food
	for rows.Next() {
		f, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *f)
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) FindByBarcode(ctx context.Context, code string) (*models.Food, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM foods WHERE barcode = ? AND deleted_at IS NULL`, code)
	return r.scan(row)
}

// SoftDelete marks a food pending deletion. It expects exactly one live row
// to be affected.
func (r *SQLiteRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE foods SET deleted_at = ?, updated_at = ?, state = ?
		WHERE id = ? AND deleted_at IS NULL`,
		rowx.Unix(at), rowx.Unix(at), string(models.SyncStatePendingDelete), id)
	if err != nil {
		return fmt.Errorf("failed to delete food: %w", err)
	}
	return oneRow(res)
}

func (r *SQLiteRepository) HardDelete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM foods WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove food: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE foods SET synced_at = ? WHERE id = ?`, rowx.Unix(at), id); err != nil {
		return fmt.Errorf("failed to mark food synced: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *SQLiteRepository) scan(s scanner) (*models.Food, error) {
	var (
		f                    models.Food
		shared               int
		syncedAt             sql.NullInt64
		createdAt, updatedAt int64
	)
	err := s.Scan(&f.ID, &f.Name, &f.Brand, &f.Barcode, &f.ServingSize, &f.ServingUnit,
		&f.Calories, &f.Protein, &f.Carbs, &f.Fat, &shared,
		&syncedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	f.Shared = shared != 0
	f.SyncedAt = rowx.TimePtr(syncedAt)
	f.CreatedAt = rowx.Time(createdAt)
	f.UpdatedAt = rowx.Time(updatedAt)
	f.State = models.SyncStateLive
	return &f, nil
}

func oneRow(res sql.Result) error {
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
