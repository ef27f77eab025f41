package profile

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

// Table is the profile table name, exported for change subscriptions.
const Table = "profile"

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// New returns a SQLiteRepository bound to the given DBTX.
func New(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, p *models.Profile) error {
	query := `INSERT INTO profile (id, email, display_name, height_cm, target_weight_kg,
			daily_calorie_goal, weight_unit, synced_at, created_at, updated_at, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET email = excluded.email,
			display_name = excluded.display_name,
			height_cm = excluded.height_cm,
			target_weight_kg = excluded.target_weight_kg,
			daily_calorie_goal = excluded.daily_calorie_goal,
			weight_unit = excluded.weight_unit,
			synced_at = excluded.synced_at,
			updated_at = excluded.updated_at`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Email, p.DisplayName, p.HeightCm, p.TargetWeightKg,
		p.DailyCalorieGoal, p.WeightUnit,
		rowx.NullUnix(p.SyncedAt), rowx.Unix(p.CreatedAt), rowx.Unix(p.UpdatedAt),
		string(models.SyncStateLive))
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context) (*models.Profile, error) {
	var (
		p                    models.Profile
		syncedAt             sql.NullInt64
		createdAt, updatedAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, height_cm, target_weight_kg,
			daily_calorie_goal, weight_unit, synced_at, created_at, updated_at
		FROM profile LIMIT 1`).
		Scan(&p.ID, &p.Email, &p.DisplayName, &p.HeightCm, &p.TargetWeightKg,
			&p.DailyCalorieGoal, &p.WeightUnit, &syncedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	p.SyncedAt = rowx.TimePtr(syncedAt)
	p.CreatedAt = rowx.Time(createdAt)
	p.UpdatedAt = rowx.Time(updatedAt)
	p.State = models.SyncStateLive
	return &p, nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE profile SET synced_at = ? WHERE id = ?`, rowx.Unix(at), id); err != nil {
		return fmt.Errorf("failed to mark profile synced: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM profile`); err != nil {
		return fmt.Errorf("failed to clear profile: %w", err)
	}
	return nil
}
