package outbox

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

// Table is the outbox table name, exported for change subscriptions.
const Table = "outbox"

const columns = `id, entity_type, entity_id, operation, payload, status,
	retry_count, last_error, dispatched, next_attempt_at, created_at, processed_at`

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or
// *sql.Tx). Enqueue is expected to run on the same transaction as the entity
// mutation it describes.
type SQLiteRepository struct {
	db dbx.DBTX
}

// New returns a SQLiteRepository bound to the given DBTX.
func New(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Enqueue(ctx context.Context, entityType models.EntityType, entityID string, op models.Operation, payload json.RawMessage) (*models.OutboxEntry, error) {
	existing, err := r.ActiveForEntity(ctx, entityType, entityID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	if existing == nil {
		return r.insert(ctx, entityType, entityID, op, payload)
	}

	// A delete against a create the server never saw cancels both: the
	// remote resource would be created only to be deleted again.
	if op == models.OpDelete && existing.Operation == models.OpCreate && !existing.Dispatched {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM outbox WHERE id = ?`, existing.ID); err != nil {
			return nil, fmt.Errorf("cancel outbox entry: %w", err)
		}
		return nil, nil
	}

	coalesced := op
	if op == models.OpDelete {
		payload = nil
	} else if existing.Operation == models.OpCreate {
		// The server has not acknowledged the create; an update folded into
		// it must still go out as a create with the latest snapshot.
		coalesced = models.OpCreate
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE outbox
		SET operation = ?, payload = ?, status = ?, retry_count = 0,
			last_error = '', next_attempt_at = 0
		WHERE id = ?`,
		string(coalesced), payloadArg(payload), string(models.OutboxPending), existing.ID)
	if err != nil {
		return nil, fmt.Errorf("coalesce outbox entry: %w", err)
	}

	existing.Operation = coalesced
	existing.Payload = payload
	existing.Status = models.OutboxPending
	existing.RetryCount = 0
	existing.LastError = ""
	existing.NextAttemptAt = time.Time{}
	return existing, nil
}

func (r *SQLiteRepository) insert(ctx context.Context, entityType models.EntityType, entityID string, op models.Operation, payload json.RawMessage) (*models.OutboxEntry, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO outbox (entity_type, entity_id, operation, payload, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(entityType), entityID, string(op), payloadArg(payload),
		string(models.OutboxPending), rowx.Unix(now))
	if err != nil {
		return nil, fmt.Errorf("insert outbox entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("outbox last insert id: %w", err)
	}

	return &models.OutboxEntry{
		ID:         id,
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  op,
		Payload:    payload,
		Status:     models.OutboxPending,
		CreatedAt:  now,
	}, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id int64) (*models.OutboxEntry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM outbox WHERE id = ?`, id)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select outbox entry: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) Due(ctx context.Context, now time.Time, limit int) ([]models.OutboxEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+columns+` FROM outbox
		WHERE status = ? AND next_attempt_at <= ?
		ORDER BY created_at, id
		LIMIT ?`,
		string(models.OutboxPending), rowx.Unix(now), limit)
	if err != nil {
		return nil, fmt.Errorf("select due outbox entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (r *SQLiteRepository) ActiveForEntity(ctx context.Context, entityType models.EntityType, entityID string) (*models.OutboxEntry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+columns+` FROM outbox
		WHERE entity_type = ? AND entity_id = ? AND status IN (?, ?)`,
		string(entityType), entityID,
		string(models.OutboxPending), string(models.OutboxInProgress))

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select active outbox entry: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) MarkInProgress(ctx context.Context, id int64) (bool, error) {
	return r.transition(ctx, `
		UPDATE outbox SET status = ?, dispatched = 1
		WHERE id = ? AND status = ?`,
		string(models.OutboxInProgress), id, string(models.OutboxPending))
}

func (r *SQLiteRepository) Complete(ctx context.Context, id int64, at time.Time) (bool, error) {
	return r.transition(ctx, `
		UPDATE outbox SET status = ?, processed_at = ?, last_error = ''
		WHERE id = ? AND status = ?`,
		string(models.OutboxCompleted), rowx.Unix(at), id, string(models.OutboxInProgress))
}

func (r *SQLiteRepository) Retry(ctx context.Context, id int64, cause string, nextAttempt time.Time) (bool, error) {
	return r.transition(ctx, `
		UPDATE outbox SET status = ?, retry_count = retry_count + 1,
			last_error = ?, next_attempt_at = ?
		WHERE id = ? AND status = ?`,
		string(models.OutboxPending), cause, rowx.Unix(nextAttempt), id,
		string(models.OutboxInProgress))
}

func (r *SQLiteRepository) Fail(ctx context.Context, id int64, cause string, at time.Time) (bool, error) {
	return r.transition(ctx, `
		UPDATE outbox SET status = ?, last_error = ?, processed_at = ?
		WHERE id = ? AND status = ?`,
		string(models.OutboxFailed), cause, rowx.Unix(at), id,
		string(models.OutboxInProgress))
}

func (r *SQLiteRepository) transition(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("outbox transition: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("outbox rows affected: %w", err)
	}
	return ra == 1, nil
}

func (r *SQLiteRepository) ReclaimInProgress(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE outbox SET status = ? WHERE status = ?`,
		string(models.OutboxPending), string(models.OutboxInProgress))
	if err != nil {
		return 0, fmt.Errorf("reclaim outbox entries: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) Failed(ctx context.Context) ([]models.OutboxEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+columns+` FROM outbox WHERE status = ? ORDER BY created_at, id`,
		string(models.OutboxFailed))
	if err != nil {
		return nil, fmt.Errorf("select failed outbox entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (r *SQLiteRepository) CountByStatus(ctx context.Context) (map[models.OutboxStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM outbox GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count outbox entries: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.OutboxStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[models.OutboxStatus(status)] = n
	}
	return counts, rows.Err()
}

func payloadArg(p json.RawMessage) any {
	if p == nil {
		return nil
	}
	return []byte(p)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*models.OutboxEntry, error) {
	var (
		e           models.OutboxEntry
		payload     []byte
		dispatched  int
		createdAt   int64
		nextAttempt int64
		processedAt sql.NullInt64
	)
	err := s.Scan(&e.ID, (*string)(&e.EntityType), &e.EntityID, (*string)(&e.Operation),
		&payload, (*string)(&e.Status), &e.RetryCount, &e.LastError,
		&dispatched, &nextAttempt, &createdAt, &processedAt)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		e.Payload = json.RawMessage(payload)
	}
	e.Dispatched = dispatched != 0
	if nextAttempt != 0 {
		e.NextAttemptAt = rowx.Time(nextAttempt)
	}
	e.CreatedAt = rowx.Time(createdAt)
	e.ProcessedAt = rowx.TimePtr(processedAt)
	return &e, nil
}

func scanEntries(rows *sql.Rows) ([]models.OutboxEntry, error) {
	var result []models.OutboxEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	return result, rows.Err()
}
