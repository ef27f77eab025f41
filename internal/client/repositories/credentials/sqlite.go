package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avasiliev/kaltrack/internal/client/models"
	"github.com/avasiliev/kaltrack/internal/common"
	"github.com/avasiliev/kaltrack/internal/dbx"
)

// Table is the credentials table name, exported for change subscriptions.
const Table = "credentials"

const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// New returns a SQLiteRepository bound to the given DBTX.
func New(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) SaveTokens(ctx context.Context, pair models.TokenPair) error {
	for key, value := range map[string]string{
		keyAccessToken:  pair.AccessToken,
		keyRefreshToken: pair.RefreshToken,
	} {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO credentials (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
		if err != nil {
			return fmt.Errorf("failed to save credential %s: %w", key, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) Tokens(ctx context.Context) (*models.TokenPair, error) {
	access, err := r.get(ctx, keyAccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := r.get(ctx, keyRefreshToken)
	if err != nil {
		return nil, err
	}
	return &models.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM credentials WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", common.ErrUnauthenticated
	}
	if err != nil {
		return "", fmt.Errorf("failed to read credential %s: %w", key, err)
	}
	return value, nil
}
