// Package rowx holds conversion helpers shared by the SQLite repositories.
// Timestamps are stored as integer unix seconds; nullable ones go through
// sql.NullInt64.
package rowx

import (
	"database/sql"
	"time"
)

// Unix converts a time to its stored representation.
func Unix(t time.Time) int64 { return t.Unix() }

// Time converts a stored value back to UTC time.
func Time(v int64) time.Time { return time.Unix(v, 0).UTC() }

// NullUnix converts an optional time to a nullable column value.
func NullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

// TimePtr converts a nullable column value to an optional time.
func TimePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}
