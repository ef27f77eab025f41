// Package models defines client-side data models persisted in the local
// store and exchanged with the backend API.
package models

import "time"

// SyncState tags the replication lifecycle of a local record. A record that
// has been physically removed has no state ("gone").
type SyncState string

const (
	// SyncStateLive is a normal, visible record.
	SyncStateLive SyncState = "live"
	// SyncStatePendingDelete marks a record soft-deleted locally whose
	// deletion has not yet been confirmed by the backend. It is excluded
	// from domain queries but kept so the delete intent survives a crash.
	SyncStatePendingDelete SyncState = "pending_delete"
)

// Meta carries the sync-relevant fields embedded in every entity record.
// SyncedAt, DeletedAt and State are local bookkeeping and never sent over
// the wire.
type Meta struct {
	// SyncedAt is the time of the last confirmed remote sync, nil if the
	// record never reached the backend.
	SyncedAt *time.Time `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// DeletedAt is set when the record is soft-deleted.
	DeletedAt *time.Time `json:"-"`

	State SyncState `json:"-"`
}

// Deleted reports whether the record is soft-deleted.
func (m Meta) Deleted() bool { return m.DeletedAt != nil }
