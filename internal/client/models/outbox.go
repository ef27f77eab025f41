package models

import (
	"encoding/json"
	"time"
)

// EntityType tags the domain type an outbox entry targets.
type EntityType string

const (
	EntityFood      EntityType = "food"
	EntityDiary     EntityType = "diary_entry"
	EntityDiaryDay  EntityType = "diary_day"
	EntityRecipe    EntityType = "recipe"
	EntitySavedMeal EntityType = "saved_meal"
	EntityWeight    EntityType = "weight_entry"
	EntityExercise  EntityType = "exercise_entry"
	EntityProfile   EntityType = "profile"
)

// Operation is the kind of mutation recorded in the outbox.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// OutboxStatus is the replication status of an outbox entry.
type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxInProgress OutboxStatus = "in_progress"
	OutboxCompleted  OutboxStatus = "completed"
	OutboxFailed     OutboxStatus = "failed"
)

// OutboxEntry records the intent to replicate one local mutation to the
// backend. At most one entry per (EntityType, EntityID) may be pending or
// in_progress at a time; later mutations coalesce into the existing entry.
type OutboxEntry struct {
	ID         int64
	EntityType EntityType
	EntityID   string
	Operation  Operation

	// Payload is the JSON snapshot of the record at enqueue time, nil for
	// delete operations.
	Payload json.RawMessage

	Status     OutboxStatus
	RetryCount int
	LastError  string

	// Dispatched is set the first time the entry reaches in_progress. A
	// create that was never dispatched cancels out against a later delete.
	Dispatched bool

	// NextAttemptAt gates retry eligibility after a transient failure.
	NextAttemptAt time.Time

	CreatedAt   time.Time
	ProcessedAt *time.Time
}
