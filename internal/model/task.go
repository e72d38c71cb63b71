package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Frequency is how often a task's alarm repeats
type Frequency string

const (
	FrequencySingle  Frequency = "single"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// ParseFrequency converts a string to a Frequency
func ParseFrequency(s string) (Frequency, error) {
	switch Frequency(s) {
	case FrequencySingle, FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return Frequency(s), nil
	default:
		return "", fmt.Errorf("invalid frequency %q", s)
	}
}

// SyncStatus tracks where a task stands relative to the remote store
type SyncStatus string

const (
	SyncStatusSynced   SyncStatus = "synced"
	SyncStatusPending  SyncStatus = "pending"
	SyncStatusConflict SyncStatus = "conflict"
	SyncStatusError    SyncStatus = "error"
)

// ParseSyncStatus converts a string to a SyncStatus
func ParseSyncStatus(s string) (SyncStatus, error) {
	switch SyncStatus(s) {
	case SyncStatusSynced, SyncStatusPending, SyncStatusConflict, SyncStatusError:
		return SyncStatus(s), nil
	default:
		return "", fmt.Errorf("invalid sync status %q", s)
	}
}

// Task represents a single unit of work owned by a user.
//
// Version increments on every mutation and is used for optimistic
// concurrency across the local and remote stores. DeletedAt marks a soft
// delete; the row stays around so the deletion can propagate through sync.
type Task struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Description   *string    `json:"description,omitempty"`
	Done          bool       `json:"done"`
	AlarmTime     time.Time  `json:"alarm_time"`
	Frequency     Frequency  `json:"frequency"`
	AlarmInterval int        `json:"alarm_interval"`
	UserID        string     `json:"user_id"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
	Version       int64      `json:"version"`
	SyncStatus    SyncStatus `json:"sync_status"`
	SyncError     *string    `json:"sync_error,omitempty"`
}

// NewTask creates a task with a fresh client-side id and sync defaults.
// Creation never needs a round-trip to the server.
func NewTask(userID, name string) Task {
	now := time.Now().UTC()
	return Task{
		ID:         uuid.NewString(),
		Name:       name,
		Frequency:  FrequencySingle,
		UserID:     userID,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
		SyncStatus: SyncStatusPending,
	}
}

// Deleted returns true if the task carries a soft-delete tombstone
func (t *Task) Deleted() bool {
	return t.DeletedAt != nil
}

// Clone returns a deep copy of the task
func (t *Task) Clone() Task {
	c := *t
	if t.Description != nil {
		d := *t.Description
		c.Description = &d
	}
	if t.DeletedAt != nil {
		d := *t.DeletedAt
		c.DeletedAt = &d
	}
	if t.SyncError != nil {
		e := *t.SyncError
		c.SyncError = &e
	}
	return c
}
