package model

import "time"

// TaskChanges is a partial update to a task. Nil fields are left untouched.
// It also serves as the wire format for remote updates, which is why the
// fields carry JSON tags.
//
// Version, SyncStatus and DeletedAt are set by the sync engine, never by
// callers of the public service API.
type TaskChanges struct {
	Name          *string     `json:"name,omitempty"`
	Description   *string     `json:"description,omitempty"`
	Done          *bool       `json:"done,omitempty"`
	AlarmTime     *time.Time  `json:"alarm_time,omitempty"`
	Frequency     *Frequency  `json:"frequency,omitempty"`
	AlarmInterval *int        `json:"alarm_interval,omitempty"`
	DeletedAt     *time.Time  `json:"deleted_at,omitempty"`
	Version       *int64      `json:"version,omitempty"`
	SyncStatus    *SyncStatus `json:"sync_status,omitempty"`
	SyncError     *string     `json:"sync_error,omitempty"`

	// UpdatedAt overrides the refreshed timestamp when set. Sync overwrites
	// use it to carry the winning side's timestamp so conflict tie-breaks
	// stay honest.
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	// ClearDescription, ClearSyncError and ClearDeletedAt distinguish "set
	// to null" from "leave untouched" for the nullable fields. ClearDeletedAt
	// is what lets a rollback or sweep overwrite lift a tombstone again.
	ClearDescription bool `json:"clear_description,omitempty"`
	ClearSyncError   bool `json:"clear_sync_error,omitempty"`
	ClearDeletedAt   bool `json:"clear_deleted_at,omitempty"`

	// ForceVersion bypasses the repository's version-regression guard.
	// Only the sync engine's rollback and sweep-overwrite paths set it.
	ForceVersion bool `json:"force_version,omitempty"`
}

// Empty returns true if no field is set
func (c TaskChanges) Empty() bool {
	return c.Name == nil && c.Description == nil && c.Done == nil &&
		c.AlarmTime == nil && c.Frequency == nil && c.AlarmInterval == nil &&
		c.DeletedAt == nil && c.Version == nil && c.SyncStatus == nil &&
		c.SyncError == nil && c.UpdatedAt == nil
}

// ApplyTo merges the changes into a copy of t and refreshes UpdatedAt
func (c TaskChanges) ApplyTo(t Task) Task {
	out := t.Clone()
	if c.Name != nil {
		out.Name = *c.Name
	}
	if c.ClearDescription {
		out.Description = nil
	} else if c.Description != nil {
		out.Description = c.Description
	}
	if c.Done != nil {
		out.Done = *c.Done
	}
	if c.AlarmTime != nil {
		out.AlarmTime = *c.AlarmTime
	}
	if c.Frequency != nil {
		out.Frequency = *c.Frequency
	}
	if c.AlarmInterval != nil {
		out.AlarmInterval = *c.AlarmInterval
	}
	if c.ClearDeletedAt {
		out.DeletedAt = nil
	} else if c.DeletedAt != nil {
		out.DeletedAt = c.DeletedAt
	}
	if c.Version != nil {
		out.Version = *c.Version
	}
	if c.SyncStatus != nil {
		out.SyncStatus = *c.SyncStatus
	}
	if c.ClearSyncError {
		out.SyncError = nil
	} else if c.SyncError != nil {
		out.SyncError = c.SyncError
	}
	if c.UpdatedAt != nil {
		out.UpdatedAt = *c.UpdatedAt
	} else {
		out.UpdatedAt = time.Now().UTC()
	}
	return out
}

// ChangesFromTask builds a full-field change set from a task, used when one
// side of a sync overwrites the other wholesale.
func ChangesFromTask(t Task) TaskChanges {
	name := t.Name
	done := t.Done
	alarm := t.AlarmTime
	freq := t.Frequency
	interval := t.AlarmInterval
	version := t.Version
	status := t.SyncStatus
	updated := t.UpdatedAt
	return TaskChanges{
		Name:             &name,
		Description:      t.Description,
		Done:             &done,
		AlarmTime:        &alarm,
		Frequency:        &freq,
		AlarmInterval:    &interval,
		DeletedAt:        t.DeletedAt,
		Version:          &version,
		SyncStatus:       &status,
		SyncError:        t.SyncError,
		UpdatedAt:        &updated,
		ClearDescription: t.Description == nil,
		ClearSyncError:   t.SyncError == nil,
		ClearDeletedAt:   t.DeletedAt == nil,
	}
}
