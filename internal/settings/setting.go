// Package settings keeps per-user settings in step with the server using a
// version triple per setting and last-write-wins on conflict.
package settings

import (
	"fmt"
	"time"
)

// SyncStatus is the replication state of one setting.
type SyncStatus string

const (
	StatusSynced  SyncStatus = "SYNCED"
	StatusPending SyncStatus = "PENDING"
	StatusFailed  SyncStatus = "FAILED"
	StatusSyncing SyncStatus = "SYNCING"
)

// LocalSetting is a setting value with its replication metadata. Values are
// never mutated in place: every transition returns a modified copy.
//
// LocalVersion starts at 1 and grows with each local change. SyncedVersion is
// the LocalVersion last accepted by the server. ServerVersion is the server's
// version of the setting, 0 while unknown.
type LocalSetting[T comparable] struct {
	Value         T
	LocalVersion  int64
	SyncedVersion int64
	ServerVersion int64
	ModifiedAt    time.Time
	SyncStatus    SyncStatus
}

// NewLocalSetting returns a never-synced setting holding v.
func NewLocalSetting[T comparable](v T, now time.Time) LocalSetting[T] {
	return LocalSetting[T]{
		Value:        v,
		LocalVersion: 1,
		ModifiedAt:   now,
		SyncStatus:   StatusPending,
	}
}

// SyncedAt returns a setting that mirrors the server's value at version.
func SyncedAt[T comparable](v T, version int64, now time.Time) LocalSetting[T] {
	return LocalSetting[T]{
		Value:         v,
		LocalVersion:  max(version, 1),
		SyncedVersion: version,
		ServerVersion: version,
		ModifiedAt:    now,
		SyncStatus:    StatusSynced,
	}
}

// IsDirty reports local changes the server has not accepted yet.
func (s LocalSetting[T]) IsDirty() bool { return s.LocalVersion > s.SyncedVersion }

// NeedsSync reports whether a push should be scheduled.
func (s LocalSetting[T]) NeedsSync() bool {
	return s.SyncStatus == StatusPending || s.SyncStatus == StatusFailed
}

// Validate checks the version invariants.
func (s LocalSetting[T]) Validate() error {
	switch {
	case s.LocalVersion < 1:
		return fmt.Errorf("local version %d < 1", s.LocalVersion)
	case s.SyncedVersion < 0 || s.ServerVersion < 0:
		return fmt.Errorf("negative version (synced %d, server %d)", s.SyncedVersion, s.ServerVersion)
	case s.SyncedVersion > s.LocalVersion:
		return fmt.Errorf("synced version %d ahead of local version %d", s.SyncedVersion, s.LocalVersion)
	}
	return nil
}

// WithValue records a local change. Setting the current value is a no-op.
func (s LocalSetting[T]) WithValue(v T, now time.Time) LocalSetting[T] {
	if v == s.Value {
		return s
	}
	s.Value = v
	s.LocalVersion++
	s.ModifiedAt = now
	s.SyncStatus = StatusPending
	return s
}

// MarkSyncing flags a push in flight.
func (s LocalSetting[T]) MarkSyncing() LocalSetting[T] {
	s.SyncStatus = StatusSyncing
	return s
}

// MarkSynced records that the server accepted pushedVersion as serverVersion.
// Changes made after the push keep the setting pending.
func (s LocalSetting[T]) MarkSynced(pushedVersion, serverVersion int64) LocalSetting[T] {
	s.SyncedVersion = min(pushedVersion, s.LocalVersion)
	s.ServerVersion = serverVersion
	if s.IsDirty() {
		s.SyncStatus = StatusPending
	} else {
		s.SyncStatus = StatusSynced
	}
	return s
}

// MarkFailed flags a failed push for retry.
func (s LocalSetting[T]) MarkFailed() LocalSetting[T] {
	s.SyncStatus = StatusFailed
	return s
}

// AcceptServer replaces the local value with the server's winning value.
func (s LocalSetting[T]) AcceptServer(v T, version int64, modifiedAt time.Time) LocalSetting[T] {
	s.Value = v
	s.LocalVersion = max(version, 1)
	s.SyncedVersion = version
	s.ServerVersion = version
	s.ModifiedAt = modifiedAt
	s.SyncStatus = StatusSynced
	return s
}
