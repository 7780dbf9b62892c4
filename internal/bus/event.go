package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds published outside the store.
const (
	KindStatusChanged    = "session.status_changed"
	KindSyncUpdating     = "sync.updating"
	KindSyncBatchApplied = "sync.batch_applied"
	KindSyncFailed       = "sync.failed"
	KindSettingsChanged  = "settings.changed"
	KindSettingsConflict = "settings.conflict"
	KindSettingsSynced   = "settings.synced"
)

// Emit publishes an event of the given kind stamped with the current time.
func (b *Bus) Emit(kind string, payload any) {
	b.Publish(Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}
