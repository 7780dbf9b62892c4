package sync

import (
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/store"
	"go.uber.org/zap"
)

// Failure is the payload of bus.KindSyncFailed.
type Failure struct {
	Key    string
	Reason string
	At     time.Time
}

// Reconciler manages the sync status record next to the watermark.
type Reconciler struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
}

// NewReconciler creates a new reconciler.
func NewReconciler(db *store.DB, b *bus.Bus, logger *zap.Logger) *Reconciler {
	return &Reconciler{db: db, bus: b, logger: logger}
}

// RecordFailure marks the sync for key as failed with the cause. The
// watermark is left where the last committed batch put it.
func (r *Reconciler) RecordFailure(key string, cause error) {
	reason := cause.Error()
	if err := r.db.MarkSyncFailed(key, reason); err != nil {
		r.logger.Error("failed to record sync failure", zap.String("key", key), zap.Error(err))
	}
	r.bus.Emit(bus.KindSyncFailed, Failure{Key: key, Reason: reason, At: time.Now()})
}

// Status returns the sync record for key, or nil before the first sync.
func (r *Reconciler) Status(key string) (*store.SyncMetadata, error) {
	return r.db.SyncMetadata(key)
}

// Watermark returns the chat list watermark, or nil before the first sync.
func (r *Reconciler) Watermark() (*time.Time, error) {
	return r.db.LastSyncTimestamp()
}
