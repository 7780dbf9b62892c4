package sync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/domain"
	"github.com/matheus3301/chatsync/internal/lock"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/store"
	"go.uber.org/zap"
)

// Config tunes how the engine reopens the delta stream after a batch fails
// to apply.
type Config struct {
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// BatchApplied is the payload of bus.KindSyncBatchApplied.
type BatchApplied struct {
	Changes        int
	ChatIDs        []string
	ToTimestamp    time.Time
	HasMoreChanges bool
}

// Engine mirrors the remote chat list into the store. It reads the persisted
// watermark, opens a delta stream from it and applies every batch in a single
// transaction that also advances the watermark.
type Engine struct {
	db      *store.DB
	source  remote.DeltaSource
	locks   *lock.Keyed
	bus     *bus.Bus
	machine *status.Machine
	recon   *Reconciler
	logger  *zap.Logger
	cfg     Config

	updating atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewEngine creates a new sync engine. machine may be nil.
func NewEngine(db *store.DB, source remote.DeltaSource, locks *lock.Keyed, b *bus.Bus,
	machine *status.Machine, logger *zap.Logger, cfg Config) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 30 * time.Second
	}
	return &Engine{
		db:      db,
		source:  source,
		locks:   locks,
		bus:     b,
		machine: machine,
		recon:   NewReconciler(db, b, logger),
		logger:  logger,
		cfg:     cfg,
	}
}

// Start launches the sync loop. It runs until Stop is called or ctx is done.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	go e.run(ctx)
}

// Stop stops the sync loop and waits for it to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

// IsUpdating reports whether a batch is being written to the store.
func (e *Engine) IsUpdating() bool {
	return e.updating.Load()
}

// Reconciler exposes the sync status record.
func (e *Engine) Reconciler() *Reconciler {
	return e.recon
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)
	failures := 0
	for {
		err := e.consume(ctx)
		if ctx.Err() != nil {
			return
		}

		var delay time.Duration
		if err != nil {
			delay = e.backoff(failures)
			failures++
			e.logger.Warn("delta stream interrupted", zap.Error(err), zap.Duration("retry_in", delay))
		} else {
			failures = 0
			delay = e.cfg.RetryBaseDelay
			e.logger.Info("delta stream closed, reopening", zap.Duration("retry_in", delay))
			e.advance(status.Reconnecting)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// consume opens one delta stream from the persisted watermark and applies
// batches until the stream closes or a batch fails.
func (e *Engine) consume(ctx context.Context) error {
	since, err := e.db.LastSyncTimestamp()
	if err != nil {
		e.advance(status.Degraded)
		return fmt.Errorf("read watermark: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.advance(status.Connecting)
	e.logger.Info("opening delta stream", zap.Timep("watermark", since))

	for res := range e.source.ChatDeltas(streamCtx, since) {
		if res.Err != nil {
			e.handleTransportError(res.Err)
			continue
		}
		if res.Delta == nil {
			continue
		}
		if err := e.apply(res.Delta); err != nil {
			e.recon.RecordFailure(store.ChatListSyncKey, err)
			e.advance(status.Degraded)
			return fmt.Errorf("apply delta batch: %w", err)
		}
		e.markOnline(res.Delta.HasMoreChanges)
	}
	return nil
}

func (e *Engine) apply(d *domain.ChatListDelta) error {
	if len(d.Changes) == 0 {
		return e.db.ApplyChatListDelta(d)
	}

	ids := d.ChatIDs()
	unlock := e.locks.Lock(ids...)
	defer unlock()

	e.setUpdating(true)
	defer e.setUpdating(false)

	if err := e.db.ApplyChatListDelta(d); err != nil {
		return err
	}
	e.logger.Debug("delta batch applied",
		zap.Int("changes", len(d.Changes)),
		zap.Time("watermark", d.ToTimestamp),
		zap.Bool("has_more", d.HasMoreChanges))
	e.bus.Emit(bus.KindSyncBatchApplied, BatchApplied{
		Changes:        len(d.Changes),
		ChatIDs:        ids,
		ToTimestamp:    d.ToTimestamp,
		HasMoreChanges: d.HasMoreChanges,
	})
	return nil
}

func (e *Engine) setUpdating(v bool) {
	if e.updating.Swap(v) != v {
		e.bus.Emit(bus.KindSyncUpdating, v)
	}
}

func (e *Engine) handleTransportError(err error) {
	e.logger.Warn("delta poll failed", zap.Error(err))
	if errors.Is(err, remote.ErrUnauthorized) {
		e.advance(status.AuthRequired)
		return
	}
	e.advance(status.Reconnecting)
}

func (e *Engine) markOnline(hasMore bool) {
	if e.machine == nil {
		return
	}
	switch e.machine.Current() {
	case status.Booting, status.AuthRequired, status.Reconnecting:
		e.machine.Advance(status.Connecting)
	}
	if hasMore {
		e.machine.Advance(status.Syncing)
		return
	}
	if e.machine.Current() != status.Ready {
		e.machine.Advance(status.Syncing)
	}
	e.machine.Advance(status.Ready)
}

func (e *Engine) advance(to status.State) {
	if e.machine != nil {
		e.machine.Advance(to)
	}
}

func (e *Engine) backoff(failures int) time.Duration {
	d := e.cfg.RetryBaseDelay << min(failures, 16)
	return min(d, e.cfg.RetryMaxDelay)
}
