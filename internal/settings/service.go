package settings

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/matheus3301/chatsync/internal/store"
	"go.uber.org/zap"
)

// Outcome tells the scheduler what to do after a sync attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetry
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetry:
		return "retry"
	case OutcomeFailure:
		return "failure"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Changed is the payload of bus.KindSettingsChanged and bus.KindSettingsSynced.
type Changed struct {
	UserID string
	Key    Key
}

// ConflictEvent is the payload of bus.KindSettingsConflict, published when
// the server's value won over a local change.
type ConflictEvent struct {
	UserID        string
	Key           Key
	LocalValue    string
	ServerValue   string
	AcceptedValue string
	ConflictedAt  time.Time
}

// Service reads, changes and synchronizes user settings.
type Service struct {
	db     *store.DB
	source remote.SettingsSource
	bus    *bus.Bus
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a settings service.
func NewService(db *store.DB, source remote.SettingsSource, b *bus.Bus, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, source: source, bus: b, logger: logger, now: time.Now}
}

// Get returns the user's settings, recovering them from the server when none
// are stored. See Recover for the error contract.
func (s *Service) Get(ctx context.Context, userID string) (*Settings, error) {
	rows, err := s.db.ListSettings(userID)
	if err != nil {
		return nil, &ReadError{Err: err}
	}
	if len(rows) == 0 {
		return s.Recover(ctx, userID)
	}
	out := settingsFromRows(rows, s.now())
	return &out, nil
}

// Recover rebuilds local settings from the server. Valid server values are
// stored as synced at the server's version, invalid ones as the default at
// that version and missing ones as pending defaults. If the server cannot be
// reached, defaults are stored and returned together with
// ErrSettingsResetToDefaults.
func (s *Service) Recover(ctx context.Context, userID string) (*Settings, error) {
	now := s.now()
	items, err := s.source.GetSettings(ctx)
	if err != nil {
		s.logger.Warn("settings recovery failed, storing defaults", zap.String("user_id", userID), zap.Error(err))
		rows := make([]store.SettingRow, 0, len(knownKeys))
		for _, key := range sortedKeys() {
			rows = append(rows, settingToRow(userID, key, NewLocalSetting(knownKeys[key], now)))
		}
		if err := s.db.UpsertSettings(rows...); err != nil {
			return nil, &WriteError{Err: err}
		}
		s.announce(userID, rows)
		out := settingsFromRows(rows, now)
		return &out, ErrSettingsResetToDefaults
	}

	server := make(map[string]remote.SettingItem, len(items))
	for _, it := range items {
		server[it.Key] = it
	}
	rows := make([]store.SettingRow, 0, len(knownKeys))
	for _, key := range sortedKeys() {
		var ls LocalSetting[string]
		it, ok := server[string(key)]
		switch {
		case !ok:
			ls = NewLocalSetting(knownKeys[key], now)
		case validValue(key, it.Value):
			ls = SyncedAt(it.Value, it.Version, now)
		default:
			s.logger.Warn("invalid server setting, using default",
				zap.String("key", string(key)), zap.String("value", it.Value))
			ls = SyncedAt(knownKeys[key], it.Version, now)
		}
		rows = append(rows, settingToRow(userID, key, ls))
	}
	if err := s.db.UpsertSettings(rows...); err != nil {
		return nil, &WriteError{Err: err}
	}
	s.announce(userID, rows)
	s.logger.Info("settings recovered", zap.String("user_id", userID), zap.Int("server_settings", len(items)))
	out := settingsFromRows(rows, now)
	return &out, nil
}

// ChangeUILanguage stores a new interface language and schedules its push.
// Missing settings are recovered first.
func (s *Service) ChangeUILanguage(ctx context.Context, userID string, lang UILanguage) error {
	return s.change(ctx, userID, KeyUILanguage, string(lang), true)
}

func (s *Service) change(ctx context.Context, userID string, key Key, value string, recoverMissing bool) error {
	if !validValue(key, value) {
		return &TransformError{Err: fmt.Errorf("invalid value %q for %s", value, key)}
	}
	now := s.now()
	row, err := s.db.TransformSetting(userID, string(key), func(r store.SettingRow) (store.SettingRow, error) {
		next := settingFromRow(r).WithValue(value, now)
		if err := next.Validate(); err != nil {
			return r, err
		}
		return settingToRow(userID, key, next), nil
	})
	if err != nil {
		err = fromStore(err)
		if recoverMissing && errors.Is(err, ErrSettingsNotFound) {
			if _, rerr := s.Recover(ctx, userID); rerr != nil && !errors.Is(rerr, ErrSettingsResetToDefaults) {
				return rerr
			}
			return s.change(ctx, userID, key, value, false)
		}
		return err
	}
	s.announce(userID, []store.SettingRow{*row})
	return nil
}

// SyncSetting pushes one setting if it has unsynced local changes.
func (s *Service) SyncSetting(ctx context.Context, userID string, key Key) Outcome {
	log := s.logger.With(zap.String("user_id", userID), zap.String("key", string(key)))

	row, err := s.db.GetSetting(userID, string(key))
	if err != nil {
		log.Warn("failed to read setting", zap.Error(err))
		return OutcomeFailure
	}
	if row == nil {
		log.Warn("setting to sync does not exist")
		return OutcomeFailure
	}
	pushed := settingFromRow(*row)
	if !pushed.IsDirty() {
		return OutcomeSuccess
	}

	if err := s.update(userID, key, LocalSetting[string].MarkSyncing); err != nil {
		log.Warn("failed to mark setting syncing", zap.Error(err))
		return OutcomeRetry
	}

	res, err := s.source.SyncSetting(ctx, syncRequest(key, pushed))
	if err != nil {
		log.Warn("setting push failed", zap.Error(err))
		if err := s.update(userID, key, LocalSetting[string].MarkFailed); err != nil {
			log.Warn("failed to mark setting failed", zap.Error(err))
		}
		return OutcomeRetry
	}
	if err := s.applyResult(userID, key, pushed, res); err != nil {
		log.Warn("failed to store sync result", zap.Error(err))
		return OutcomeRetry
	}
	return OutcomeSuccess
}

// SyncAllPending pushes every unsynced setting of the user in one batch.
func (s *Service) SyncAllPending(ctx context.Context, userID string) Outcome {
	rows, err := s.db.UnsyncedSettings(userID)
	if err != nil {
		s.logger.Warn("failed to read unsynced settings", zap.String("user_id", userID), zap.Error(err))
		return OutcomeRetry
	}
	if len(rows) == 0 {
		return OutcomeSuccess
	}

	pushed := make(map[string]LocalSetting[string], len(rows))
	reqs := make([]remote.SettingSyncRequest, 0, len(rows))
	for _, r := range rows {
		ls := settingFromRow(r)
		pushed[r.Key] = ls
		reqs = append(reqs, syncRequest(Key(r.Key), ls))
	}

	results, err := s.source.SyncSettingsBatch(ctx, reqs)
	if err != nil {
		s.logger.Warn("settings batch push failed", zap.String("user_id", userID), zap.Error(err))
		for key := range pushed {
			if err := s.update(userID, Key(key), LocalSetting[string].MarkFailed); err != nil {
				s.logger.Warn("failed to mark setting failed", zap.String("key", key), zap.Error(err))
			}
		}
		return OutcomeRetry
	}

	failed := false
	for i := range results {
		res := &results[i]
		ls, ok := pushed[res.Key]
		if !ok {
			s.logger.Warn("batch result for unknown setting", zap.String("key", res.Key))
			continue
		}
		delete(pushed, res.Key)
		if err := s.applyResult(userID, Key(res.Key), ls, res); err != nil {
			s.logger.Warn("failed to store sync result", zap.String("key", res.Key), zap.Error(err))
			failed = true
		}
	}
	if len(pushed) > 0 {
		failed = true
	}
	if failed {
		return OutcomeRetry
	}
	return OutcomeSuccess
}

// applyResult stores the server's verdict on a push of pushed. On conflict
// the newer of the local change and the server change wins.
func (s *Service) applyResult(userID string, key Key, pushed LocalSetting[string], res *remote.SettingSyncResult) error {
	var (
		conflict *ConflictEvent
		next     LocalSetting[string]
	)
	_, err := s.db.TransformSetting(userID, string(key), func(r store.SettingRow) (store.SettingRow, error) {
		conflict = nil
		cur := settingFromRow(r)
		switch res.Status {
		case remote.SyncSuccess:
			next = cur.MarkSynced(pushed.LocalVersion, res.NewVersion)
		case remote.SyncConflict:
			if !cur.ModifiedAt.Before(res.ServerModifiedAt) {
				next = cur.MarkSynced(pushed.LocalVersion, res.NewVersion)
				break
			}
			accepted := res.ServerValue
			if !validValue(key, accepted) {
				accepted = cur.Value
			}
			next = cur.AcceptServer(accepted, res.NewVersion, res.ServerModifiedAt)
			conflict = &ConflictEvent{
				UserID:        userID,
				Key:           key,
				LocalValue:    cur.Value,
				ServerValue:   res.ServerValue,
				AcceptedValue: accepted,
				ConflictedAt:  res.ServerModifiedAt,
			}
		default:
			return r, fmt.Errorf("unexpected sync status %q", res.Status)
		}
		if err := next.Validate(); err != nil {
			return r, err
		}
		return settingToRow(userID, key, next), nil
	})
	if err != nil {
		return fromStore(err)
	}

	if conflict != nil {
		s.logger.Info("setting conflict resolved for server",
			zap.String("key", string(key)),
			zap.String("local", conflict.LocalValue),
			zap.String("accepted", conflict.AcceptedValue))
		s.bus.Emit(bus.KindSettingsConflict, *conflict)
	}
	s.bus.Emit(bus.KindSettingsSynced, Changed{UserID: userID, Key: key})
	if next.NeedsSync() {
		s.bus.Emit(bus.KindSettingsChanged, Changed{UserID: userID, Key: key})
	}
	return nil
}

func (s *Service) update(userID string, key Key, fn func(LocalSetting[string]) LocalSetting[string]) error {
	_, err := s.db.TransformSetting(userID, string(key), func(r store.SettingRow) (store.SettingRow, error) {
		return settingToRow(userID, key, fn(settingFromRow(r))), nil
	})
	return fromStore(err)
}

// announce publishes a change for every row that needs a push.
func (s *Service) announce(userID string, rows []store.SettingRow) {
	for _, r := range rows {
		if settingFromRow(r).NeedsSync() {
			s.bus.Emit(bus.KindSettingsChanged, Changed{UserID: userID, Key: Key(r.Key)})
		}
	}
}

func syncRequest(key Key, s LocalSetting[string]) remote.SettingSyncRequest {
	return remote.SettingSyncRequest{
		Key:                    string(key),
		Value:                  s.Value,
		ClientVersion:          s.LocalVersion,
		LastKnownServerVersion: s.ServerVersion,
		ModifiedAt:             s.ModifiedAt,
	}
}

func sortedKeys() []Key {
	keys := make([]Key, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
