package settings

import (
	"time"

	"github.com/matheus3301/chatsync/internal/store"
)

// Key names a synchronized setting.
type Key string

const KeyUILanguage Key = "ui_language"

// UILanguage is the interface language.
type UILanguage string

const (
	English UILanguage = "English"
	German  UILanguage = "German"
)

// DefaultUILanguage is used until the user or the server picks one.
const DefaultUILanguage = English

// ParseUILanguage validates a stored or server value.
func ParseUILanguage(v string) (UILanguage, bool) {
	switch UILanguage(v) {
	case English, German:
		return UILanguage(v), true
	}
	return "", false
}

// knownKeys lists every synchronized key with its default storage value.
var knownKeys = map[Key]string{
	KeyUILanguage: string(DefaultUILanguage),
}

// validValue reports whether v is acceptable for key.
func validValue(key Key, v string) bool {
	switch key {
	case KeyUILanguage:
		_, ok := ParseUILanguage(v)
		return ok
	}
	return false
}

// Settings is the typed view of a user's settings.
type Settings struct {
	UILanguage LocalSetting[UILanguage]
}

func settingFromRow(r store.SettingRow) LocalSetting[string] {
	return LocalSetting[string]{
		Value:         r.Value,
		LocalVersion:  r.LocalVersion,
		SyncedVersion: r.SyncedVersion,
		ServerVersion: r.ServerVersion,
		ModifiedAt:    r.ModifiedAt,
		SyncStatus:    SyncStatus(r.SyncStatus),
	}
}

func settingToRow(userID string, key Key, s LocalSetting[string]) store.SettingRow {
	return store.SettingRow{
		UserID:        userID,
		Key:           string(key),
		Value:         s.Value,
		LocalVersion:  s.LocalVersion,
		SyncedVersion: s.SyncedVersion,
		ServerVersion: s.ServerVersion,
		ModifiedAt:    s.ModifiedAt,
		SyncStatus:    string(s.SyncStatus),
	}
}

// typed converts a stored setting. Invalid stored values fall back to def.
func typed[T comparable](s LocalSetting[string], parse func(string) (T, bool), def T) LocalSetting[T] {
	v, ok := parse(s.Value)
	if !ok {
		v = def
	}
	return LocalSetting[T]{
		Value:         v,
		LocalVersion:  s.LocalVersion,
		SyncedVersion: s.SyncedVersion,
		ServerVersion: s.ServerVersion,
		ModifiedAt:    s.ModifiedAt,
		SyncStatus:    s.SyncStatus,
	}
}

func settingsFromRows(rows []store.SettingRow, now time.Time) Settings {
	out := Settings{UILanguage: NewLocalSetting(DefaultUILanguage, now)}
	for _, r := range rows {
		switch Key(r.Key) {
		case KeyUILanguage:
			out.UILanguage = typed(settingFromRow(r), ParseUILanguage, DefaultUILanguage)
		}
	}
	return out
}
