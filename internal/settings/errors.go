package settings

import (
	"errors"
	"fmt"

	"github.com/matheus3301/chatsync/internal/store"
)

var (
	// ErrSettingsNotFound means the user has no stored settings.
	ErrSettingsNotFound = errors.New("settings not found")
	// ErrSettingsResetToDefaults means settings could not be recovered from
	// the server and defaults were stored instead.
	ErrSettingsResetToDefaults = errors.New("settings reset to defaults")
)

// ReadError is a storage failure while reading settings. Err carries the
// storage error (store.ErrConcurrentModification, store.ErrCorrupted, ...).
type ReadError struct{ Err error }

func (e *ReadError) Error() string { return fmt.Sprintf("read settings: %v", e.Err) }
func (e *ReadError) Unwrap() error { return e.Err }

// WriteError is a storage failure while writing settings.
type WriteError struct{ Err error }

func (e *WriteError) Error() string { return fmt.Sprintf("write settings: %v", e.Err) }
func (e *WriteError) Unwrap() error { return e.Err }

// TransformError is a failure of the transform applied to a setting.
type TransformError struct{ Err error }

func (e *TransformError) Error() string { return fmt.Sprintf("transform setting: %v", e.Err) }
func (e *TransformError) Unwrap() error { return e.Err }

// fromStore converts store failures into the settings taxonomy.
func fromStore(err error) error {
	if err == nil {
		return nil
	}
	var op *store.SettingOpError
	if errors.As(err, &op) {
		if errors.Is(op.Err, store.ErrSettingNotFound) {
			return ErrSettingsNotFound
		}
		switch op.Phase {
		case store.PhaseTransform:
			return &TransformError{Err: op.Err}
		case store.PhaseWrite:
			return &WriteError{Err: op.Err}
		}
		return &ReadError{Err: op.Err}
	}
	return &ReadError{Err: err}
}
