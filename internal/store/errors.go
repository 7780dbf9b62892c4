package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// Local storage failures. Every error returned by an exported DB method is
// one of these sentinels (possibly wrapped), an *InvalidDataError or an
// *UnknownError.
var (
	ErrStorageUnavailable     = errors.New("storage unavailable")
	ErrStorageFull            = errors.New("storage full")
	ErrCorrupted              = errors.New("data corrupted")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrChatNotFound           = errors.New("chat not found")
	ErrMessageNotFound        = errors.New("message not found")
	ErrSettingNotFound        = errors.New("setting not found")
)

// InvalidDataError is returned when a row fails validation or a constraint.
type InvalidDataError struct {
	Field  string
	Reason string
}

func (e *InvalidDataError) Error() string {
	return fmt.Sprintf("invalid data: %s: %s", e.Field, e.Reason)
}

// UnknownError carries a storage failure that has no closer classification.
type UnknownError struct {
	Cause error
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("unknown storage error: %v", e.Cause)
}

func (e *UnknownError) Unwrap() error { return e.Cause }

// SettingPhase names the step of a setting transform that failed.
type SettingPhase string

const (
	PhaseRead      SettingPhase = "read"
	PhaseTransform SettingPhase = "transform"
	PhaseWrite     SettingPhase = "write"
)

// SettingOpError is returned by TransformSetting.
type SettingOpError struct {
	Phase SettingPhase
	Err   error
}

func (e *SettingOpError) Error() string {
	return fmt.Sprintf("setting %s: %v", e.Phase, e.Err)
}

func (e *SettingOpError) Unwrap() error { return e.Err }

var classified = []error{
	ErrStorageUnavailable, ErrStorageFull, ErrCorrupted, ErrConcurrentModification,
	ErrChatNotFound, ErrMessageNotFound, ErrSettingNotFound,
}

// mapError translates driver errors into the local taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	for _, c := range classified {
		if errors.Is(err, c) {
			return err
		}
	}
	var invalid *InvalidDataError
	var unknown *UnknownError
	var opErr *SettingOpError
	if errors.As(err, &invalid) || errors.As(err, &unknown) || errors.As(err, &opErr) {
		return err
	}

	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %v", ErrConcurrentModification, err)
		case sqlite3.ErrFull, sqlite3.ErrNomem:
			return fmt.Errorf("%w: %v", ErrStorageFull, err)
		case sqlite3.ErrCorrupt, sqlite3.ErrNotADB:
			return fmt.Errorf("%w: %v", ErrCorrupted, err)
		case sqlite3.ErrCantOpen, sqlite3.ErrPerm, sqlite3.ErrReadonly, sqlite3.ErrIoErr, sqlite3.ErrAuth:
			return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		case sqlite3.ErrConstraint:
			return constraintError(se)
		case sqlite3.ErrError:
			if strings.Contains(se.Error(), "no such table") {
				return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
			}
		}
	}
	if errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return &UnknownError{Cause: err}
}

func constraintError(se sqlite3.Error) error {
	field := constraintField(se.Error())
	switch se.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return &InvalidDataError{Field: field, Reason: "already exists"}
	case sqlite3.ErrConstraintForeignKey:
		return &InvalidDataError{Field: field, Reason: "references a missing row"}
	case sqlite3.ErrConstraintNotNull:
		return &InvalidDataError{Field: field, Reason: "must not be null"}
	case sqlite3.ErrConstraintCheck:
		return &InvalidDataError{Field: field, Reason: "check constraint failed"}
	}
	return &InvalidDataError{Field: field, Reason: se.Error()}
}

// constraintField extracts "messages.id" from "UNIQUE constraint failed: messages.id".
func constraintField(msg string) string {
	_, after, ok := strings.Cut(msg, "constraint failed: ")
	if !ok {
		return "unknown"
	}
	if i := strings.IndexByte(after, ','); i >= 0 {
		after = after[:i]
	}
	return strings.TrimSpace(after)
}
