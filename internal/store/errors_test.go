package store

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
)

func TestMapErrorClassifiesDriverCodes(t *testing.T) {
	tests := []struct {
		code sqlite3.ErrNo
		want error
	}{
		{sqlite3.ErrBusy, ErrConcurrentModification},
		{sqlite3.ErrLocked, ErrConcurrentModification},
		{sqlite3.ErrFull, ErrStorageFull},
		{sqlite3.ErrNomem, ErrStorageFull},
		{sqlite3.ErrCorrupt, ErrCorrupted},
		{sqlite3.ErrNotADB, ErrCorrupted},
		{sqlite3.ErrCantOpen, ErrStorageUnavailable},
		{sqlite3.ErrReadonly, ErrStorageUnavailable},
	}
	for _, tt := range tests {
		err := mapError(fmt.Errorf("exec: %w", sqlite3.Error{Code: tt.code}))
		if !errors.Is(err, tt.want) {
			t.Errorf("code %d: got %v, want %v", tt.code, err, tt.want)
		}
	}
}

func TestMapErrorUnknown(t *testing.T) {
	cause := errors.New("weird")
	err := mapError(cause)
	var unknown *UnknownError
	if !errors.As(err, &unknown) || unknown.Cause != cause {
		t.Errorf("got %v, want UnknownError wrapping cause", err)
	}
	if mapError(nil) != nil {
		t.Error("mapError(nil) should be nil")
	}
	if got := mapError(ErrChatNotFound); got != ErrChatNotFound {
		t.Errorf("classified error changed: %v", got)
	}
}

func TestConstraintField(t *testing.T) {
	tests := map[string]string{
		"UNIQUE constraint failed: messages.id":                    "messages.id",
		"UNIQUE constraint failed: settings.user_id, settings.key": "settings.user_id",
		"CHECK constraint failed: unread_count >= 0":               "unread_count >= 0",
		"something else":                                           "unknown",
	}
	for in, want := range tests {
		if got := constraintField(in); got != want {
			t.Errorf("constraintField(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRetryDelay(t *testing.T) {
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 500 * time.Millisecond, 500 * time.Millisecond}
	for attempt, w := range want {
		if got := retryDelay(attempt); got != w {
			t.Errorf("retryDelay(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestWithReadRetryGivesUpAfterAttempts(t *testing.T) {
	calls := 0
	_, err := withReadRetry(func() (int, error) {
		calls++
		return 0, sqlite3.Error{Code: sqlite3.ErrBusy}
	})
	if !errors.Is(err, ErrConcurrentModification) {
		t.Errorf("err = %v, want ErrConcurrentModification", err)
	}
	if calls != readAttempts {
		t.Errorf("calls = %d, want %d", calls, readAttempts)
	}

	calls = 0
	_, err = withReadRetry(func() (int, error) {
		calls++
		return 0, errors.New("permanent")
	})
	if calls != 1 || err == nil {
		t.Errorf("calls = %d err = %v, want one call and an error", calls, err)
	}
}
