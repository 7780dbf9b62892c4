package store

import (
	"errors"
	"time"
)

const readAttempts = 3

// retryDelay returns min(2^attempt, 5) * 100ms.
func retryDelay(attempt int) time.Duration {
	return time.Duration(min(1<<attempt, 5)) * 100 * time.Millisecond
}

// withReadRetry runs a read, retrying while the database is busy or locked.
func withReadRetry[T any](read func() (T, error)) (T, error) {
	var (
		v   T
		err error
	)
	for attempt := 0; attempt < readAttempts; attempt++ {
		v, err = read()
		err = mapError(err)
		if err == nil || !errors.Is(err, ErrConcurrentModification) {
			return v, err
		}
		if attempt < readAttempts-1 {
			time.Sleep(retryDelay(attempt))
		}
	}
	return v, err
}
