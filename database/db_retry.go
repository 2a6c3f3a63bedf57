package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/joe-ervin05/litetable/tools"
	"github.com/mattn/go-sqlite3"
)

// defaultLockRetries is used by Wrap when given a negative retry count.
const defaultLockRetries = 12

// lockBackoff is the wait before each retry; attempts past the end reuse
// the last entry.
var lockBackoff = [...]time.Duration{
	50 * time.Millisecond,
	100 * time.Millisecond,
	150 * time.Millisecond,
	200 * time.Millisecond,
	300 * time.Millisecond,
	400 * time.Millisecond,
	500 * time.Millisecond,
	700 * time.Millisecond,
	time.Second,
}

func backoff(attempt int) time.Duration {
	return lockBackoff[min(attempt, len(lockBackoff)-1)]
}

// isLockError reports SQLITE_BUSY and SQLITE_LOCKED, from go-sqlite3 or as
// text from the libsql driver.
func isLockError(err error) bool {
	if err == nil {
		return false
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "table is locked")
}

// execWithRetry calls fn until it succeeds, fails with something other than
// a lock error, runs out of retries, or ctx is done.
func execWithRetry(ctx context.Context, retries int, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if !isLockError(err) || attempt >= retries {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := backoff(attempt)
		tools.Logger.Warn("database locked, retrying", "attempt", attempt+1, "of", retries, "backoff", wait.String())

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
