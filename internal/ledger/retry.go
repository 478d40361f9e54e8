package ledger

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// maxAttempts 瞬态错误的重试上限
const maxAttempts = 3

// Retry runs a ledger-mutating action, retrying a small fixed number of
// times on transient error kinds with a short sleep scaled to the kind.
// Unretryable kinds are returned to the caller immediately.
func Retry(ctx context.Context, log *logrus.Entry, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		kind := KindOf(err)
		if !kind.Transient() {
			return err
		}
		if attempt == maxAttempts {
			break
		}
		log.Warnf("%s failed (%s), retrying %d/%d", op, kind, attempt, maxAttempts-1)
		select {
		case <-time.After(kind.backoff()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
