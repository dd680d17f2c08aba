// Package resilience retries operations that failed on transient database
// contention or network trouble. The engines never retry on their own; the
// transport layer wraps calls with Do or DoVal.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/sells-group/callflow/internal/db"
)

// TransientError marks an error as safe to retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as transient.
func NewTransientError(err error) *TransientError {
	return &TransientError{Err: err}
}

// IsTransient reports whether err (or any error in its chain) is worth
// retrying: an explicit TransientError, a Postgres serialization failure or
// deadlock, a busy SQLite database, or a dropped connection.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	if db.IsSerializationFailure(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// modernc.org/sqlite and pgx errors often arrive wrapped in plain text.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"database is locked",
		"sqlite_busy",
		"could not serialize access",
		"deadlock detected",
		"connection reset by peer",
		"broken pipe",
		"i/o timeout",
		"conn closed",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
