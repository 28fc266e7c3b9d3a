package sqlite

import (
	"context"
	"errors"
	"fmt"

	"paperTrader/internal/ports"

	"github.com/mattn/go-sqlite3"
)

// mapError translates driver errors into the standard port errors.
// The original error stays in the chain for logging.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", ports.ErrContextCanceled, err)
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %w", ports.ErrDuplicateEntry, err)
		case sqlite3.ErrConstraintTrigger:
			return fmt.Errorf("%w: %w", ports.ErrAppendOnly, err)
		case sqlite3.ErrConstraintCheck, sqlite3.ErrConstraintForeignKey, sqlite3.ErrConstraintNotNull:
			return fmt.Errorf("%w: %w", ports.ErrInvariantViolation, err)
		}
		if sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("%w: %w", ports.ErrInvariantViolation, err)
		}
		// Busy, locked, I/O, full disk and friends: the store is not usable right now.
		return fmt.Errorf("%w: %w", ports.ErrStorage, err)
	}

	// Closed database, dropped connection or anything unexpected from the driver.
	return fmt.Errorf("%w: %w", ports.ErrStorage, err)
}
