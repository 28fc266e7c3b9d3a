package recorder

import (
	"context"
	"fmt"
	"time"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"

	"github.com/google/uuid"
)

const defaultStreamPage = 500

// Audit is the sole writer of audit entries.
type Audit struct {
	repo ports.AuditRepository
	now  func() time.Time
}

// NewAudit creates an audit logger. repo is used for reads and for appends
// made outside a transaction. now may be nil.
func NewAudit(repo ports.AuditRepository, now func() time.Time) *Audit {
	if now == nil {
		now = time.Now
	}
	return &Audit{repo: repo, now: now}
}

// NewCycleID returns an identifier that correlates the entries of one cycle.
func NewCycleID() string {
	return uuid.NewString()
}

// Append writes entry through w, or through the repository when w is nil.
// The timestamp is clamped so it never lies in the future.
func (a *Audit) Append(ctx context.Context, w ports.AuditWriter, entry *domain.AuditEntry) error {
	if w == nil {
		w = a.repo
	}
	if entry.CycleID == "" {
		entry.CycleID = NewCycleID()
	}
	if now := a.now().UTC(); entry.Timestamp.IsZero() || entry.Timestamp.After(now) {
		entry.Timestamp = now
	}
	if !entry.Signal.Valid() {
		return fmt.Errorf("%w: unknown audit signal %q", ports.ErrInvariantViolation, entry.Signal)
	}
	if _, err := w.AppendAudit(ctx, entry); err != nil {
		return err
	}
	return nil
}

// Stream pages through the entries matching filter in ID order and hands
// each one to fn. Iteration stops at the first error.
func (a *Audit) Stream(ctx context.Context, filter ports.AuditFilter, fn func(*domain.AuditEntry) error) error {
	page := filter
	if page.Limit <= 0 {
		page.Limit = defaultStreamPage
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		entries, err := a.repo.ListAudit(ctx, page)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := fn(e); err != nil {
				return err
			}
		}
		if len(entries) < page.Limit {
			return nil
		}
		page.AfterID = entries[len(entries)-1].ID
	}
}

// Count returns the number of entries matching filter.
func (a *Audit) Count(ctx context.Context, filter ports.AuditFilter) (int, error) {
	return a.repo.CountAudit(ctx, filter)
}
