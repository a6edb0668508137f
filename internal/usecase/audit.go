package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nycmed/hospital-records/internal/core/domain"
	"github.com/nycmed/hospital-records/internal/core/port"
)

// DefaultRecentEventCap bounds the in-memory recent events view.
const DefaultRecentEventCap = 100

// AuditTrail records security-relevant events. Every event goes to two
// sinks: a bounded in-memory buffer serving the "recent activity" admin view
// with zero database cost, and the durable append-only audit_log table which
// is the system of record.
//
// Recording must never break the operation being audited: the durable write
// happens on a detached goroutine and failures are logged, not returned.
type AuditTrail struct {
	repo   port.AuditRepository
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	recent []domain.AuditEvent
	cap    int

	wg sync.WaitGroup
}

// NewAuditTrail constructs an AuditTrail with the given recent-view capacity.
func NewAuditTrail(repo port.AuditRepository, capacity int, logger *zap.Logger) *AuditTrail {
	if capacity <= 0 {
		capacity = DefaultRecentEventCap
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditTrail{
		repo:   repo,
		logger: logger,
		now:    time.Now,
		recent: make([]domain.AuditEvent, 0, capacity),
		cap:    capacity,
	}
}

// WithClock overrides the time source for tests.
func (t *AuditTrail) WithClock(now func() time.Time) *AuditTrail {
	if now != nil {
		t.now = now
	}
	return t
}

// Record captures one audit event. The in-memory insert is synchronous; the
// durable append is fire-and-forget.
func (t *AuditTrail) Record(ctx context.Context, event domain.AuditEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = t.now().UTC()
	}

	t.mu.Lock()
	t.recent = append([]domain.AuditEvent{event}, t.recent...)
	if len(t.recent) > t.cap {
		t.recent = t.recent[:t.cap]
	}
	t.mu.Unlock()

	if t.repo == nil {
		return
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if err := t.repo.Append(writeCtx, event); err != nil {
			t.logger.Warn("durable audit append failed",
				zap.String("category", string(event.Category)),
				zap.String("actor", event.Actor),
				zap.Error(err),
			)
		}
	}()
}

// Recent returns up to limit buffered events, newest first. A non-positive
// limit returns the whole buffer.
func (t *AuditTrail) Recent(limit int) []domain.AuditEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.recent)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]domain.AuditEvent, n)
	copy(out, t.recent[:n])
	return out
}

// ListDurable queries the durable store, newest first, optionally after a
// cursor id.
func (t *AuditTrail) ListDurable(ctx context.Context, limit int, afterID int64) ([]domain.AuditEvent, error) {
	if t.repo == nil {
		return t.Recent(limit), nil
	}
	return t.repo.ListRecent(ctx, limit, afterID)
}

// Purge clears the in-memory buffer. The durable log is untouched.
func (t *AuditTrail) Purge() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recent = t.recent[:0]
}

// Flush waits for in-flight durable writes, bounded by the context.
func (t *AuditTrail) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
