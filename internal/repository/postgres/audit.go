package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/nycmed/hospital-records/internal/core/domain"
)

// AuditRepository implements port.AuditRepository using PostgreSQL. The
// audit_log table is append-only; nothing in this repository updates or
// deletes rows.
type AuditRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAuditRepository wires a PostgreSQL-backed audit repository.
func NewAuditRepository(exec pgExecutor) *AuditRepository {
	return &AuditRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Append inserts one audit event.
func (r *AuditRepository) Append(ctx context.Context, event domain.AuditEvent) error {
	stmt, args, err := r.builder.Insert("hosp.audit_log").
		Columns(
			"occurred_at",
			"category",
			"actor",
			"detail",
			"entity_type",
			"entity_id",
			"success",
			"origin_ip",
			"target_user",
		).
		Values(
			event.OccurredAt,
			event.Category,
			event.Actor,
			event.Detail,
			event.EntityType,
			event.EntityID,
			event.Success,
			event.OriginIP,
			event.TargetUser,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert audit event sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	return nil
}

// ListRecent returns events newest first. A non-zero afterID restricts the
// result to rows with a larger identifier, supporting incremental polling.
func (r *AuditRepository) ListRecent(ctx context.Context, limit int, afterID int64) ([]domain.AuditEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := r.builder.
		Select(
			"id",
			"occurred_at",
			"category",
			"actor",
			"detail",
			"entity_type",
			"entity_id",
			"success",
			"origin_ip",
			"target_user",
		).
		From("hosp.audit_log").
		OrderBy("id DESC").
		Limit(uint64(limit))

	if afterID > 0 {
		query = query.Where(squirrel.Gt{"id": afterID})
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list audit events sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var event domain.AuditEvent
		if err := rows.Scan(
			&event.ID,
			&event.OccurredAt,
			&event.Category,
			&event.Actor,
			&event.Detail,
			&event.EntityType,
			&event.EntityID,
			&event.Success,
			&event.OriginIP,
			&event.TargetUser,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	return events, nil
}
