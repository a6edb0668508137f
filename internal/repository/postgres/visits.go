package postgres

import (
	"context"
	"database/sql"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/nycmed/hospital-records/internal/core/domain"
	"github.com/nycmed/hospital-records/internal/repository"
)

var visitColumns = []string{
	"id",
	"patient_id",
	"doctor_id",
	"visited_at",
	"diagnosis_ciphertext",
	"diagnosis_legacy",
	"notes",
	"created_at",
	"updated_at",
}

// VisitRepository implements port.VisitRepository using PostgreSQL. The
// diagnosis lives in two columns: diagnosis_ciphertext for the encrypted
// steady state and diagnosis_legacy for plaintext rows that predate field
// encryption. A row never carries both.
type VisitRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewVisitRepository wires a PostgreSQL-backed visit repository.
func NewVisitRepository(exec pgExecutor) *VisitRepository {
	return &VisitRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new visit row.
func (r *VisitRepository) Create(ctx context.Context, visit domain.PatientVisit) error {
	var ciphertext, legacy any
	if visit.Diagnosis.Ciphertext != "" {
		ciphertext = visit.Diagnosis.Ciphertext
	}
	if visit.Diagnosis.LegacyPlaintext != "" {
		legacy = visit.Diagnosis.LegacyPlaintext
	}

	stmt, args, err := r.builder.Insert("hosp.patient_visits").
		Columns(visitColumns...).
		Values(
			visit.ID,
			visit.PatientID,
			visit.DoctorID,
			visit.VisitedAt,
			ciphertext,
			legacy,
			visit.Notes,
			visit.CreatedAt,
			visit.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert visit sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}

	return nil
}

// GetByID retrieves a visit by identifier.
func (r *VisitRepository) GetByID(ctx context.Context, id string) (*domain.PatientVisit, error) {
	stmt, args, err := r.builder.
		Select(visitColumns...).
		From("hosp.patient_visits").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select visit sql: %w", err)
	}

	visit, err := scanVisit(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan visit: %w", err)
	}

	return visit, nil
}

// ListByPatient returns a patient's visits newest first.
func (r *VisitRepository) ListByPatient(ctx context.Context, patientID string, limit int) ([]domain.PatientVisit, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	stmt, args, err := r.builder.
		Select(visitColumns...).
		From("hosp.patient_visits").
		Where(squirrel.Eq{"patient_id": patientID}).
		OrderBy("visited_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list visits sql: %w", err)
	}

	return r.queryVisits(ctx, stmt, args)
}

// UpdateDiagnosis replaces the stored diagnosis. Writing a ciphertext clears
// the legacy column in the same statement, so migrated rows cannot retain
// plaintext.
func (r *VisitRepository) UpdateDiagnosis(ctx context.Context, id string, d domain.Diagnosis) error {
	query := r.builder.Update("hosp.patient_visits").
		Set("updated_at", squirrel.Expr("NOW()"))

	switch {
	case d.Encrypted():
		query = query.
			Set("diagnosis_ciphertext", d.Ciphertext).
			Set("diagnosis_legacy", nil)
	case d.Legacy():
		query = query.
			Set("diagnosis_ciphertext", nil).
			Set("diagnosis_legacy", d.LegacyPlaintext)
	default:
		query = query.
			Set("diagnosis_ciphertext", nil).
			Set("diagnosis_legacy", nil)
	}

	stmt, args, err := query.Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build update diagnosis sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update diagnosis: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ListLegacy returns visits still carrying an unmigrated plaintext diagnosis.
func (r *VisitRepository) ListLegacy(ctx context.Context, limit int) ([]domain.PatientVisit, error) {
	if limit <= 0 || limit > 1000 {
		limit = 500
	}

	stmt, args, err := r.builder.
		Select(visitColumns...).
		From("hosp.patient_visits").
		Where(squirrel.NotEq{"diagnosis_legacy": nil}).
		OrderBy("id ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list legacy visits sql: %w", err)
	}

	return r.queryVisits(ctx, stmt, args)
}

func (r *VisitRepository) queryVisits(ctx context.Context, stmt string, args []any) ([]domain.PatientVisit, error) {
	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query visits: %w", err)
	}
	defer rows.Close()

	var visits []domain.PatientVisit
	for rows.Next() {
		visit, err := scanVisit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan visit row: %w", err)
		}
		visits = append(visits, *visit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate visits: %w", err)
	}

	return visits, nil
}

func scanVisit(row pgx.Row) (*domain.PatientVisit, error) {
	var (
		visit      domain.PatientVisit
		ciphertext sql.NullString
		legacy     sql.NullString
	)

	if err := row.Scan(
		&visit.ID,
		&visit.PatientID,
		&visit.DoctorID,
		&visit.VisitedAt,
		&ciphertext,
		&legacy,
		&visit.Notes,
		&visit.CreatedAt,
		&visit.UpdatedAt,
	); err != nil {
		return nil, err
	}

	switch {
	case ciphertext.Valid && ciphertext.String != "":
		visit.Diagnosis = domain.NewEncryptedDiagnosis(ciphertext.String)
	case legacy.Valid && legacy.String != "":
		visit.Diagnosis = domain.NewLegacyDiagnosis(legacy.String)
	}

	return &visit, nil
}
