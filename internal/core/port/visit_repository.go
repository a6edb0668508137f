package port

import (
	"context"

	"github.com/nycmed/hospital-records/internal/core/domain"
)

// VisitRepository persists patient visits and their protected diagnosis field.
type VisitRepository interface {
	Create(ctx context.Context, visit domain.PatientVisit) error
	GetByID(ctx context.Context, id string) (*domain.PatientVisit, error)
	ListByPatient(ctx context.Context, patientID string, limit int) ([]domain.PatientVisit, error)
	// UpdateDiagnosis replaces the stored diagnosis representation. Writing a
	// ciphertext always clears the legacy plaintext column in the same
	// statement.
	UpdateDiagnosis(ctx context.Context, id string, d domain.Diagnosis) error
	// ListLegacy returns visits that still carry an unmigrated plaintext
	// diagnosis.
	ListLegacy(ctx context.Context, limit int) ([]domain.PatientVisit, error)
}
