package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nycmed/hospital-records/internal/core/domain"
	"github.com/nycmed/hospital-records/internal/core/port"
	"github.com/nycmed/hospital-records/internal/infra/security"
)

// VisitView pairs a visit with its diagnosis rendered for display. The
// stored representation never leaves the service.
type VisitView struct {
	Visit     domain.PatientVisit
	Diagnosis string
}

// CreateVisitInput carries a new visit record.
type CreateVisitInput struct {
	PatientID string
	DoctorID  string
	VisitedAt time.Time
	Diagnosis string
	Notes     *string
	Actor     string
	IP        string
}

// VisitService owns the patient visit lifecycle. The diagnosis field is
// encrypted on every write path without exception; plaintext appears only
// in memory between decryption and rendering.
type VisitService struct {
	visits port.VisitRepository
	cipher *security.FieldCipher
	audit  *AuditTrail
	log    *zap.Logger

	now func() time.Time
}

// NewVisitService constructs a VisitService.
func NewVisitService(visits port.VisitRepository, cipher *security.FieldCipher, audit *AuditTrail, log *zap.Logger) *VisitService {
	if log == nil {
		log = zap.NewNop()
	}
	return &VisitService{
		visits: visits,
		cipher: cipher,
		audit:  audit,
		log:    log,
		now:    time.Now,
	}
}

// WithClock overrides the time source for tests.
func (s *VisitService) WithClock(now func() time.Time) *VisitService {
	if now != nil {
		s.now = now
	}
	return s
}

// Create records a new visit with an encrypted diagnosis.
func (s *VisitService) Create(ctx context.Context, input CreateVisitInput) (*domain.PatientVisit, error) {
	blob, err := s.cipher.Encrypt(input.Diagnosis)
	if err != nil {
		return nil, fmt.Errorf("encrypt diagnosis: %w", err)
	}

	now := s.now().UTC()
	visitedAt := input.VisitedAt
	if visitedAt.IsZero() {
		visitedAt = now
	}

	visit := domain.PatientVisit{
		ID:        uuid.NewString(),
		PatientID: input.PatientID,
		DoctorID:  input.DoctorID,
		VisitedAt: visitedAt,
		Diagnosis: domain.NewEncryptedDiagnosis(blob),
		Notes:     input.Notes,
		CreatedAt: now,
	}

	if err := s.visits.Create(ctx, visit); err != nil {
		return nil, fmt.Errorf("store visit: %w", err)
	}

	s.recordAccess(ctx, input.Actor, "visit created", visit.ID, true, input.IP)

	return &visit, nil
}

// ErrVisitAccessDenied reports a read attempt on a visit the caller may not see.
var ErrVisitAccessDenied = errors.New("visit access denied")

// Get retrieves one visit with the diagnosis rendered for display. The
// allowed predicate runs before decryption; a denial is audited as a failed
// access, never as a successful read.
func (s *VisitService) Get(ctx context.Context, id, actor, ip string, allowed func(patientID string) bool) (*VisitView, error) {
	visit, err := s.visits.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if allowed != nil && !allowed(visit.PatientID) {
		s.recordAccess(ctx, actor, "visit record read denied", visit.ID, false, ip)
		return nil, ErrVisitAccessDenied
	}

	view := &VisitView{Visit: *visit}
	view.Diagnosis = s.render(ctx, visit, actor, ip)

	s.recordAccess(ctx, actor, "visit record read", visit.ID, true, ip)

	return view, nil
}

// ListByPatient returns a patient's visits with rendered diagnoses.
func (s *VisitService) ListByPatient(ctx context.Context, patientID string, limit int, actor, ip string) ([]VisitView, error) {
	visits, err := s.visits.ListByPatient(ctx, patientID, limit)
	if err != nil {
		return nil, err
	}

	views := make([]VisitView, 0, len(visits))
	for i := range visits {
		views = append(views, VisitView{
			Visit:     visits[i],
			Diagnosis: s.render(ctx, &visits[i], actor, ip),
		})
	}

	s.recordAccess(ctx, actor, "patient visit history read", patientID, true, ip)

	return views, nil
}

// UpdateDiagnosis replaces the diagnosis of an existing visit. The write is
// always encrypted; a legacy row is migrated as a side effect.
func (s *VisitService) UpdateDiagnosis(ctx context.Context, id, plaintext, actor, ip string) error {
	blob, err := s.cipher.Encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("encrypt diagnosis: %w", err)
	}

	if err := s.visits.UpdateDiagnosis(ctx, id, domain.NewEncryptedDiagnosis(blob)); err != nil {
		return err
	}

	s.recordAccess(ctx, actor, "visit diagnosis updated", id, true, ip)

	return nil
}

// MigrateLegacyDiagnoses converts remaining plaintext diagnoses to
// ciphertext. It runs once at startup and is idempotent: already-migrated
// rows no longer match the legacy filter.
func (s *VisitService) MigrateLegacyDiagnoses(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	migrated := 0
	for {
		legacy, err := s.visits.ListLegacy(ctx, batchSize)
		if err != nil {
			return migrated, fmt.Errorf("list legacy visits: %w", err)
		}
		if len(legacy) == 0 {
			break
		}

		for i := range legacy {
			visit := &legacy[i]
			blob, err := s.cipher.Encrypt(visit.Diagnosis.LegacyPlaintext)
			if err != nil {
				return migrated, fmt.Errorf("encrypt legacy diagnosis for visit %s: %w", visit.ID, err)
			}

			if err := s.visits.UpdateDiagnosis(ctx, visit.ID, domain.NewEncryptedDiagnosis(blob)); err != nil {
				return migrated, fmt.Errorf("migrate visit %s: %w", visit.ID, err)
			}
			migrated++
		}

		if len(legacy) < batchSize {
			break
		}
	}

	if migrated > 0 {
		s.log.Info("legacy diagnoses migrated", zap.Int("count", migrated))
		if s.audit != nil {
			s.audit.Record(ctx, domain.AuditEvent{
				Category: domain.AuditAdminAction,
				Actor:    "system",
				Detail:   fmt.Sprintf("encrypted %d legacy diagnoses", migrated),
				Success:  true,
			})
		}
	}

	return migrated, nil
}

// render produces the display form of the diagnosis. Ciphertext that fails
// to decrypt renders as the sentinel and raises a security violation; the
// ciphertext itself is never shown.
func (s *VisitService) render(ctx context.Context, visit *domain.PatientVisit, actor, ip string) string {
	d := visit.Diagnosis

	switch {
	case d.Empty():
		return ""
	case d.Legacy():
		return d.LegacyPlaintext
	}

	plaintext, err := s.cipher.Decrypt(d.Ciphertext)
	if err != nil {
		if errors.Is(err, security.ErrDecryptionFailed) {
			s.log.Error("diagnosis decryption failed", zap.String("visit_id", visit.ID))
			if s.audit != nil {
				s.audit.Record(ctx, domain.AuditEvent{
					Category: domain.AuditSecurityViolation,
					Actor:    actor,
					Detail:   "diagnosis decryption failed for visit " + visit.ID,
					Success:  false,
					OriginIP: optional(ip),
				})
			}
			return security.DecryptionFailedSentinel
		}
		s.log.Error("diagnosis decrypt error", zap.String("visit_id", visit.ID), zap.Error(err))
		return security.DecryptionFailedSentinel
	}

	return plaintext
}

func (s *VisitService) recordAccess(ctx context.Context, actor, detail, entityID string, success bool, ip string) {
	if s.audit == nil {
		return
	}
	entityType := "patient_visit"
	s.audit.Record(ctx, domain.AuditEvent{
		Category:   domain.AuditDataAccess,
		Actor:      actor,
		Detail:     detail,
		EntityType: &entityType,
		EntityID:   &entityID,
		Success:    success,
		OriginIP:   optional(ip),
	})
}
