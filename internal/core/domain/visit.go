package domain

import "time"

// Diagnosis holds the protected medical field in exactly one of two
// representations: ciphertext (steady state) or legacy plaintext, which
// exists only until the one-time startup migration converts it.
type Diagnosis struct {
	Ciphertext      string
	LegacyPlaintext string
}

// NewEncryptedDiagnosis wraps an encrypted blob.
func NewEncryptedDiagnosis(blob string) Diagnosis {
	return Diagnosis{Ciphertext: blob}
}

// NewLegacyDiagnosis wraps a plaintext value carried over from before
// encryption was introduced. Only the migration routine may consume it.
func NewLegacyDiagnosis(plain string) Diagnosis {
	return Diagnosis{LegacyPlaintext: plain}
}

// Encrypted reports whether the field is stored as ciphertext.
func (d Diagnosis) Encrypted() bool {
	return d.Ciphertext != ""
}

// Legacy reports whether the field still holds unmigrated plaintext.
func (d Diagnosis) Legacy() bool {
	return d.Ciphertext == "" && d.LegacyPlaintext != ""
}

// Empty reports whether no diagnosis was recorded.
func (d Diagnosis) Empty() bool {
	return d.Ciphertext == "" && d.LegacyPlaintext == ""
}

// PatientVisit mirrors the persisted representation in hosp.patient_visits.
type PatientVisit struct {
	ID        string
	PatientID string
	DoctorID  string
	VisitedAt time.Time
	Diagnosis Diagnosis
	Notes     *string
	CreatedAt time.Time
	UpdatedAt *time.Time
}
