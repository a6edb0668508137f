package routes

import (
	"context"
	"sync"
	"time"

	"github.com/nycmed/hospital-records/internal/core/domain"
	"github.com/nycmed/hospital-records/internal/repository"
)

type fakeUserRepo struct {
	mu      sync.Mutex
	users   map[string]*domain.User
	history map[string][]domain.PasswordHistoryEntry
}

func newFakeUserRepo(users ...*domain.User) *fakeUserRepo {
	repo := &fakeUserRepo{
		users:   make(map[string]*domain.User),
		history: make(map[string][]domain.PasswordHistoryEntry),
	}
	for _, u := range users {
		copied := *u
		repo.users[u.ID] = &copied
	}
	return repo
}

func (r *fakeUserRepo) Create(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = &user
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *fakeUserRepo) GetByIdentifier(_ context.Context, identifier string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Username == identifier || user.Email == identifier {
			copied := *user
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) IncrementFailedAttempts(_ context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	user.FailedAttempts++
	return user.FailedAttempts, nil
}

func (r *fakeUserRepo) Lock(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	lockedAt := at
	user.LockState = domain.LockStateLocked
	user.LockedAt = &lockedAt
	return nil
}

func (r *fakeUserRepo) Unlock(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.LockState = domain.LockStateUnlocked
	user.LockedAt = nil
	user.FailedAttempts = 0
	return nil
}

func (r *fakeUserRepo) RecordLogin(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	loginAt := at
	user.LastLogin = &loginAt
	user.FailedAttempts = 0
	return nil
}

func (r *fakeUserRepo) UpdatePassword(_ context.Context, id, passwordHash, passwordAlgo string, changedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}

	r.history[id] = append([]domain.PasswordHistoryEntry{{
		UserID:       id,
		PasswordHash: user.PasswordHash,
		SetAt:        changedAt,
	}}, r.history[id]...)
	if len(r.history[id]) > domain.PasswordHistoryLimit {
		r.history[id] = r.history[id][:domain.PasswordHistoryLimit]
	}

	changed := changedAt
	user.PasswordHash = passwordHash
	user.PasswordAlgo = passwordAlgo
	user.ForcePasswordReset = false
	user.LastPasswordChange = &changed
	return nil
}

func (r *fakeUserRepo) SetForcePasswordReset(_ context.Context, id string, force bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.ForcePasswordReset = force
	return nil
}

func (r *fakeUserRepo) ListPasswordHistory(_ context.Context, userID string, limit int) ([]domain.PasswordHistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.history[userID]
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]domain.PasswordHistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

type fakeTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*domain.PasswordResetToken
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{tokens: make(map[string]*domain.PasswordResetToken)}
}

func (r *fakeTokenRepo) CreatePasswordReset(_ context.Context, token domain.PasswordResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := token.CreatedAt
	for _, existing := range r.tokens {
		if existing.UserID == token.UserID && existing.UsedAt == nil && existing.RevokedAt == nil {
			revoked := now
			existing.RevokedAt = &revoked
		}
	}
	r.tokens[token.ID] = &token
	return nil
}

func (r *fakeTokenRepo) GetPasswordResetByHash(_ context.Context, hash string) (*domain.PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, token := range r.tokens {
		if token.TokenHash == hash {
			copied := *token
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeTokenRepo) ConsumePasswordReset(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[id]
	if !ok || token.UsedAt != nil || token.RevokedAt != nil {
		return repository.ErrNotFound
	}
	used := time.Now().UTC()
	token.UsedAt = &used
	return nil
}

type fakeVisitRepo struct {
	mu     sync.Mutex
	visits map[string]*domain.PatientVisit
}

func newFakeVisitRepo() *fakeVisitRepo {
	return &fakeVisitRepo{visits: make(map[string]*domain.PatientVisit)}
}

func (r *fakeVisitRepo) Create(_ context.Context, visit domain.PatientVisit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visits[visit.ID] = &visit
	return nil
}

func (r *fakeVisitRepo) GetByID(_ context.Context, id string) (*domain.PatientVisit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	visit, ok := r.visits[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *visit
	return &copied, nil
}

func (r *fakeVisitRepo) ListByPatient(_ context.Context, patientID string, limit int) ([]domain.PatientVisit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.PatientVisit
	for _, visit := range r.visits {
		if visit.PatientID == patientID {
			out = append(out, *visit)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeVisitRepo) UpdateDiagnosis(_ context.Context, id string, d domain.Diagnosis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	visit, ok := r.visits[id]
	if !ok {
		return repository.ErrNotFound
	}
	visit.Diagnosis = d
	return nil
}

func (r *fakeVisitRepo) ListLegacy(_ context.Context, limit int) ([]domain.PatientVisit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.PatientVisit
	for _, visit := range r.visits {
		if visit.Diagnosis.Legacy() {
			out = append(out, *visit)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
