package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/nycmed/hospital-records/internal/core/domain"
	"github.com/nycmed/hospital-records/internal/core/port"
	"github.com/nycmed/hospital-records/internal/repository"
)

// fakeUserRepo is an in-memory port.UserRepository with the same observable
// semantics as the PostgreSQL implementation.
type fakeUserRepo struct {
	mu      sync.Mutex
	users   map[string]*domain.User
	history map[string][]domain.PasswordHistoryEntry

	updatePasswordErr error
}

func newFakeUserRepo(users ...domain.User) *fakeUserRepo {
	repo := &fakeUserRepo{
		users:   make(map[string]*domain.User),
		history: make(map[string][]domain.PasswordHistoryEntry),
	}
	for i := range users {
		u := users[i]
		repo.users[u.ID] = &u
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
	if user, ok := r.users[id]; ok {
		clone := *user
		return &clone, nil
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) GetByIdentifier(_ context.Context, identifier string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Username == identifier || user.Email == identifier {
			clone := *user
			return &clone, nil
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
	user.LockState = domain.LockStateLocked
	user.LockedAt = &at
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
	user.LastLogin = &at
	user.FailedAttempts = 0
	return nil
}

func (r *fakeUserRepo) UpdatePassword(_ context.Context, id string, hash string, algo string, changedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updatePasswordErr != nil {
		return r.updatePasswordErr
	}
	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.PasswordHash = hash
	user.PasswordAlgo = algo
	user.ForcePasswordReset = false
	user.LastPasswordChange = &changedAt

	entries := append([]domain.PasswordHistoryEntry{{
		UserID:       id,
		PasswordHash: hash,
		SetAt:        changedAt,
	}}, r.history[id]...)
	if len(entries) > domain.PasswordHistoryLimit {
		entries = entries[:domain.PasswordHistoryLimit]
	}
	r.history[id] = entries
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
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	out := make([]domain.PasswordHistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (r *fakeUserRepo) get(id string) domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.users[id]
}

// fakeAttemptStore mirrors the Redis attempt counter.
type fakeAttemptStore struct {
	mu     sync.Mutex
	counts map[string]int
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{counts: make(map[string]int)}
}

func (s *fakeAttemptStore) Increment(_ context.Context, identifier string, _ time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[identifier]++
	return s.counts[identifier], nil
}

func (s *fakeAttemptStore) Reset(_ context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counts, identifier)
	return nil
}

// fakeEventPublisher records published events.
type fakeEventPublisher struct {
	mu       sync.Mutex
	locked   []domain.AccountLockedEvent
	changed  []domain.PasswordChangedEvent
	requests []domain.PasswordResetRequestedEvent
}

func (p *fakeEventPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.locked = append(p.locked, event)
	return nil
}

func (p *fakeEventPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed = append(p.changed, event)
	return nil
}

func (p *fakeEventPublisher) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, event)
	return nil
}

// fakeAuditRepo records durable audit appends.
type fakeAuditRepo struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (r *fakeAuditRepo) Append(_ context.Context, event domain.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *fakeAuditRepo) ListRecent(_ context.Context, limit int, afterID int64) ([]domain.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuditEvent, len(r.events))
	copy(out, r.events)
	return out, nil
}

func (r *fakeAuditRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// fakeTokenRepo stores reset tokens in memory with supersession semantics.
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
	for _, existing := range r.tokens {
		if existing.UserID == token.UserID && existing.UsedAt == nil && existing.RevokedAt == nil {
			at := token.CreatedAt
			existing.RevokedAt = &at
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
			clone := *token
			return &clone, nil
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
	now := time.Now().UTC()
	token.UsedAt = &now
	return nil
}

// fakeVisitRepo stores visits in memory.
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
	if visit, ok := r.visits[id]; ok {
		clone := *visit
		return &clone, nil
	}
	return nil, repository.ErrNotFound
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
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// fakeNotifier records delivered messages.
type fakeNotifier struct {
	mu       sync.Mutex
	messages []port.Message
	err      error
}

func (n *fakeNotifier) Deliver(_ context.Context, msg port.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, msg)
	return nil
}

func (n *fakeNotifier) last() (port.Message, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.messages) == 0 {
		return port.Message{}, false
	}
	return n.messages[len(n.messages)-1], true
}
