package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Users  *UserRepository
	Tokens *TokenRepository
	Audit  *AuditRepository
	Visits *VisitRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Users:  NewUserRepository(pool),
		Tokens: NewTokenRepository(pool),
		Audit:  NewAuditRepository(pool),
		Visits: NewVisitRepository(pool),
	}
}
