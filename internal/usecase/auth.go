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
	"github.com/nycmed/hospital-records/internal/infra/logger"
	"github.com/nycmed/hospital-records/internal/infra/security"
	"github.com/nycmed/hospital-records/internal/repository"
)

var (
	// ErrInvalidCredentials covers both unknown identifiers and wrong
	// passwords. The two cases are indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked indicates the account is locked out.
	ErrAccountLocked = errors.New("account locked")
	// ErrPasswordChangeRequired indicates authentication succeeded but the
	// credential must be replaced before a session is granted.
	ErrPasswordChangeRequired = errors.New("password change required")
)

// dummyVerifyHash keeps the work factor of a failed lookup comparable to a
// real verification so response timing does not reveal whether an
// identifier exists.
const dummyVerifyHash = "argon2id$v=19$m=65536,t=3,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// LoginInput carries one authentication attempt.
type LoginInput struct {
	Identifier string
	Password   string
	IP         string
	UserAgent  string
}

// LoginResult is the successful outcome of an authentication attempt.
type LoginResult struct {
	User         *domain.User
	AccessToken  string
	Capabilities domain.CapabilitySet
	// ChangeReason is set when the caller must be redirected to the
	// password change flow instead of receiving a token.
	ChangeReason string
}

// Password change reasons surfaced to the transport layer.
const (
	ChangeReasonForced  = "forced"
	ChangeReasonExpired = "expired"
)

// AuthService is the single gate for credential verification. Lock state is
// evaluated before the password so a locked account leaks nothing about the
// supplied secret.
type AuthService struct {
	users   port.UserRepository
	lockout *LockoutService
	audit   *AuditTrail
	issuer  *security.TokenIssuer
	log     *zap.Logger

	passwordExpiry time.Duration
	now            func() time.Time
}

// NewAuthService constructs an AuthService.
func NewAuthService(users port.UserRepository, lockout *LockoutService, audit *AuditTrail, issuer *security.TokenIssuer, passwordExpiry time.Duration, log *zap.Logger) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		users:          users,
		lockout:        lockout,
		audit:          audit,
		issuer:         issuer,
		log:            log,
		passwordExpiry: passwordExpiry,
		now:            time.Now,
	}
}

// WithClock overrides the time source for tests.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	if now != nil {
		s.now = now
	}
	return s
}

// Login authenticates an identifier/password pair.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	ip := optional(input.IP)

	user, err := s.users.GetByIdentifier(ctx, input.Identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, s.failUnknown(ctx, input, ip)
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	locked, err := s.lockout.EnsureUnlocked(ctx, user)
	if err != nil {
		return nil, err
	}
	if locked {
		s.recordAudit(ctx, domain.AuditSecurityViolation, user.Username,
			"login attempt on locked account", false, ip, nil)
		return nil, ErrAccountLocked
	}

	if !user.IsActive {
		s.recordAudit(ctx, domain.AuditAuthentication, user.Username,
			"login attempt on inactive account", false, ip, nil)
		return nil, ErrInvalidCredentials
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		tripped, lockErr := s.lockout.RecordFailure(ctx, user, ip)
		if lockErr != nil {
			return nil, lockErr
		}

		if tripped {
			s.recordAudit(ctx, domain.AuditSecurityViolation, user.Username,
				fmt.Sprintf("account locked after %d failed attempts", user.FailedAttempts), false, ip, nil)
			return nil, ErrAccountLocked
		}

		s.recordAudit(ctx, domain.AuditAuthentication, user.Username,
			"login failed: wrong password", false, ip, nil)
		return nil, ErrInvalidCredentials
	}

	if err := s.lockout.RecordSuccess(ctx, user); err != nil {
		return nil, err
	}

	caps := domain.CapabilitiesFor(user.Role)

	if reason := s.changeRequired(user); reason != "" {
		s.recordAudit(ctx, domain.AuditAuthentication, user.Username,
			"login succeeded, password change required ("+reason+")", true, ip, nil)
		return &LoginResult{User: user, Capabilities: caps, ChangeReason: reason}, ErrPasswordChangeRequired
	}

	uid, err := uuid.Parse(user.ID)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}

	token, err := s.issuer.Issue(uid, user.Username, string(user.Role), caps.List())
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	s.recordAudit(ctx, domain.AuditAuthentication, user.Username, "login succeeded", true, ip, nil)
	s.log.Info("user authenticated",
		zap.String("user_id", user.ID),
		zap.String("email", logger.MaskEmail(user.Email)),
	)

	return &LoginResult{User: user, AccessToken: token, Capabilities: caps}, nil
}

// failUnknown handles identifiers with no backing account. The counter in
// the attempt store mirrors the per-user counter, and a dummy hash
// verification keeps timing comparable. The caller always sees the same
// invalid-credentials error as for a wrong password.
func (s *AuthService) failUnknown(ctx context.Context, input LoginInput, ip *string) error {
	_, _ = security.VerifyPassword(input.Password, dummyVerifyHash)

	if _, err := s.lockout.RecordUnknownFailure(ctx, input.Identifier); err != nil {
		s.log.Debug("unknown identifier counter failed", zap.Error(err))
	}

	s.recordAudit(ctx, domain.AuditAuthentication, input.Identifier,
		"login failed: unknown identifier", false, ip, nil)

	return ErrInvalidCredentials
}

func (s *AuthService) changeRequired(user *domain.User) string {
	if user.ForcePasswordReset {
		return ChangeReasonForced
	}
	if s.passwordExpiry > 0 {
		// No recorded change means the initial password is still in use.
		if user.LastPasswordChange == nil {
			return ChangeReasonExpired
		}
		if s.now().Sub(*user.LastPasswordChange) >= s.passwordExpiry {
			return ChangeReasonExpired
		}
	}
	return ""
}

func (s *AuthService) recordAudit(ctx context.Context, category domain.AuditCategory, actor, detail string, success bool, ip, target *string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, domain.AuditEvent{
		Category:   category,
		Actor:      actor,
		Detail:     detail,
		Success:    success,
		OriginIP:   ip,
		TargetUser: target,
	})
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
