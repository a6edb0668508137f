package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nycmed/hospital-records/internal/core/domain"
	"github.com/nycmed/hospital-records/internal/infra/security"
)

type resetFixture struct {
	users    *fakeUserRepo
	tokens   *fakeTokenRepo
	events   *fakeEventPublisher
	notifier *fakeNotifier
	svc      *PasswordResetService
}

func newResetFixture(t *testing.T, users ...domain.User) *resetFixture {
	t.Helper()

	repo := newFakeUserRepo(users...)
	tokens := newFakeTokenRepo()
	events := &fakeEventPublisher{}
	notifier := &fakeNotifier{}
	audit := NewAuditTrail(nil, DefaultRecentEventCap, zap.NewNop())
	passwords := NewPasswordService(repo, security.DefaultPasswordValidator(), events, audit, nil, domain.PasswordHistoryLimit, zap.NewNop())

	return &resetFixture{
		users:    repo,
		tokens:   tokens,
		events:   events,
		notifier: notifier,
		svc:      NewPasswordResetService(repo, tokens, passwords, events, notifier, audit, 24*time.Hour, zap.NewNop()),
	}
}

func (fx *resetFixture) seedToken(userID string, issued time.Time) (raw string, id string) {
	raw = "seeded-reset-token"
	id = uuid.NewString()
	_ = fx.tokens.CreatePasswordReset(context.Background(), domain.PasswordResetToken{
		ID:        id,
		UserID:    userID,
		TokenHash: security.HashToken(raw),
		CreatedAt: issued,
		ExpiresAt: issued.Add(24 * time.Hour),
	})
	return raw, id
}

func TestResetRequestUnknownIdentifierIsSilent(t *testing.T) {
	fx := newResetFixture(t)

	if err := fx.svc.Request(context.Background(), PasswordResetRequestInput{Identifier: "ghost"}); err != nil {
		t.Fatalf("unknown identifier must not error: %v", err)
	}
	if len(fx.tokens.tokens) != 0 {
		t.Fatal("no token may be issued for an unknown identifier")
	}
	if _, ok := fx.notifier.last(); ok {
		t.Fatal("no notification may be sent for an unknown identifier")
	}
}

func TestResetRequestIssuesAndSupersedes(t *testing.T) {
	user := testUser(t, "OldSecret#1")
	fx := newResetFixture(t, user)
	ctx := context.Background()

	if err := fx.svc.Request(ctx, PasswordResetRequestInput{Identifier: "drsmith"}); err != nil {
		t.Fatalf("first Request returned error: %v", err)
	}
	if err := fx.svc.Request(ctx, PasswordResetRequestInput{Identifier: "drsmith"}); err != nil {
		t.Fatalf("second Request returned error: %v", err)
	}

	usable := 0
	for _, token := range fx.tokens.tokens {
		if token.UsedAt == nil && token.RevokedAt == nil {
			usable++
		}
	}
	if usable != 1 {
		t.Fatalf("expected exactly one usable token after supersession, got %d", usable)
	}
	if len(fx.events.requests) != 2 {
		t.Fatalf("expected two reset requested events, got %d", len(fx.events.requests))
	}
	if len(fx.notifier.messages) != 2 {
		t.Fatalf("expected two notifications, got %d", len(fx.notifier.messages))
	}
}

func TestResetRequestSwallowsDeliveryFailure(t *testing.T) {
	user := testUser(t, "OldSecret#1")
	fx := newResetFixture(t, user)
	fx.notifier.err = errors.New("smtp down")

	if err := fx.svc.Request(context.Background(), PasswordResetRequestInput{Identifier: "drsmith"}); err != nil {
		t.Fatalf("delivery failure must not surface: %v", err)
	}
}

func TestResetConfirmHappyPath(t *testing.T) {
	user := testUser(t, "OldSecret#1")
	fx := newResetFixture(t, user)
	raw, id := fx.seedToken(user.ID, time.Now().UTC())

	err := fx.svc.Confirm(context.Background(), PasswordResetConfirmInput{
		Token:       raw,
		NewPassword: "NewSecret#2",
	})
	if err != nil {
		t.Fatalf("Confirm returned error: %v", err)
	}

	stored := fx.users.get(user.ID)
	if ok, _ := security.VerifyPassword("NewSecret#2", stored.PasswordHash); !ok {
		t.Fatal("new password does not verify")
	}
	if fx.tokens.tokens[id].UsedAt == nil {
		t.Fatal("token must be consumed after a successful reset")
	}

	// Second redemption fails.
	err = fx.svc.Confirm(context.Background(), PasswordResetConfirmInput{Token: raw, NewPassword: "Third#Secret3"})
	if !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expected ErrResetTokenInvalid on reuse, got %v", err)
	}
}

func TestResetConfirmUnknownToken(t *testing.T) {
	fx := newResetFixture(t)

	err := fx.svc.Confirm(context.Background(), PasswordResetConfirmInput{Token: "bogus", NewPassword: "NewSecret#2"})
	if !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expected ErrResetTokenInvalid, got %v", err)
	}
}

func TestResetConfirmExpiredToken(t *testing.T) {
	user := testUser(t, "OldSecret#1")
	fx := newResetFixture(t, user)
	raw, _ := fx.seedToken(user.ID, time.Now().UTC().Add(-25*time.Hour))

	err := fx.svc.Confirm(context.Background(), PasswordResetConfirmInput{Token: raw, NewPassword: "NewSecret#2"})
	if !errors.Is(err, ErrResetTokenExpired) {
		t.Fatalf("expected ErrResetTokenExpired, got %v", err)
	}
}

func TestResetConfirmPolicyFailureLeavesTokenUsable(t *testing.T) {
	user := testUser(t, "OldSecret#1")
	fx := newResetFixture(t, user)
	raw, id := fx.seedToken(user.ID, time.Now().UTC())
	ctx := context.Background()

	err := fx.svc.Confirm(ctx, PasswordResetConfirmInput{Token: raw, NewPassword: "weak"})
	var policyErr *PolicyViolationError
	if !errors.As(err, &policyErr) {
		t.Fatalf("expected PolicyViolationError, got %v", err)
	}
	if fx.tokens.tokens[id].UsedAt != nil {
		t.Fatal("token must stay usable after a policy rejection")
	}

	if err := fx.svc.Confirm(ctx, PasswordResetConfirmInput{Token: raw, NewPassword: "NewSecret#2"}); err != nil {
		t.Fatalf("retry with valid password failed: %v", err)
	}
}
