package security

import (
	"strings"
	"testing"
)

func TestDefaultPasswordValidatorAcceptsCompliantPassword(t *testing.T) {
	result := DefaultPasswordValidator().Validate("Sunflower#42")
	if !result.Valid {
		t.Fatalf("expected compliant password to pass, got violations: %v", result.Errors)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", result.Errors)
	}
}

func TestDefaultPasswordValidatorCollectsAllViolations(t *testing.T) {
	// Too short, no uppercase, no digit, no symbol.
	result := DefaultPasswordValidator().Validate("abc")
	if result.Valid {
		t.Fatal("expected validation failure")
	}
	if len(result.Errors) != 4 {
		t.Fatalf("expected 4 violations, got %d: %v", len(result.Errors), result.Errors)
	}
}

func TestDefaultPasswordValidatorRejectsWhitespace(t *testing.T) {
	result := DefaultPasswordValidator().Validate("Sunflower #42")
	if result.Valid {
		t.Fatal("expected whitespace password to fail")
	}
	found := false
	for _, msg := range result.Errors {
		if strings.Contains(msg, "whitespace") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a whitespace violation, got %v", result.Errors)
	}
}

func TestLengthRuleBounds(t *testing.T) {
	rule := LengthRule(8, 64)

	if err := rule.Validate(strings.Repeat("a", 8)); err != nil {
		t.Fatalf("8 characters should satisfy the rule: %v", err)
	}
	if err := rule.Validate(strings.Repeat("a", 64)); err != nil {
		t.Fatalf("64 characters should satisfy the rule: %v", err)
	}
	if err := rule.Validate(strings.Repeat("a", 7)); err == nil {
		t.Fatal("7 characters should violate the rule")
	}
	if err := rule.Validate(strings.Repeat("a", 65)); err == nil {
		t.Fatal("65 characters should violate the rule")
	}
}

func TestRequireStrengthRuleDisabledAtZero(t *testing.T) {
	rule := RequireStrengthRule(0)
	if err := rule.Validate("password"); err != nil {
		t.Fatalf("disabled strength rule should accept anything: %v", err)
	}
}

func TestRequireStrengthRuleRejectsDictionaryPassword(t *testing.T) {
	rule := RequireStrengthRule(3)
	if err := rule.Validate("password123"); err == nil {
		t.Fatal("expected dictionary password to be rejected at score 3")
	}
}

func TestIsPasswordInHistoryMatchesRetainedHash(t *testing.T) {
	old, err := HashPassword("OldSecret#1")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	other, err := HashPassword("OtherSecret#2")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}

	match, err := IsPasswordInHistory("OldSecret#1", []string{other, old})
	if err != nil {
		t.Fatalf("IsPasswordInHistory returned error: %v", err)
	}
	if !match {
		t.Fatal("expected candidate to match a retained hash")
	}

	match, err = IsPasswordInHistory("FreshSecret#3", []string{other, old})
	if err != nil {
		t.Fatalf("IsPasswordInHistory returned error: %v", err)
	}
	if match {
		t.Fatal("expected a fresh password not to match history")
	}
}

func TestPushHistoryFrontInsertAndTrim(t *testing.T) {
	history := []string{"h1", "h2", "h3"}

	updated := PushHistory("h4", history, 5)
	if len(updated) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(updated))
	}
	if updated[0] != "h4" || updated[1] != "h1" || updated[2] != "h2" || updated[3] != "h3" {
		t.Fatalf("unexpected ordering: %v", updated)
	}

	full := []string{"h5", "h4", "h3", "h2", "h1"}
	trimmed := PushHistory("h6", full, 5)
	if len(trimmed) != 5 {
		t.Fatalf("expected history capped at 5, got %d", len(trimmed))
	}
	if trimmed[0] != "h6" || trimmed[4] != "h2" {
		t.Fatalf("unexpected trim result: %v", trimmed)
	}
}
