package security

import (
	"fmt"
	"strings"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 64

	// symbolSet is the accepted punctuation set for the symbol rule.
	symbolSet = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
)

// PasswordValidationError represents a single password policy violation.
type PasswordValidationError struct {
	Code    string
	Message string
}

// Error implements error for PasswordValidationError.
func (e *PasswordValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// ValidationResult aggregates every violated rule for one candidate password.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// PasswordRule validates a password according to a specific policy rule.
type PasswordRule interface {
	Validate(password string) error
}

// PasswordRuleFunc adapts a function to be used as a PasswordRule.
type PasswordRuleFunc func(password string) error

// Validate executes the underlying rule function.
func (f PasswordRuleFunc) Validate(password string) error {
	return f(password)
}

// PasswordValidator applies a sequence of password rules. Unlike a
// fail-fast chain, Validate evaluates every rule and reports all
// violations together.
type PasswordValidator struct {
	rules []PasswordRule
}

// NewPasswordValidator constructs a validator with the provided rules.
func NewPasswordValidator(rules ...PasswordRule) *PasswordValidator {
	copied := make([]PasswordRule, len(rules))
	copy(copied, rules)
	return &PasswordValidator{rules: copied}
}

// Validate executes all rules and collects every violation.
func (v *PasswordValidator) Validate(password string) ValidationResult {
	result := ValidationResult{Valid: true}
	if v == nil {
		result.Valid = false
		result.Errors = append(result.Errors, "password validator not configured")
		return result
	}

	for _, rule := range v.rules {
		if err := rule.Validate(password); err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, err.Error())
		}
	}

	return result
}

// LengthRule ensures the password length falls within [min, max] runes.
func LengthRule(min, max int) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		n := len([]rune(password))
		if n < min || n > max {
			return &PasswordValidationError{
				Code:    "length",
				Message: fmt.Sprintf("password must be between %d and %d characters long", min, max),
			}
		}
		return nil
	})
}

// RequireUppercaseRule ensures at least one uppercase letter.
func RequireUppercaseRule() PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		for _, r := range password {
			if unicode.IsUpper(r) {
				return nil
			}
		}
		return &PasswordValidationError{
			Code:    "uppercase",
			Message: "password must include at least one uppercase letter",
		}
	})
}

// RequireLowercaseRule ensures at least one lowercase letter.
func RequireLowercaseRule() PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		for _, r := range password {
			if unicode.IsLower(r) {
				return nil
			}
		}
		return &PasswordValidationError{
			Code:    "lowercase",
			Message: "password must include at least one lowercase letter",
		}
	})
}

// RequireDigitRule ensures at least one digit.
func RequireDigitRule() PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		for _, r := range password {
			if unicode.IsDigit(r) {
				return nil
			}
		}
		return &PasswordValidationError{
			Code:    "digit",
			Message: "password must include at least one digit",
		}
	})
}

// RequireSymbolRule ensures at least one symbol from the accepted set.
func RequireSymbolRule() PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if strings.ContainsAny(password, symbolSet) {
			return nil
		}
		return &PasswordValidationError{
			Code:    "symbol",
			Message: "password must include at least one special character",
		}
	})
}

// NoWhitespaceRule rejects passwords containing whitespace.
func NoWhitespaceRule() PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		for _, r := range password {
			if unicode.IsSpace(r) {
				return &PasswordValidationError{
					Code:    "whitespace",
					Message: "password must not contain whitespace",
				}
			}
		}
		return nil
	})
}

// RequireStrengthRule enforces a minimum zxcvbn score to reject weak
// passwords. A minScore of zero disables the rule.
func RequireStrengthRule(minScore int, userInputs ...string) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if minScore <= 0 {
			return nil
		}
		if minScore > 4 {
			minScore = 4
		}

		result := zxcvbn.PasswordStrength(password, userInputs)
		if result.Score >= minScore {
			return nil
		}

		return &PasswordValidationError{
			Code:    "weak_password",
			Message: "password is too weak; choose a more complex value",
		}
	})
}

// DefaultPasswordValidator returns the built-in validator enforcing the
// hospital password policy.
func DefaultPasswordValidator() *PasswordValidator {
	return NewPasswordValidator(
		LengthRule(minPasswordLength, maxPasswordLength),
		RequireUppercaseRule(),
		RequireLowercaseRule(),
		RequireDigitRule(),
		RequireSymbolRule(),
		NoWhitespaceRule(),
	)
}

// NewPasswordValidatorWithStrength adds the zxcvbn strength rule on top of the
// default policy, seeding the estimator with known user inputs (e.g. the
// username and email).
func NewPasswordValidatorWithStrength(minScore int, userInputs ...string) *PasswordValidator {
	return NewPasswordValidator(
		LengthRule(minPasswordLength, maxPasswordLength),
		RequireUppercaseRule(),
		RequireLowercaseRule(),
		RequireDigitRule(),
		RequireSymbolRule(),
		NoWhitespaceRule(),
		RequireStrengthRule(minScore, userInputs...),
	)
}

// IsPasswordInHistory re-verifies the candidate against every retained hash
// and reports whether any matches. Hashes are salted, so this is a hash
// verification per entry, never a string comparison. An empty history means
// no prior passwords.
func IsPasswordInHistory(candidate string, hashes []string) (bool, error) {
	for _, h := range hashes {
		match, err := VerifyPassword(candidate, h)
		if err != nil {
			return false, fmt.Errorf("compare history entry: %w", err)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}

// PushHistory inserts the new hash at the front and truncates to limit
// entries, returning the updated slice.
func PushHistory(newHash string, history []string, limit int) []string {
	updated := make([]string, 0, len(history)+1)
	updated = append(updated, newHash)
	updated = append(updated, history...)
	if limit > 0 && len(updated) > limit {
		updated = updated[:limit]
	}
	return updated
}
