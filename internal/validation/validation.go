// Package validation implements the composable predicate chain (C2) that
// feeds the railway-style Outcome pipelines elsewhere in authcore. It
// replaces the teacher's scattered inline "if x == '' { return errors.New"
// checks with a declarative rule list so registration and login share one
// reporting shape.
package validation

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode"

	"github.com/traderguard/authcore/internal/apperr"
)

// Rule checks one condition over a value of type T, returning a human
// readable violation message on failure.
type Rule[T any] struct {
	Name  string
	Check func(T) bool
	Msg   string
}

// Chain runs rules in order and returns the first violation, or nil if every
// rule passed. This is the "first-failure" railway behaviour spec.md asks for.
func Chain[T any](value T, rules ...Rule[T]) *apperr.Error {
	for _, r := range rules {
		if !r.Check(value) {
			return apperr.New(apperr.KindValidation, fmt.Sprintf("%s: %s", r.Name, r.Msg))
		}
	}
	return nil
}

// NonEmpty rejects the empty string after trimming.
func NonEmpty(field string) Rule[string] {
	return Rule[string]{
		Name:  field,
		Check: func(s string) bool { return strings.TrimSpace(s) != "" },
		Msg:   "must not be empty",
	}
}

// MinLength rejects strings shorter than n runes.
func MinLength(field string, n int) Rule[string] {
	return Rule[string]{
		Name:  field,
		Check: func(s string) bool { return len([]rune(s)) >= n },
		Msg:   fmt.Sprintf("must be at least %d characters", n),
	}
}

// ValidEmail rejects strings that do not parse as an RFC 5322 address.
func ValidEmail(field string) Rule[string] {
	return Rule[string]{
		Name: field,
		Check: func(s string) bool {
			_, err := mail.ParseAddress(s)
			return err == nil
		},
		Msg: "must be a valid email address",
	}
}

// PasswordPolicy enforces the platform's minimum password strength: at
// least 8 characters, one digit, one upper-case and one lower-case letter.
// This is a deliberately modest policy — spec.md's Non-goals explicitly
// exclude password-strength UI guidance, so the rule only gates acceptance.
func PasswordPolicy(field string) Rule[string] {
	return Rule[string]{
		Name: field,
		Check: func(s string) bool {
			if len([]rune(s)) < 8 {
				return false
			}
			var hasDigit, hasUpper, hasLower bool
			for _, r := range s {
				switch {
				case unicode.IsDigit(r):
					hasDigit = true
				case unicode.IsUpper(r):
					hasUpper = true
				case unicode.IsLower(r):
					hasLower = true
				}
			}
			return hasDigit && hasUpper && hasLower
		},
		Msg: "must be at least 8 characters with upper, lower, and digit",
	}
}

// CanonicalEmail lowercases and trims an email for uniqueness comparisons,
// matching spec.md §3's "email is unique case-insensitively" invariant.
func CanonicalEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
