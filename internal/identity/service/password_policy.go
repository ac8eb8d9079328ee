package service

import (
	"fmt"
	"unicode"
)

// maxPasswordLength bounds hashing cost for hostile input.
const maxPasswordLength = 128

// PasswordPolicy is the minimum complexity required by UpdatePassword.
type PasswordPolicy struct {
	MinLength int
}

// Validate returns an error wrapping ErrWeakPassword describing the first unmet rule.
func (p PasswordPolicy) Validate(password string) error {
	minLen := p.MinLength
	if minLen <= 0 {
		minLen = 8
	}
	n := len([]rune(password))
	if n < minLen {
		return fmt.Errorf("%w: must be at least %d characters", ErrWeakPassword, minLen)
	}
	if n > maxPasswordLength {
		return fmt.Errorf("%w: must be at most %d characters", ErrWeakPassword, maxPasswordLength)
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter {
		return fmt.Errorf("%w: must contain a letter", ErrWeakPassword)
	}
	if !hasDigit {
		return fmt.Errorf("%w: must contain a digit", ErrWeakPassword)
	}
	return nil
}
