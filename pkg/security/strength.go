// Package security rates store passwords.
package security

import "unicode/utf8"

// MinPasswordLength is the shortest password not rated Weak.
const MinPasswordLength = 8

// Strength is the rating of a password.
type Strength int

const (
	// Weak passwords are shorter than MinPasswordLength.
	Weak Strength = iota
	Fair
	Good
	Strong
)

func (s Strength) String() string {
	switch s {
	case Weak:
		return "Weak"
	case Fair:
		return "Fair"
	case Good:
		return "Good"
	case Strong:
		return "Strong"
	default:
		return "Unknown"
	}
}

// PasswordStrength rates a user-chosen password by length in characters.
// Composition is not scored (NIST SP 800-63B).
func PasswordStrength(password string) Strength {
	switch n := utf8.RuneCountInString(password); {
	case n >= 20:
		return Strong
	case n >= 14:
		return Good
	case n >= MinPasswordLength:
		return Fair
	default:
		return Weak
	}
}
