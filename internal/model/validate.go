package model

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxDriverNameLen is the longest driver name accepted, in runes.
const MaxDriverNameLen = 50

// ErrInvalid is wrapped by every validation failure in this package.
var ErrInvalid = errors.New("invalid input")

// NormalizeDriverName trims the name and checks its length.
func NormalizeDriverName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: driver name is required", ErrInvalid)
	}
	if utf8.RuneCountInString(name) > MaxDriverNameLen {
		return "", fmt.Errorf("%w: driver name must be at most %d characters", ErrInvalid, MaxDriverNameLen)
	}
	return name, nil
}

// ParseMode matches s case-insensitively against the mode enum.
func ParseMode(s string) (string, error) {
	m := strings.ToLower(strings.TrimSpace(s))
	if !IsMode(m) {
		return "", fmt.Errorf("%w: unknown race mode %q, must be one of %v", ErrInvalid, s, Modes)
	}
	return m, nil
}

// ValidateCarNumber checks that n is within [1, MaxDrivers].
func ValidateCarNumber(n int) error {
	if n < 1 || n > MaxDrivers {
		return fmt.Errorf("%w: car number must be between 1 and %d", ErrInvalid, MaxDrivers)
	}
	return nil
}

// ValidateDriverCount checks a session's driver list against MaxDrivers.
func ValidateDriverCount(n int) error {
	if n > MaxDrivers {
		return fmt.Errorf("%w: maximum %d drivers allowed", ErrInvalid, MaxDrivers)
	}
	return nil
}

// ValidateTimestamp checks a lap timestamp in Unix milliseconds.
func ValidateTimestamp(ts int64) error {
	if ts < 0 {
		return fmt.Errorf("%w: timestamp must not be negative", ErrInvalid)
	}
	return nil
}
