package utils

import (
	"errors"
	"regexp"
)

const (
	MinPhoneDigits = 10
	MaxPhoneDigits = 15
)

var (
	// Regex to remove non-digit characters
	digitsOnlyRegex = regexp.MustCompile(`[^0-9]`)

	ErrEmptyPhone  = errors.New("phone number cannot be empty")
	ErrPhoneLength = errors.New("phone number must have 10 to 15 digits")
)

// DigitsOnly strips every non-digit character (spaces, dashes, parentheses, +)
func DigitsOnly(phone string) string {
	return digitsOnlyRegex.ReplaceAllString(phone, "")
}

// NormalizePhoneNumber reduces a destination identifier to its digits and
// checks it has an international length
func NormalizePhoneNumber(phone string) (string, error) {
	if phone == "" {
		return "", ErrEmptyPhone
	}

	normalized := DigitsOnly(phone)
	if !ValidPhoneLength(normalized) {
		return "", ErrPhoneLength
	}

	return normalized, nil
}

// ValidPhoneLength reports whether digits has 10 to 15 characters
func ValidPhoneLength(digits string) bool {
	return len(digits) >= MinPhoneDigits && len(digits) <= MaxPhoneDigits
}

// MaskPhoneNumber keeps the last four digits for logs
// Example: "5511999999999" -> "*********9999"
func MaskPhoneNumber(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	masked := make([]byte, len(phone))
	for i := range masked {
		if i < len(phone)-4 {
			masked[i] = '*'
		} else {
			masked[i] = phone[i]
		}
	}
	return string(masked)
}
