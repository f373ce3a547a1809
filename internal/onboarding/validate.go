package onboarding

import (
	"strings"
	"unicode/utf8"
)

const (
	maxCompanyNameLen = 128
	minUsernameLen    = 3
	maxUsernameLen    = 32
	minPasswordLen    = 8
)

// ValidateCompanyName checks a proposed company name and returns the
// trimmed value. An empty reason means the name is acceptable.
func ValidateCompanyName(input string) (string, string) {
	name := strings.TrimSpace(input)
	if name == "" {
		return "", "Company name cannot be empty. Please enter your coffee shop's name."
	}
	if utf8.RuneCountInString(name) > maxCompanyNameLen {
		return "", "That name is too long. Please keep it under 128 characters."
	}
	return name, ""
}

// ValidateUsername checks a proposed login username.
func ValidateUsername(input string) (string, string) {
	username := strings.TrimSpace(input)
	if username == "" || username != input {
		return "", "Usernames cannot start or end with spaces. Please choose another."
	}
	n := utf8.RuneCountInString(username)
	if n < minUsernameLen || n > maxUsernameLen {
		return "", "Usernames must be between 3 and 32 characters. Please choose another."
	}
	if strings.ContainsAny(username, "\n\r\t ") {
		return "", "Usernames cannot contain spaces. Please choose another."
	}
	return username, ""
}

// ValidatePassword checks a proposed password. The raw input is kept as-is
// so passwords may contain spaces.
func ValidatePassword(input string) (string, string) {
	if utf8.RuneCountInString(input) < minPasswordLen {
		return "", "Passwords must be at least 8 characters long. Please choose another."
	}
	return input, ""
}

// NormalizeInviteCode lowercases and trims an entered invite code.
// Codes are minted lowercase; this forgives sloppy typing and mobile
// keyboards that capitalize the first letter.
func NormalizeInviteCode(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}
