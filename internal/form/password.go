package form

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MinPasswordLength is the shortest password accepted.
	MinPasswordLength = 8
	maxSimilarity     = 0.7
)

//go:embed common_passwords.txt
var commonPasswordsList string

var commonPasswords = func() map[string]struct{} {
	set := make(map[string]struct{})
	for _, line := range strings.Split(commonPasswordsList, "\n") {
		if p := strings.TrimSpace(line); p != "" && !strings.HasPrefix(p, "#") {
			set[strings.ToLower(p)] = struct{}{}
		}
	}
	return set
}()

var nonWord = regexp.MustCompile(`\W+`)

// ValidatePassword runs the password policy and returns every problem found,
// or nil if the password is acceptable. username may be empty.
func ValidatePassword(password, username string) []string {
	var problems []string
	if tooSimilar(password, username) {
		problems = append(problems, "The password is too similar to the username.")
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		problems = append(problems, fmt.Sprintf("This password is too short. It must contain at least %d characters.", MinPasswordLength))
	}
	if _, ok := commonPasswords[strings.ToLower(strings.TrimSpace(password))]; ok {
		problems = append(problems, "This password is too common.")
	}
	if isNumeric(password) {
		problems = append(problems, "This password is entirely numeric.")
	}
	return problems
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// tooSimilar compares the password with the username and with each word of
// it, using the character-overlap ratio 2*M/T where M counts characters the
// two strings share (as multisets) and T is their combined length.
func tooSimilar(password, username string) bool {
	if username == "" || password == "" {
		return false
	}
	pw := strings.ToLower(password)
	value := strings.ToLower(username)
	parts := append([]string{value}, nonWord.Split(value, -1)...)
	for _, part := range parts {
		if part == "" || exceedsLengthRatio(pw, part) {
			continue
		}
		if overlapRatio(pw, part) >= maxSimilarity {
			return true
		}
	}
	return false
}

// exceedsLengthRatio skips comparisons where the password is so much longer
// than the value that a high ratio is impossible.
func exceedsLengthRatio(password, value string) bool {
	pwLen := float64(utf8.RuneCountInString(password))
	valueLen := float64(utf8.RuneCountInString(value))
	bound := maxSimilarity / 2 * pwLen
	return pwLen >= 10*valueLen && valueLen < bound
}

func overlapRatio(a, b string) float64 {
	counts := make(map[rune]int)
	for _, r := range b {
		counts[r]++
	}
	matches := 0
	for _, r := range a {
		if counts[r] > 0 {
			counts[r]--
			matches++
		}
	}
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 1
	}
	return 2 * float64(matches) / float64(total)
}
