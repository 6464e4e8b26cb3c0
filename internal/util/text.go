package util

import (
	"regexp"
	"strings"
)

var (
	reSpaces  = regexp.MustCompile(`\s+`)
	reAlnum   = regexp.MustCompile(`[^a-z0-9]`)
	reLetters = regexp.MustCompile(`[A-Za-z]`)
)

func NormalizeSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

// NormalizeCode uppercases an item number and keeps only code characters.
func NormalizeCode(input string) string {
	s := strings.ToUpper(strings.TrimSpace(input))
	out := strings.Builder{}
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '/' || r == '.' {
			out.WriteRune(r)
		}
	}
	return out.String()
}

// NormalizeKey folds a header or sheet name to lowercase alphanumerics.
func NormalizeKey(input string) string {
	return reAlnum.ReplaceAllString(strings.ToLower(input), "")
}

// ContainsFold reports whether needle occurs in haystack ignoring case.
// An empty needle never matches.
func ContainsFold(haystack, needle string) bool {
	if needle == "" || haystack == "" {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func LooksLikeCode(input string) bool {
	trimmed := strings.TrimSpace(input)
	if len(trimmed) < 3 || strings.Contains(trimmed, " ") {
		return false
	}
	hasLetter := false
	hasDigit := false
	for _, r := range trimmed {
		if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') {
			hasLetter = true
		}
		if r >= '0' && r <= '9' {
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}

func HasLetters(input string) bool {
	return reLetters.MatchString(input)
}

// SplitList splits a comma or semicolon separated cell into trimmed, non-empty parts.
// It returns nil for blank input.
func SplitList(input string) []string {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	parts := strings.FieldsFunc(input, func(r rune) bool { return r == ',' || r == ';' })
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
