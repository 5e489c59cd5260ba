// Package sanitizer cleans free-text notices before they are pushed to
// browser subscribers.
package sanitizer

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// DefaultMaxLength bounds a notice message in runes.
const DefaultMaxLength = 500

var whitespaceRun = regexp.MustCompile(`\s+`)

// TextSanitizer strips all markup from a message and collapses whitespace.
type TextSanitizer struct {
	policy    *bluemonday.Policy
	maxLength int
}

// NewTextSanitizer creates a TextSanitizer. maxLength <= 0 uses DefaultMaxLength.
func NewTextSanitizer(maxLength int) *TextSanitizer {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &TextSanitizer{
		policy:    bluemonday.StrictPolicy(),
		maxLength: maxLength,
	}
}

// Clean returns message as plain text: tags removed, whitespace collapsed,
// truncated to the configured length.
func (s *TextSanitizer) Clean(message string) string {
	if message == "" {
		return ""
	}

	// StrictPolicy escapes what it keeps. Unescape for display unless that
	// would bring markup back.
	sanitized := s.policy.Sanitize(message)
	text := html.UnescapeString(sanitized)
	if strings.ContainsAny(text, "<>") {
		text = sanitized
	}
	text = strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))

	if utf8.RuneCountInString(text) > s.maxLength {
		runes := []rune(text)
		text = strings.TrimSpace(string(runes[:s.maxLength]))
	}
	return text
}
