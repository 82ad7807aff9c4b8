// Package tokens turns free-form transaction descriptions into the
// normalized token sets that categorization rules are keyed on.
package tokens

import (
	"strings"
	"unicode"

	"github.com/Veraticus/cumin/internal/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// DefaultMinTokenLength is the shortest token kept by default.
const DefaultMinTokenLength = 2

// Sanitizer extracts meaningful tokens from descriptions.
// It is immutable after construction and safe for concurrent use.
type Sanitizer struct {
	stopwords map[string]struct{}
	minLength int
}

// NewSanitizer creates a sanitizer with the given stopwords and minimum
// token length. A nil stopword list selects DefaultStopwords.
func NewSanitizer(stopwords []string, minLength int) *Sanitizer {
	if stopwords == nil {
		stopwords = DefaultStopwords()
	}
	if minLength < 1 {
		minLength = DefaultMinTokenLength
	}

	lower := cases.Lower(language.Und)
	set := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		set[norm.NFC.String(lower.String(strings.TrimSpace(w)))] = struct{}{}
	}

	return &Sanitizer{stopwords: set, minLength: minLength}
}

// Sanitize lowercases and NFC-normalizes the description, splits it on
// non-alphanumeric boundaries and drops stopwords and short tokens.
// Combining marks belong to the word they follow, so composed and
// decomposed spellings of a description yield the same set.
//
//	"Sole y Gian f*HANDY*" -> {gian, sole}
//	"PAYPAL *NAMECHEAP"    -> {namecheap}
//
// A description made only of stopwords yields the empty set.
func (s *Sanitizer) Sanitize(description string) model.TokenSet {
	// cases.Caser keeps state, so each call gets its own.
	lowered := norm.NFC.String(cases.Lower(language.Und).String(description))

	fields := strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsMark(r)
	})

	kept := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < s.minLength {
			continue
		}
		if s.IsStopword(f) {
			continue
		}
		kept = append(kept, f)
	}

	return model.NewTokenSet(kept...)
}

// IsStopword reports whether token is filtered out regardless of length.
func (s *Sanitizer) IsStopword(token string) bool {
	_, ok := s.stopwords[token]
	return ok
}

// Text renders a token set back into a description. Sanitizing the result
// yields the same set.
func (s *Sanitizer) Text(ts model.TokenSet) string {
	return ts.String()
}
