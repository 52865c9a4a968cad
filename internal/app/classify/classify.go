// Package classify guesses whether a piece of text is source code.
//
// It is an admission filter used before spending a call on the
// generative-language endpoint, not a parser: false negatives are possible.
package classify

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MinLength is the shortest trimmed input (in characters) worth classifying.
const MinLength = 10

var syntaxTokens = []string{
	"{", "}", "()", "[]", ";", "=>", "->",
	"===", "!==", "==", "!=", "+=", "-=", "*=", "/=",
}

var keywords = []string{
	"function", "class", "return", "const", "let", "var",
	"if", "else", "for", "while", "import", "export",
	"def", "public", "private", "static", "void",
}

var markupTokens = []string{
	"<div", "<span", "<p", "<html", "<body",
	"</div", "</span", "</", "<!",
}

var (
	indentation = regexp.MustCompile(`\n\s{2,}|\n\t`)
	comments    = regexp.MustCompile(`//|/\*|\*/|#\s`)
)

// IsLikelyCode reports whether text looks like code. Inputs shorter than
// MinLength trimmed characters are never code.
func IsLikelyCode(text string) bool {
	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) < MinLength {
		return false
	}

	return containsAny(trimmed, syntaxTokens) ||
		containsAny(trimmed, keywords) ||
		containsAny(trimmed, markupTokens) ||
		indentation.MatchString(trimmed) ||
		comments.MatchString(trimmed)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
