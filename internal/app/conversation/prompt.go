package conversation

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// PlaceholderTitle is used until (or instead of) a generated title.
	PlaceholderTitle = "Code Analysis"

	// NotCodeMessage is shown when the input is rejected before any request.
	NotCodeMessage = "The selected text doesn't appear to be code. Select a code snippet and try again."

	maxTitleInput = 500
	maxTitle      = 50
)

const explainInstructions = `Explain what the following code does in simple terms.
Make sure to:
- Break it down step by step
- Use bullet points where needed
- Format code snippets using backticks
- Keep it concise but thorough
Do not explain extremely obvious things and try to keep it short and sweet.
For bold headings wrap the heading in two asterisks (**Heading**).

Here is the code (if this is not code, say that it is not code):
`

const titleInstructions = `Write a short title (at most 6 words) for the following code.
Reply with the title only, without quotes or trailing punctuation.

`

const followUpInstruction = "\n\n(Only answer if this question is about the code discussed above. If it is unrelated to that code, reply that you can only answer questions about this code.)"

var (
	followUpSuffix = regexp.MustCompile(regexp.QuoteMeta(followUpInstruction) + `\s*$`)

	notCodePhrases = []string{"not code", "isn't code", "doesn't appear to be code"}
)

// ExplainPrompt is the single user message sent to request an explanation.
func ExplainPrompt(snippet string) string {
	return explainInstructions + snippet
}

// TitlePrompt asks for a title using at most the first 500 characters of the
// snippet.
func TitlePrompt(snippet string) string {
	return titleInstructions + firstRunes(snippet, maxTitleInput)
}

// WithFollowUpInstruction appends the instruction that keeps the model on
// the original code.
func WithFollowUpInstruction(question string) string {
	return question + followUpInstruction
}

// StripFollowUpInstruction returns the text the user actually typed.
func StripFollowUpInstruction(text string) string {
	return followUpSuffix.ReplaceAllString(text, "")
}

func isNotCodeReply(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range notCodePhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// cleanTitle keeps the first non-empty line of a model reply, without
// surrounding quotes or markdown emphasis, capped at 50 characters.
func cleanTitle(reply string) string {
	for line := range strings.Lines(reply) {
		line = strings.Trim(strings.TrimSpace(line), "\"'`*# ")
		if line != "" {
			return strings.TrimSpace(firstRunes(line, maxTitle))
		}
	}
	return ""
}

func firstRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
