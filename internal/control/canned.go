package control

import (
	"strings"
	"unicode"

	"github.com/vietddude/llmrelay/internal/core/config"
)

const defaultCannedReply = "I can't reach the language model right now. " +
	"Your request was received; please check that the inference service is running and try again."

var defaultCannedRules = []config.CannedRule{
	{
		Keywords: []string{"hello", "hi", "hey"},
		Reply:    "Hello! The language model is unreachable at the moment, so this is a stand-in reply. Please try again shortly.",
	},
	{
		Keywords: []string{"help", "how do i", "how to"},
		Reply:    "I'd normally ask the model for this, but it's unreachable right now. Please verify the inference service is running and retry.",
	},
	{
		Keywords: []string{"status", "are you there", "are you up"},
		Reply:    "The relay is up, but the language model behind it is not responding. Reconnection is being attempted automatically.",
	},
}

// CannedResponder produces stand-in replies when the model cannot be
// reached. Rules are matched in order against the lowercased prompt;
// configured rules take precedence over the built-in ones.
type CannedResponder struct {
	rules []config.CannedRule
}

// NewCannedResponder builds a responder from configured rules plus the
// built-in defaults.
func NewCannedResponder(rules []config.CannedRule) *CannedResponder {
	combined := make([]config.CannedRule, 0, len(rules)+len(defaultCannedRules))
	combined = append(combined, rules...)
	combined = append(combined, defaultCannedRules...)
	return &CannedResponder{rules: combined}
}

// Reply returns the stand-in response for a prompt.
func (r *CannedResponder) Reply(prompt string) string {
	p := strings.ToLower(prompt)
	words := promptWords(p)
	for _, rule := range r.rules {
		for _, kw := range rule.Keywords {
			if keywordMatches(p, words, strings.ToLower(kw)) {
				return rule.Reply
			}
		}
	}
	return defaultCannedReply
}

// keywordMatches does substring matching for phrases and whole-word
// matching for single keywords, so "hi" does not match "this".
func keywordMatches(prompt string, words map[string]bool, kw string) bool {
	if strings.ContainsRune(kw, ' ') {
		return strings.Contains(prompt, kw)
	}
	return words[kw]
}

func promptWords(prompt string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(prompt, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		words[w] = true
	}
	return words
}
