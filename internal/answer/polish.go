package answer

import (
	"strings"

	"github.com/hyperjump/kotae/pkg/utils"
)

// docTypePhrases mark a question as asking what kind of document this is.
var docTypePhrases = []string{
	"kind of document",
	"type of document",
	"what is this document",
}

// Polish normalizes a raw model answer for presentation. It collapses
// whitespace runs, and trims the answer to at most two sentences, each
// terminated with a period. Document-type questions get a fixed shape:
// two fragments become "X. Y.", a lone fragment is fronted with
// "This appears to be".
func Polish(raw, question string) string {
	answer := utils.CollapseWhitespace(raw)
	if answer == "" {
		return ""
	}

	frags := splitSentences(answer)
	if len(frags) == 0 {
		return ""
	}

	if isDocTypeQuestion(question) {
		if len(frags) == 1 {
			frag := frags[0]
			if hasDocTypeLead(frag) {
				return frag + "."
			}
			return "This appears to be " + lowerFirst(frag) + "."
		}
		return frags[0] + ". " + frags[1] + "."
	}

	if len(frags) == 1 {
		return frags[0] + "."
	}
	return frags[0] + ". " + frags[1] + "."
}

func isDocTypeQuestion(question string) bool {
	q := strings.ToLower(question)
	for _, phrase := range docTypePhrases {
		if strings.Contains(q, phrase) {
			return true
		}
	}
	return false
}

// hasDocTypeLead reports whether the fragment already reads as a full
// "this is a ..." style statement, so no lead-in should be synthesized.
func hasDocTypeLead(frag string) bool {
	f := strings.ToLower(frag)
	return strings.HasPrefix(f, "this ") || strings.HasPrefix(f, "the document") ||
		strings.HasPrefix(f, "it ") || strings.HasPrefix(f, "it's ")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	// Only fold a leading ASCII capital; leave acronyms like "PDF" alone.
	if s[0] >= 'A' && s[0] <= 'Z' {
		if len(s) > 1 && s[1] >= 'A' && s[1] <= 'Z' {
			return s
		}
		return string(s[0]+'a'-'A') + s[1:]
	}
	return s
}

// splitSentences cuts the text on sentence-ending punctuation and returns
// the trimmed non-empty fragments, terminators stripped.
func splitSentences(text string) []string {
	var frags []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			// A period between digits is a decimal point, not a boundary.
			if r == '.' && i > 0 && i+1 < len(text) && isDigit(text[i-1]) && isDigit(text[i+1]) {
				continue
			}
			frag := strings.TrimSpace(text[start:i])
			if frag != "" {
				frags = append(frags, frag)
			}
			start = i + 1
		}
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" {
		frags = append(frags, tail)
	}
	return frags
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
