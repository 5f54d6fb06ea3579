package gen

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxUtteranceLen = 500

// secretPatterns match credential-shaped substrings that must never reach
// observers, whatever the service returns.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bearer\s+[a-z0-9._\-]{8,}`),
	regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password)\s*[:=]\s*\S+`),
	regexp.MustCompile(`sk-[A-Za-z0-9]{16,}`),
	regexp.MustCompile(`(?i)-----BEGIN [A-Z ]*PRIVATE KEY-----`),
}

// injectionPhrases in a response mean the model was steered off its prompt;
// the whole utterance is rejected rather than patched.
var injectionPhrases = []string{
	"ignore previous instructions",
	"ignore all previous instructions",
	"disregard your instructions",
	"you are now",
	"system prompt",
	"act as an administrator",
}

// Sanitize redacts credential-shaped substrings, rejects prompt-injection
// phrasing outright, and trims the utterance to a broadcastable length.
// ok is false when the text is unusable and a placeholder should be used.
func Sanitize(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" || !utf8.ValidString(text) {
		return "", false
	}

	lower := strings.ToLower(text)
	for _, phrase := range injectionPhrases {
		if strings.Contains(lower, phrase) {
			return "", false
		}
	}

	for _, re := range secretPatterns {
		text = re.ReplaceAllString(text, "[redacted]")
	}

	// Strip control characters; keep newlines as spaces.
	text = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return ' '
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, text)
	text = strings.Join(strings.Fields(text), " ")

	if len(text) > maxUtteranceLen {
		// Back up to a rune start so the cut never splits a multibyte
		// character, then prefer the last word boundary.
		n := maxUtteranceLen
		for n > 0 && !utf8.RuneStart(text[n]) {
			n--
		}
		cut := text[:n]
		if i := strings.LastIndex(cut, " "); i > maxUtteranceLen/2 {
			cut = cut[:i]
		}
		text = cut
	}
	if text == "" {
		return "", false
	}
	return text, true
}
