// Package textnorm canonicalizes transcript text for comparison.
package textnorm

import (
	"strings"
	"unicode"
)

// fillerTokens are discarded during normalization. Closed set: transcribers
// emit these for hesitation noises and they carry no routing information.
var fillerTokens = map[string]bool{
	"um": true,
	"uh": true,
	"er": true,
}

// digitWords maps each decimal digit to its spelled form. Digits are spelled
// out one at a time ("25" becomes "two five") so DTMF prompts and spoken
// numbers normalize identically.
var digitWords = [10]string{
	"zero", "one", "two", "three", "four",
	"five", "six", "seven", "eight", "nine",
}

// Normalize lowercases text, strips punctuation and filler tokens, spells
// out digits, and collapses whitespace runs to a single space. It is
// deterministic and idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		default:
			// Punctuation splits tokens rather than joining them:
			// "9-5" must not collapse to "95".
			b.WriteByte(' ')
		}
	}

	fields := strings.Fields(b.String())
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if fillerTokens[f] {
			continue
		}
		out = append(out, spellDigits(f)...)
	}
	return strings.Join(out, " ")
}

// spellDigits expands any digits inside a token into spelled words. A token
// with no digits is returned as-is; "1" becomes ["one"], "b2" becomes
// ["b", "two"].
func spellDigits(token string) []string {
	if !strings.ContainsAny(token, "0123456789") {
		return []string{token}
	}

	var out []string
	var run strings.Builder
	flush := func() {
		if run.Len() > 0 {
			out = append(out, run.String())
			run.Reset()
		}
	}
	for _, r := range token {
		if r >= '0' && r <= '9' {
			flush()
			out = append(out, digitWords[r-'0'])
			continue
		}
		run.WriteRune(r)
	}
	flush()
	return out
}
