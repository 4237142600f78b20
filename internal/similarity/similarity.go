// Package similarity scores how alike two normalized utterances are.
package similarity

import "strings"

// DefaultThreshold is the score at or above which two utterances are
// treated as the same conversational state.
const DefaultThreshold = 0.85

// Score returns a similarity in [0,1] for two already-normalized strings.
// It is symmetric and reflexive, returns 0 if either string is empty, and
// does not decrease when a common suffix of whole words (joined with a
// space) is appended to both inputs.
//
// The score is the higher of a token multiset ratio and a character-bigram
// ratio: the token ratio tracks word-level transcription noise, the bigram
// ratio keeps short single-word utterances comparable.
func Score(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	tok := diceStrings(strings.Fields(a), strings.Fields(b))
	big := diceStrings(bigrams(a), bigrams(b))
	if big > tok {
		return big
	}
	return tok
}

// diceStrings computes the Sørensen–Dice coefficient over two multisets:
// 2*|intersection| / (|xs| + |ys|).
func diceStrings(xs, ys []string) float64 {
	if len(xs) == 0 || len(ys) == 0 {
		return 0
	}
	counts := make(map[string]int, len(xs))
	for _, x := range xs {
		counts[x]++
	}
	overlap := 0
	for _, y := range ys {
		if counts[y] > 0 {
			counts[y]--
			overlap++
		}
	}
	return 2 * float64(overlap) / float64(len(xs)+len(ys))
}

// bigrams returns the character bigrams of s padded with a space at each
// end, spaces included, so word boundaries contribute to the signature and
// words appended after a space add the same bigrams to any input.
func bigrams(s string) []string {
	runes := []rune(" " + s + " ")
	if len(runes) < 2 {
		return []string{string(runes)}
	}
	out := make([]string, 0, len(runes)-1)
	for i := 0; i+1 < len(runes); i++ {
		out = append(out, string(runes[i:i+2]))
	}
	return out
}
