package lesson

import (
	"strings"
	"unicode"
)

// strippedPunctuation is the exact character set removed by [Normalize].
// Keep in sync with the scorer's calibration: scores are only comparable
// across deployments if normalization is identical.
const strippedPunctuation = ".,/#!$%^&*;:{}=-_`~()"

// Normalize prepares a sentence for similarity scoring: it removes the
// punctuation set above, collapses every run of two or more whitespace
// characters into a single space, and lower-cases the result.
//
// Normalize is deterministic, locale-independent, and idempotent:
// Normalize(Normalize(s)) == Normalize(s). A single whitespace character is
// left untouched; only runs of length ≥ 2 are collapsed.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	// Pass 1: drop punctuation.
	for _, r := range s {
		if strings.ContainsRune(strippedPunctuation, r) {
			continue
		}
		b.WriteRune(r)
	}

	// Pass 2: collapse whitespace runs of ≥ 2 into one space.
	var out strings.Builder
	out.Grow(b.Len())
	var run []rune
	for _, r := range b.String() {
		if unicode.IsSpace(r) {
			run = append(run, r)
			continue
		}
		flushWhitespaceRun(&out, run)
		run = run[:0]
		out.WriteRune(r)
	}
	flushWhitespaceRun(&out, run)

	return strings.ToLower(out.String())
}

// flushWhitespaceRun writes a pending whitespace run: a lone whitespace
// character passes through unchanged, a longer run becomes a single space.
func flushWhitespaceRun(out *strings.Builder, run []rune) {
	switch len(run) {
	case 0:
	case 1:
		out.WriteRune(run[0])
	default:
		out.WriteRune(' ')
	}
}
