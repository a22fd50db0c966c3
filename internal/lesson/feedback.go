package lesson

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Per-word feedback thresholds. A hypothesis word below closeThreshold
// against its best reference candidate is considered a miss rather than a
// mispronunciation and produces no hint.
const (
	closeThreshold = 0.70
	exactThreshold = 0.999
)

// WordHint describes one reference word the learner mispronounced: the word
// as heard, the word expected, and whether the two are at least phonetically
// equivalent (same Double Metaphone code, e.g. "there" for "their").
type WordHint struct {
	Heard    string
	Expected string

	// PhoneticMatch is true when the heard word sounds like the expected
	// word even though the spelling differs. These hints are informational;
	// the learner said the right thing.
	PhoneticMatch bool

	// Similarity is the Jaro-Winkler similarity between the two words,
	// in [0, 1].
	Similarity float64
}

// WordHints aligns the normalized hypothesis against the normalized
// reference word by word and reports the reference words that were not
// reproduced exactly. For each such word the closest hypothesis word is
// selected by Jaro-Winkler similarity; candidates below the closeness
// threshold are skipped because a hint needs a plausible "what you said"
// side to be useful.
//
// Both inputs must already be normalized. Word order is not enforced, so a
// transposed but correctly pronounced sentence yields no hints.
func WordHints(hypothesis, reference string) []WordHint {
	refWords := strings.Fields(reference)
	hypWords := strings.Fields(hypothesis)
	if len(refWords) == 0 || len(hypWords) == 0 {
		return nil
	}

	spoken := make(map[string]struct{}, len(hypWords))
	for _, w := range hypWords {
		spoken[w] = struct{}{}
	}

	var hints []WordHint
	for _, ref := range refWords {
		if _, ok := spoken[ref]; ok {
			continue
		}
		heard, score := closestWord(ref, hypWords)
		if score < closeThreshold || score >= exactThreshold {
			continue
		}
		hints = append(hints, WordHint{
			Heard:         heard,
			Expected:      ref,
			PhoneticMatch: soundsAlike(heard, ref),
			Similarity:    score,
		})
	}
	return hints
}

// closestWord returns the candidate with the highest Jaro-Winkler similarity
// to word.
func closestWord(word string, candidates []string) (best string, score float64) {
	for _, c := range candidates {
		if s := matchr.JaroWinkler(word, c, false); s > score {
			best, score = c, s
		}
	}
	return best, score
}

// soundsAlike reports whether the two words share at least one Double
// Metaphone code. Either code slot may be empty for short or vowel-only
// words; empty codes never match.
func soundsAlike(a, b string) bool {
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	for _, x := range []string{ap, as} {
		if x == "" {
			continue
		}
		if x == bp || x == bs {
			return true
		}
	}
	return false
}
