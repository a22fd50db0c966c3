package lesson

import (
	"errors"
	"math"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ErrDegenerateScore is returned by [Score] when both inputs are empty and
// the match ratio is therefore undefined. Callers must treat this as "no
// level change", never as a score of zero.
var ErrDegenerateScore = errors.New("lesson: similarity of two empty strings is undefined")

// ScoreResult captures one scoring event for a lesson turn. It is ephemeral;
// persistence is the caller's concern.
type ScoreResult struct {
	// MatchScore is the percentage of matched characters in [0, 100],
	// rounded to two decimals.
	MatchScore float64

	// PreviousLevel and NewLevel record the level transition applied for
	// this score.
	PreviousLevel int
	NewLevel      int

	// Pretty is an HTML rendering of the diff with insertions and deletions
	// marked, suitable for direct display in the chat transcript.
	Pretty string

	// Hints carries per-word pronunciation feedback. May be empty.
	Hints []WordHint
}

// Score computes the character-level match score between a transcribed
// hypothesis and the reference sentence. Both inputs are expected to be
// normalized already (see [Normalize]).
//
// The score is 100·equal/(equal+changed) over a Myers diff of the two
// strings, rounded to two decimals. Segment boundaries are a diff
// implementation detail, but the equal/changed character totals match an LCS
// computation and are symmetric under swapping the arguments.
//
// Returns [ErrDegenerateScore] when both inputs are empty.
func Score(hypothesis, reference string) (float64, error) {
	if hypothesis == "" && reference == "" {
		return 0, ErrDegenerateScore
	}

	equal, changed := diffCounts(diffSentences(hypothesis, reference))

	score := float64(equal) / float64(equal+changed) * 100
	// Round to two decimals, matching the published score format.
	return math.Round(score*100) / 100, nil
}

// PrettyDiff renders the diff between the reference sentence and the
// transcribed hypothesis as HTML with <ins>/<del> markup. The diff is
// semantically cleaned first so that adjacent same-type edits merge and
// trivial equalities are absorbed into neighboring edits.
//
// Note the argument order: the rendering reads as "what to change in the
// reference to obtain what was heard", mirroring how the transcript is shown
// to the learner.
func PrettyDiff(reference, hypothesis string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(reference, hypothesis, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return dmp.DiffPrettyHtml(diffs)
}

// diffSentences runs the character-level diff used for scoring.
func diffSentences(a, b string) []diffmatchpatch.Diff {
	dmp := diffmatchpatch.New()
	return dmp.DiffMain(a, b, false)
}

// diffCounts sums rune counts per segment type: equal segments versus
// inserted/deleted segments.
func diffCounts(diffs []diffmatchpatch.Diff) (equal, changed int) {
	for _, d := range diffs {
		n := utf8.RuneCountInString(d.Text)
		if d.Type == diffmatchpatch.DiffEqual {
			equal += n
		} else {
			changed += n
		}
	}
	return equal, changed
}
