package lesson

import (
	"fmt"
	"strconv"
)

// Promotion and demotion thresholds for the level policy. These literals are
// calibrated against the scorer; do not tune them independently.
const (
	promoteThreshold = 90.0
	demoteThreshold  = 56.0
)

// NextLevel applies the adaptive level policy to a match score:
//
//   - score ≥ 90 promotes by one level, capped at [MaxLevel]
//   - score < 56 demotes by one level, floored at [MinLevel]
//   - anything in between leaves the level unchanged
//
// The result never leaves [MinLevel, MaxLevel] and never differs from
// currentLevel by more than one. There is no hysteresis beyond the
// single-step change per call.
func NextLevel(score float64, currentLevel int) int {
	switch {
	case score >= promoteThreshold && currentLevel < MaxLevel:
		return currentLevel + 1
	case score < demoteThreshold && currentLevel > MinLevel:
		return currentLevel - 1
	default:
		return currentLevel
	}
}

// ParseLevel extracts the graded level from a model's grading reply. The
// prompt asks for a bare number, but models routinely decorate it ("7.",
// "7 out of 10"), so the first run of digits in the reply is taken. The
// caller is expected to clamp the result.
func ParseLevel(reply string) (int, error) {
	start := -1
	for i := 0; i < len(reply); i++ {
		c := reply[i]
		switch {
		case c >= '0' && c <= '9':
			if start < 0 {
				start = i
			}
		case start >= 0:
			return strconv.Atoi(reply[start:i])
		}
	}
	if start < 0 {
		return 0, fmt.Errorf("lesson: no number in grading reply %q", reply)
	}
	return strconv.Atoi(reply[start:])
}
