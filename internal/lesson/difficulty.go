// Package lesson implements the lesson orchestration core of Echolalia: the
// per-learner session state machine, the difficulty table that constrains
// sentence generation, the transcript similarity scorer, and the level
// adjustment policy.
//
// The package owns no transport and no storage. It talks to the outside world
// through small interfaces ([Exchange], [Store], [EventSink]) so that
// the web layer and the PostgreSQL store can be swapped for mocks in tests.
package lesson

import "fmt"

// Difficulty holds the sentence-generation constraints for a single level.
// The values derive from Flesch readability bands and are fixed; test
// fixtures and score calibration depend on them.
type Difficulty struct {
	// WordsPerSentence is the target word count for a generated sentence.
	WordsPerSentence int

	// SyllablesPerWord is the target syllable density.
	SyllablesPerWord int

	// Descriptor names the proficiency band in the generation prompt
	// (e.g., "beginner", "native or bilingual").
	Descriptor string
}

// MinLevel and MaxLevel bound the difficulty scale. Level is always clamped
// into this range by every code path that sets it.
const (
	MinLevel = 1
	MaxLevel = 10
)

// difficultyTable maps level → generation constraints for all ten levels.
var difficultyTable = map[int]Difficulty{
	1:  {WordsPerSentence: 3, SyllablesPerWord: 1, Descriptor: "beginner"},
	2:  {WordsPerSentence: 5, SyllablesPerWord: 1, Descriptor: "early elementary"},
	3:  {WordsPerSentence: 7, SyllablesPerWord: 1, Descriptor: "elementary"},
	4:  {WordsPerSentence: 8, SyllablesPerWord: 1, Descriptor: "lower intermediate"},
	5:  {WordsPerSentence: 10, SyllablesPerWord: 2, Descriptor: "intermediate"},
	6:  {WordsPerSentence: 12, SyllablesPerWord: 2, Descriptor: "upper intermediate"},
	7:  {WordsPerSentence: 14, SyllablesPerWord: 2, Descriptor: "medium proficiency"},
	8:  {WordsPerSentence: 16, SyllablesPerWord: 3, Descriptor: "professional working proficiency"},
	9:  {WordsPerSentence: 18, SyllablesPerWord: 3, Descriptor: "full professional proficiency"},
	10: {WordsPerSentence: 20, SyllablesPerWord: 4, Descriptor: "native or bilingual"},
}

// DifficultyFor returns the generation constraints for level.
// Returns an error when level is outside [MinLevel, MaxLevel].
func DifficultyFor(level int) (Difficulty, error) {
	d, ok := difficultyTable[level]
	if !ok {
		return Difficulty{}, fmt.Errorf("lesson: no difficulty entry for level %d", level)
	}
	return d, nil
}

// ClampLevel forces level into [MinLevel, MaxLevel].
func ClampLevel(level int) int {
	if level < MinLevel {
		return MinLevel
	}
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}
