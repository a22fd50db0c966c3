package lesson

import (
	"fmt"
	"strings"
)

// Prompt text sent to the language model. The wording is part of the scoring
// calibration: the grading prompt shapes the initial-level distribution and
// the generation prompts shape sentence length, so changes here shift scores
// for every learner.
const gradeProfilePrompt = `Grade the following self-introduction using the demographics and likert scale data on a scale from 1-10. Level 1 is total beginner and level 7 is an advanced English speaker. Only return the number`

// GradeProfilePrompt returns the system prompt used to grade a pre-survey
// profile into an initial level.
func GradeProfilePrompt() string {
	return gradeProfilePrompt
}

// GenerationPrompt builds the system prompt for generating the next lesson
// sentence at the given difficulty. A non-empty theme selects the themed
// variant.
func GenerationPrompt(d Difficulty, theme string) string {
	if theme != "" {
		return fmt.Sprintf(
			"Generate a new, unique sentence for %s english speakers with the theme %s. The sentence should include %d words and %d syllables. Only return the lesson in quotes",
			d.Descriptor, theme, d.WordsPerSentence, d.SyllablesPerWord,
		)
	}
	return fmt.Sprintf(
		"Generate a new, unique sentence for %s english speakers. The sentence should include %d words and %d syllables. Only return the lesson in quotes",
		d.Descriptor, d.WordsPerSentence, d.SyllablesPerWord,
	)
}

// GenerationPromptWithHistory wraps a generation prompt with the recent
// sentence history so the model avoids repeating itself. When history is
// empty the plain prompt is returned unchanged; otherwise the history
// variant replaces it entirely.
func GenerationPromptWithHistory(prompt string, history *History) string {
	if history.Len() == 0 {
		return prompt
	}
	return fmt.Sprintf(
		"Based on the following example sentences at given levels: %s, %s",
		strings.Join(history.Entries(), `", "`), prompt,
	)
}

// StripQuotes removes every double and single quote character from a
// generated sentence. Models frequently wrap or sprinkle quotes despite the
// prompt asking for the lesson in quotes only.
func StripQuotes(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '"' || r == '\'' {
			return -1
		}
		return r
	}, s)
}
