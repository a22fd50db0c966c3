package lesson

import (
	"strings"
	"testing"
)

func TestGenerationPrompt_Themed(t *testing.T) {
	d, _ := DifficultyFor(5)
	got := GenerationPrompt(d, "space travel")

	for _, want := range []string{"intermediate", "space travel", "10 words", "2 syllables"} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q: %q", want, got)
		}
	}
}

func TestGenerationPrompt_Unthemed(t *testing.T) {
	d, _ := DifficultyFor(1)
	got := GenerationPrompt(d, "")

	if strings.Contains(got, "theme") {
		t.Errorf("unthemed prompt mentions a theme: %q", got)
	}
	for _, want := range []string{"beginner", "3 words", "1 syllables"} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q: %q", want, got)
		}
	}
}

func TestGenerationPromptWithHistory_Empty(t *testing.T) {
	var h History
	prompt := "Generate a sentence."
	if got := GenerationPromptWithHistory(prompt, &h); got != prompt {
		t.Errorf("empty history should return the prompt unchanged, got %q", got)
	}
}

func TestGenerationPromptWithHistory_JoinsEntries(t *testing.T) {
	var h History
	h.Append("level: 2 The cat sat.")
	h.Append("level: 3 The dog ran away.")

	got := GenerationPromptWithHistory("Generate a sentence.", &h)

	if !strings.HasPrefix(got, "Based on the following example sentences at given levels:") {
		t.Errorf("unexpected prefix: %q", got)
	}
	if !strings.Contains(got, `The cat sat.", "level: 3 The dog ran away.`) {
		t.Errorf("entries not joined as expected: %q", got)
	}
	if !strings.Contains(got, "Generate a sentence.") {
		t.Errorf("base prompt missing: %q", got)
	}
}

func TestStripQuotes(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`"The cat sat."`, "The cat sat."},
		{`She said "hello" to him.`, "She said hello to him."},
		{`'single' and "double"`, "single and double"},
		{"no quotes here", "no quotes here"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := StripQuotes(tt.in); got != tt.want {
			t.Errorf("StripQuotes(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGradeProfilePrompt_Stable(t *testing.T) {
	got := GradeProfilePrompt()
	if !strings.Contains(got, "scale from 1-10") {
		t.Errorf("grading prompt changed: %q", got)
	}
	if !strings.Contains(got, "Only return the number") {
		t.Errorf("grading prompt must demand a bare number: %q", got)
	}
}
