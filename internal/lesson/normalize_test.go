package lesson

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "lowercases",
			in:   "The Cat Sat",
			want: "the cat sat",
		},
		{
			name: "strips punctuation",
			in:   "Hello, world! (Really.)",
			want: "hello world really",
		},
		{
			name: "strips hyphen and underscore",
			in:   "well-known snake_case",
			want: "wellknown snakecase",
		},
		{
			name: "keeps question marks and apostrophes",
			in:   "Don't you know?",
			want: "don't you know?",
		},
		{
			name: "collapses whitespace runs",
			in:   "too   many\t\tspaces",
			want: "too many spaces",
		},
		{
			name: "single whitespace untouched",
			in:   "one\ttab",
			want: "one\ttab",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
		{
			name: "punctuation only",
			in:   ".,;:!",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"The quick, brown fox; jumps!",
		"  leading and trailing  ",
		"MIXED case With   Runs",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}
