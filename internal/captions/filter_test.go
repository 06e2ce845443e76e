package captions

import "testing"

func TestKeep(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"empty", "", false},
		{"whitespace only", "   \t\n", false},
		{"two chars", "ok", false},
		{"punctuation only", "...", false},
		{"symbols", "!!?!", false},
		{"single letter padded", " a .", false},
		{"mostly symbols", "a-*#%&!+=", false},
		{"plain sentence", "Hello there", true},
		{"trimmed sentence", "  Hello there  ", true},
		{"three letters", "yes", true},
		{"accented", "où ça", true},
		{"non-latin", "こんにちは", true},
		{"digits only", "12345", false},
		{"letters with digits", "room 12", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Keep(tt.text); got != tt.want {
				t.Errorf("Keep(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestKeep_deterministic(t *testing.T) {
	// Same input, same decision, every time.
	for i := 0; i < 100; i++ {
		if !Keep("Hello there") {
			t.Fatal("Keep must be pure")
		}
		if Keep("...") {
			t.Fatal("Keep must be pure")
		}
	}
}

func TestLetterCount(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 3},
		{"a1b2", 2},
		{"...", 0},
		{"héllo", 5},
	}
	for _, tt := range tests {
		if got := letterCount(tt.text); got != tt.want {
			t.Errorf("letterCount(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}
