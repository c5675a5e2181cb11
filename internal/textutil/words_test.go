package textutil

import (
	"slices"
	"testing"
)

func TestWords(t *testing.T) {
	got := Words("Don’t PANIC: 42 towels, it's fine!")
	want := []string{"don’t", "panic", "towels", "it's", "fine"}
	if !slices.Equal(got, want) {
		t.Fatalf("Words = %q, want %q", got, want)
	}
	if got := Words("1234 ..."); len(got) != 0 {
		t.Fatalf("expected no words, got %q", got)
	}
}

func TestContentWords(t *testing.T) {
	got := ContentWords("The sun is a star at the centre of the solar system")
	want := []string{"sun", "star", "centre", "solar", "system"}
	if !slices.Equal(got, want) {
		t.Fatalf("ContentWords = %q, want %q", got, want)
	}
	if !IsStopword("the") || IsStopword("The") || IsStopword("planet") {
		t.Fatalf("unexpected stopword classification")
	}
}
