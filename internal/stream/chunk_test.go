package stream

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestChunksSplitsInOrder(t *testing.T) {
	t.Parallel()

	got := Chunks("ABCDE", 2)
	want := []string{"AB", "CD", "E"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestChunksConcatenationReconstructsContent(t *testing.T) {
	t.Parallel()

	content := strings.Repeat("the quick brown fox ", 37)
	for _, size := range []int{1, 7, 100, 1000} {
		if got := strings.Join(Chunks(content, size), ""); got != content {
			t.Errorf("size %d: concatenated chunks differ from content", size)
		}
	}
}

func TestChunksRuneSafeForBengali(t *testing.T) {
	t.Parallel()

	// Multi-byte code points must never be cut.
	content := "আমি গো শিখতে চাই"
	for i, chunk := range Chunks(content, 3) {
		if len([]rune(chunk)) > 3 {
			t.Errorf("chunk %d has %d runes, want at most 3", i, len([]rune(chunk)))
		}
		if !utf8.ValidString(chunk) {
			t.Fatalf("chunk %d is not valid UTF-8, code point was split: %q", i, chunk)
		}
	}
	if got := strings.Join(Chunks(content, 3), ""); got != content {
		t.Errorf("Expected reconstruction %q, got %q", content, got)
	}
}

func TestChunksEdgeCases(t *testing.T) {
	t.Parallel()

	if got := Chunks("", 10); got != nil {
		t.Errorf("Expected nil for empty content, got %v", got)
	}
	if got := Chunks("hi", 0); !reflect.DeepEqual(got, []string{"hi"}) {
		t.Errorf("Expected default size for size<=0, got %v", got)
	}
	if got := Chunks("hi", 100); !reflect.DeepEqual(got, []string{"hi"}) {
		t.Errorf("Expected single chunk when content fits, got %v", got)
	}
}
