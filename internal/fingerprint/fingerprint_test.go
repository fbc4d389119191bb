package fingerprint

import "testing"

func TestCompute_DeterministicAcrossCalls(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog today"
	a := Compute(text, 4)
	b := Compute(text, 4)

	if a.WordCount != b.WordCount {
		t.Fatalf("word counts differ: %d vs %d", a.WordCount, b.WordCount)
	}
	if len(a.Signatures) != len(b.Signatures) {
		t.Fatalf("signature counts differ: %d vs %d", len(a.Signatures), len(b.Signatures))
	}
	for i := range a.Signatures {
		if a.Signatures[i] != b.Signatures[i] {
			t.Fatalf("signature %d differs: %x vs %x", i, a.Signatures[i], b.Signatures[i])
		}
	}
}

func TestCompute_PrefixMonotonicity(t *testing.T) {
	a := Compute("a b c d e f g h", 4)
	b := Compute("a b c d e f g h X Y Z W", 4)

	if len(a.Signatures) > len(b.Signatures) {
		t.Fatalf("prompt A has more blocks than its extension B")
	}
	for i := range a.Signatures {
		if a.Signatures[i] != b.Signatures[i] {
			t.Fatalf("block %d diverges: prefix should match", i)
		}
	}
}

func TestCompute_WhitespaceNormalization(t *testing.T) {
	a := Compute("a  b\tc\nd", 4)
	b := Compute("a b c d", 4)

	if len(a.Signatures) != 1 || len(b.Signatures) != 1 {
		t.Fatalf("expected one block each, got %d and %d", len(a.Signatures), len(b.Signatures))
	}
	if a.Signatures[0] != b.Signatures[0] {
		t.Fatalf("whitespace-variant prompts should normalize to the same signature")
	}
}

func TestCompute_PartialBlockIgnoredForSignature(t *testing.T) {
	fp := Compute("a b c d e f", 4)
	if len(fp.Signatures) != 1 {
		t.Fatalf("expected 1 complete block, got %d", len(fp.Signatures))
	}
	if fp.WordCount != 6 {
		t.Fatalf("expected word count 6, got %d", fp.WordCount)
	}
}

func TestCompute_EmptyBelowOneBlock(t *testing.T) {
	fp := Compute("a b c", 4)
	if len(fp.Signatures) != 0 {
		t.Fatalf("expected no signatures below one full block, got %d", len(fp.Signatures))
	}
}

func TestExtractPromptText_StringContent(t *testing.T) {
	messages := []map[string]interface{}{
		{"role": "system", "content": "be concise"},
		{"role": "user", "content": "hello there"},
	}
	got := ExtractPromptText(messages)
	want := "be concise hello there "
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestExtractPromptText_ContentBlockArray(t *testing.T) {
	messages := []map[string]interface{}{
		{"role": "user", "content": []interface{}{
			map[string]interface{}{"type": "text", "text": "part one"},
			map[string]interface{}{"type": "image", "url": "http://example.com/x.png"},
			map[string]interface{}{"type": "text", "text": "part two"},
		}},
	}
	got := ExtractPromptText(messages)
	if got != "part one part two  " {
		t.Fatalf("got %q", got)
	}
}
