// Package fingerprint turns a prompt's text into a sequence of block-level
// signatures used for longest-common-prefix matching against the cache.
package fingerprint

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint is the ordered sequence of block signatures for a prompt, plus
// bookkeeping the coordinator and janitor need alongside it.
type Fingerprint struct {
	Signatures []uint64
	WordCount  int
}

// Compute normalizes promptText, splits it into whitespace-delimited
// words, and hashes each complete wordsPerBlock-sized block independently.
// It is deterministic and pure: the same text always produces the same
// signatures, in any process, at any time.
func Compute(promptText string, wordsPerBlock int) Fingerprint {
	words := strings.Fields(promptText)
	fp := Fingerprint{WordCount: len(words)}
	if wordsPerBlock <= 0 {
		return fp
	}

	numBlocks := len(words) / wordsPerBlock
	fp.Signatures = make([]uint64, 0, numBlocks)
	for i := 0; i < numBlocks; i++ {
		start := i * wordsPerBlock
		block := strings.Join(words[start:start+wordsPerBlock], " ")
		fp.Signatures = append(fp.Signatures, xxhash.Sum64String(block))
	}
	return fp
}

// ExtractPromptText concatenates the text content of a slice of decoded
// chat messages, in order, the same order the backend would see them in.
// Non-text content blocks (images, tool calls, etc.) are ignored: the core
// only reasons about the textual portion of the prompt.
func ExtractPromptText(messages []map[string]interface{}) string {
	var b strings.Builder
	for _, m := range messages {
		content, ok := m["content"]
		if !ok {
			continue
		}
		extractContent(&b, content)
		b.WriteByte(' ')
	}
	return b.String()
}

func extractContent(b *strings.Builder, content interface{}) {
	switch v := content.(type) {
	case string:
		b.WriteString(v)
	case []interface{}:
		for _, item := range v {
			switch block := item.(type) {
			case string:
				b.WriteString(block)
			case map[string]interface{}:
				if text, ok := block["text"].(string); ok {
					b.WriteString(text)
					b.WriteByte(' ')
				}
			}
		}
	}
}
