// Package splitter implements C4: recursive text splitting into
// token-bounded chunks with configurable overlap. The package defines no
// default sizes; callers size a Splitter to their own model's context
// window (memory.New's default is 7000 tokens with a 700-token overlap).
package splitter

import (
	"strings"

	"github.com/agentscope-go/core/model"
)

// Default separators, tried most-specific first, mirroring a recursive
// character splitter's usual priority: paragraph, line, sentence, word.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " "}

// Splitter recursively splits text on a priority list of separators until
// every chunk is within ChunkSizeTokens, then stitches neighboring chunks
// back together with OverlapTokens of shared content.
type Splitter struct {
	ChunkSizeTokens int
	OverlapTokens   int
	Separators      []string
	Counter         model.TokenCounter
}

// New builds a Splitter with the given token budget and overlap, using
// DefaultSeparators and an approximate token counter unless overridden.
func New(chunkSizeTokens, overlapTokens int) *Splitter {
	return &Splitter{
		ChunkSizeTokens: chunkSizeTokens,
		OverlapTokens:   overlapTokens,
		Separators:      DefaultSeparators,
		Counter:         model.ApproxTokenCounter,
	}
}

// Split recursively breaks text into chunks no larger than ChunkSizeTokens,
// each extended backward by OverlapTokens worth of the previous chunk's
// trailing text (except the first).
func (s *Splitter) Split(text string) []string {
	if s.Counter.Count(text) <= s.ChunkSizeTokens {
		if text == "" {
			return nil
		}
		return []string{text}
	}
	pieces := s.recursiveSplit(text, s.Separators)
	return s.withOverlap(pieces)
}

func (s *Splitter) recursiveSplit(text string, separators []string) []string {
	if s.Counter.Count(text) <= s.ChunkSizeTokens || len(separators) == 0 {
		return s.hardSplit(text)
	}
	sep := separators[0]
	parts := splitKeepingSeparator(text, sep)
	var out []string
	var buf strings.Builder
	flush := func() {
		if buf.Len() == 0 {
			return
		}
		chunk := buf.String()
		if s.Counter.Count(chunk) > s.ChunkSizeTokens {
			out = append(out, s.recursiveSplit(chunk, separators[1:])...)
		} else {
			out = append(out, chunk)
		}
		buf.Reset()
	}
	for _, p := range parts {
		if s.Counter.Count(buf.String()+p) > s.ChunkSizeTokens && buf.Len() > 0 {
			flush()
		}
		buf.WriteString(p)
	}
	flush()
	return out
}

// hardSplit is the base case when no separator can shrink text below the
// budget: cut on a fixed rune-count proportional to the token budget.
func (s *Splitter) hardSplit(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	// Approximate 4 runes/token, matching model.ApproxTokenCounter.
	width := s.ChunkSizeTokens * 4
	if width <= 0 {
		width = 1
	}
	var out []string
	for i := 0; i < len(runes); i += width {
		end := i + width
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}

func splitKeepingSeparator(text, sep string) []string {
	if sep == "" {
		return []string{text}
	}
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i < len(parts)-1 {
			out = append(out, p+sep)
		} else if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// withOverlap stitches OverlapTokens worth of each chunk's tail onto the
// front of the next chunk, so no boundary loses context a downstream
// summarizer needs.
func (s *Splitter) withOverlap(chunks []string) []string {
	if s.OverlapTokens <= 0 || len(chunks) <= 1 {
		return chunks
	}
	out := make([]string, len(chunks))
	out[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		tail := tailByTokens(chunks[i-1], s.OverlapTokens, s.Counter)
		out[i] = tail + chunks[i]
	}
	return out
}

func tailByTokens(text string, tokens int, counter model.TokenCounter) string {
	runes := []rune(text)
	width := tokens * 4
	if width <= 0 || width >= len(runes) {
		return text
	}
	start := len(runes) - width
	for counter.Count(string(runes[start:])) > tokens && start < len(runes)-1 {
		start++
	}
	return string(runes[start:])
}
