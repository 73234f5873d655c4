package knowledge

import (
	"strings"
	"unicode"
)

// Chunker splits text into overlapping windows measured in characters.
type Chunker struct {
	Size    int
	Overlap int
}

// DefaultChunker matches the index's chunking of 1000 characters with 100 overlap.
func DefaultChunker() Chunker {
	return Chunker{Size: 1000, Overlap: 100}
}

// Split returns the chunks of text. Chunk boundaries prefer whitespace in the
// second half of a window so words are not cut.
func (c Chunker) Split(text string) []string {
	size := c.Size
	if size <= 0 {
		size = 1000
	}
	overlap := c.Overlap
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(strings.TrimSpace(text))
	var chunks []string
	for start := 0; start < len(runes); {
		end := start + size
		if end >= len(runes) {
			end = len(runes)
		} else if cut := lastSpace(runes, start+size/2, end); cut > 0 {
			end = cut
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

func lastSpace(runes []rune, from, to int) int {
	for i := to - 1; i >= from; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}
