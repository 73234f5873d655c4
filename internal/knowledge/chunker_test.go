package knowledge

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestChunker_ShortTextSingleChunk(t *testing.T) {
	chunks := DefaultChunker().Split("  Hypertension is a leading cause of CKD.  ")
	assert.Equal(t, []string{"Hypertension is a leading cause of CKD."}, chunks)
}

func TestChunker_Empty(t *testing.T) {
	assert.Empty(t, DefaultChunker().Split("   \n "))
}

func TestChunker_RespectsSizeAndOverlap(t *testing.T) {
	text := strings.Repeat("kidney function declines slowly ", 200)
	c := Chunker{Size: 200, Overlap: 20}
	chunks := c.Split(text)

	assert.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch), 200)
	}

	// consecutive chunks share text because of the overlap
	for i := 1; i < len(chunks); i++ {
		tail := chunks[i-1][len(chunks[i-1])-10:]
		assert.Contains(t, chunks[i], tail)
	}
}

func TestChunker_NoWhitespace(t *testing.T) {
	text := strings.Repeat("x", 250)
	chunks := Chunker{Size: 100, Overlap: 10}.Split(text)
	assert.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 100)
}

func TestChunker_InvalidOverlapIgnored(t *testing.T) {
	chunks := Chunker{Size: 10, Overlap: 50}.Split(strings.Repeat("a", 30))
	assert.Len(t, chunks, 3)
}
