package knowledge

import (
	"context"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// HashEmbedder is a deterministic bag-of-words embedder that needs no network
// access. It backs offline indexes and tests; its vectors are only comparable
// with each other.
type HashEmbedder struct {
	Dims int
}

// Embed hashes each lower-cased word into a fixed number of buckets and normalises.
func (h HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	dims := h.dims()
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, dims)
		words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, w := range words {
			f := fnv.New32a()
			_, _ = f.Write([]byte(w))
			v[f.Sum32()%uint32(dims)]++
		}
		var norm float64
		for _, x := range v {
			norm += float64(x) * float64(x)
		}
		if norm > 0 {
			scale := float32(1 / math.Sqrt(norm))
			for j := range v {
				v[j] *= scale
			}
		}
		out[i] = v
	}
	return out, nil
}

// Provider returns "hash".
func (h HashEmbedder) Provider() string { return "hash" }

// Model identifies the bucket count so indexes with different sizes never mix.
func (h HashEmbedder) Model() string {
	return "fnv-bow-" + strconv.Itoa(h.dims())
}

func (h HashEmbedder) dims() int {
	if h.Dims <= 0 {
		return 256
	}
	return h.Dims
}
