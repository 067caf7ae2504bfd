package domain

import (
	"math"
	"strings"
	"time"
	"unicode"
)

// Embedding is a fixed-length face descriptor.
type Embedding []float64

// Float32 converts the embedding for vector libraries that work in float32.
func (e Embedding) Float32() []float32 {
	out := make([]float32, len(e))
	for i, v := range e {
		out[i] = float32(v)
	}
	return out
}

// Normalized returns a unit-length copy. Zero vectors are returned unchanged.
func (e Embedding) Normalized() Embedding {
	var norm float64
	for _, v := range e {
		norm += v * v
	}
	if norm == 0 {
		return e
	}
	norm = math.Sqrt(norm)
	out := make(Embedding, len(e))
	for i, v := range e {
		out[i] = v / norm
	}
	return out
}

// Identity is an enrolled person. Key is the lower-cased email and is unique.
type Identity struct {
	Key          string    `json:"email"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Class        string    `json:"class"`
	Division     string    `json:"division"`
	ImageRef     string    `json:"-"`
	EmbeddingRef string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// GalleryEntry pairs an identity with its stored embedding.
type GalleryEntry struct {
	Identity  Identity
	Embedding Embedding
}

// NormalizeKey folds an email into the form used for uniqueness and storage.
func NormalizeKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// TitleName title-cases every word of a display name.
func TitleName(name string) string {
	words := strings.Fields(name)
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
