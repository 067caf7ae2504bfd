package matcher

import (
	"math"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

const (
	// DefaultEuclideanTolerance is the dlib/face_recognition default
	DefaultEuclideanTolerance = 0.6
	// DefaultCosineThreshold mirrors the similarity cut-off used for normalized embeddings
	DefaultCosineThreshold = 0.8
)

// Comparator decides whether two embeddings belong to the same person
type Comparator interface {
	Matches(probe, candidate domain.Embedding) bool
	// Score is the raw value the decision is taken on (distance or similarity)
	Score(probe, candidate domain.Embedding) float64
	Name() string
}

// EuclideanComparator matches when the L2 distance is at most Tolerance
type EuclideanComparator struct {
	Tolerance float64
}

func NewEuclideanComparator(tolerance float64) EuclideanComparator {
	if tolerance <= 0 {
		tolerance = DefaultEuclideanTolerance
	}
	return EuclideanComparator{Tolerance: tolerance}
}

func (c EuclideanComparator) Name() string { return "euclidean" }

func (c EuclideanComparator) Score(probe, candidate domain.Embedding) float64 {
	return EuclideanDistance(probe, candidate)
}

func (c EuclideanComparator) Matches(probe, candidate domain.Embedding) bool {
	if len(probe) == 0 || len(probe) != len(candidate) {
		return false
	}
	return EuclideanDistance(probe, candidate) <= c.Tolerance
}

// CosineComparator matches when cosine similarity is at least Threshold
type CosineComparator struct {
	Threshold float64
}

func NewCosineComparator(threshold float64) CosineComparator {
	if threshold <= 0 {
		threshold = DefaultCosineThreshold
	}
	return CosineComparator{Threshold: threshold}
}

func (c CosineComparator) Name() string { return "cosine" }

func (c CosineComparator) Score(probe, candidate domain.Embedding) float64 {
	return CosineSimilarity(probe, candidate)
}

func (c CosineComparator) Matches(probe, candidate domain.Embedding) bool {
	if len(probe) == 0 || len(probe) != len(candidate) {
		return false
	}
	return CosineSimilarity(probe, candidate) >= c.Threshold
}

// NewComparator builds the comparator for a metric name; threshold 0 selects the metric default
func NewComparator(metric string, threshold float64) Comparator {
	if metric == "cosine" {
		return NewCosineComparator(threshold)
	}
	return NewEuclideanComparator(threshold)
}

// EuclideanDistance returns +Inf for vectors of different length
func EuclideanDistance(a, b domain.Embedding) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// CosineSimilarity calculates cosine similarity between two embeddings
// Returns value between -1 and 1, where 1 means identical
func CosineSimilarity(a, b domain.Embedding) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
