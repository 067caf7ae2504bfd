package repository

import (
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

// isUniqueViolation checks if the error is a unique constraint violation
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "23505") ||
		strings.Contains(errMsg, "unique") ||
		strings.Contains(errMsg, "duplicate key")
}

func toVector(embedding domain.Embedding) pgvector.Vector {
	return pgvector.NewVector(embedding.Float32())
}

func fromVector(vec pgvector.Vector) domain.Embedding {
	floats := vec.Slice()
	embedding := make(domain.Embedding, len(floats))
	for i, v := range floats {
		embedding[i] = float64(v)
	}
	return embedding
}

// ContentTypeExt maps an image content type onto the file extension used for artifacts
func ContentTypeExt(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
