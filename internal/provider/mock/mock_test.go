package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(fill byte) []byte {
	image := make([]byte, 5000)
	for i := range image {
		image[i] = byte(i%256) ^ fill
	}
	return image
}

func TestProvider_ExtractEmbeddings(t *testing.T) {
	p := New()
	ctx := context.Background()

	tests := []struct {
		name      string
		image     []byte
		wantFaces int
		wantErr   bool
	}{
		{
			name:      "valid image",
			image:     testImage(0),
			wantFaces: 1,
		},
		{
			name:    "image too small",
			image:   make([]byte, 100),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embeddings, err := p.ExtractEmbeddings(ctx, tt.image)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, embeddings, tt.wantFaces)
		})
	}
}

func TestProvider_ExtractEmbeddings_Normalized(t *testing.T) {
	embeddings, err := New().ExtractEmbeddings(context.Background(), testImage(1))
	require.NoError(t, err)
	require.Len(t, embeddings, 1)
	assert.Len(t, embeddings[0], embeddingDimension)

	var norm float64
	for _, v := range embeddings[0] {
		norm += v * v
	}
	assert.InDelta(t, 1.0, norm, 0.01)
}

func TestProvider_ExtractEmbeddings_Deterministic(t *testing.T) {
	p := New()
	ctx := context.Background()

	first, err := p.ExtractEmbeddings(ctx, testImage(7))
	require.NoError(t, err)
	second, err := p.ExtractEmbeddings(ctx, testImage(7))
	require.NoError(t, err)
	other, err := p.ExtractEmbeddings(ctx, testImage(8))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotEqual(t, first, other)
}

func TestProvider_BlankMarker(t *testing.T) {
	p := New(WithBlankMarker([]byte("NOFACE")))
	image := testImage(0)
	copy(image[100:], "NOFACE")

	embeddings, err := p.ExtractEmbeddings(context.Background(), image)
	require.NoError(t, err)
	assert.Empty(t, embeddings)
}

func TestProvider_CheckLiveness(t *testing.T) {
	p := New(WithSpoofMarker([]byte("SPOOF")))
	ctx := context.Background()

	live, err := p.CheckLiveness(ctx, testImage(0), 0.9)
	require.NoError(t, err)
	assert.True(t, live.Passed(0.9))

	spoofed := testImage(0)
	copy(spoofed[200:], "SPOOF")
	result, err := p.CheckLiveness(ctx, spoofed, 0.9)
	require.NoError(t, err)
	assert.False(t, result.Passed(0.9))
	assert.NotEmpty(t, result.Reasons)

	_, err = p.CheckLiveness(ctx, make([]byte, 10), 0.9)
	assert.Error(t, err)
}
