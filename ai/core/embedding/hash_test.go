package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestHashProvider(t *testing.T) {
	ctx := context.Background()
	p, err := NewHashProvider(384)
	require.NoError(t, err)
	assert.Equal(t, 384, p.Dimensions())
	assert.Equal(t, HashModel, p.Model())

	a, err := p.Embed(ctx, "Interstellar (2014) Sci-Fi Drama 2014")
	require.NoError(t, err)
	b, err := p.Embed(ctx, "Interstellar (2014) Sci-Fi Drama 2014")
	require.NoError(t, err)
	assert.Equal(t, a, b, "embedding must be deterministic")
	assert.Len(t, a, 384)

	var norm float64
	for _, v := range a {
		assert.GreaterOrEqual(t, v, float32(0))
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)

	related, err := p.Embed(ctx, "mind-bending sci-fi like Interstellar")
	require.NoError(t, err)
	unrelated, err := p.Embed(ctx, "Toy Story (1995) Animation Children's Comedy 1995")
	require.NoError(t, err)
	assert.Greater(t, cosine(a, related), cosine(a, unrelated))
}

func TestHashProviderEdgeCases(t *testing.T) {
	_, err := NewHashProvider(0)
	assert.Error(t, err)

	p, err := NewHashProvider(8)
	require.NoError(t, err)

	zero, err := p.Embed(context.Background(), "  --  ")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), zero)

	vectors, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)

	_, err = p.EmbedBatch(context.Background(), nil)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Embed(ctx, "anything")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"mind", "bending", "sci", "fi", "2014"}, tokenize("Mind-Bending SCI-FI (2014)"))
}
