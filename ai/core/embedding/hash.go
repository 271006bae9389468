package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// HashModel is the model name reported by the hash provider.
const HashModel = "fnv1a-hash"

// bigramWeight scales adjacent-token features relative to single tokens.
const bigramWeight = 0.5

// HashProvider is a deterministic, offline embedder based on feature
// hashing: every lower-cased word token and every adjacent token pair is
// hashed with FNV-1a into one of D buckets, and the bucket counts are
// L2-normalized. Texts that share words land close under cosine similarity.
type HashProvider struct {
	dimensions int
}

func NewHashProvider(dimensions int) (*HashProvider, error) {
	if dimensions < 1 {
		return nil, errors.Errorf("invalid dimensions %d", dimensions)
	}
	return &HashProvider{dimensions: dimensions}, nil
}

func (p *HashProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	acc := make([]float64, p.dimensions)
	tokens := tokenize(text)
	for i, tok := range tokens {
		acc[p.bucket(tok)] += 1
		if i > 0 {
			acc[p.bucket(tokens[i-1]+"_"+tok)] += bigramWeight
		}
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	vec := make([]float32, p.dimensions)
	if norm == 0 {
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec, nil
}

func (p *HashProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided for embedding")
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

func (p *HashProvider) Dimensions() int {
	return p.dimensions
}

func (p *HashProvider) Model() string {
	return HashModel
}

func (p *HashProvider) bucket(feature string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(feature))
	return int(h.Sum32() % uint32(p.dimensions))
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
