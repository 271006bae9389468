package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/cinesense/ai/metrics"
	"github.com/hrygo/cinesense/internal/retry"
	"github.com/hrygo/cinesense/store"
)

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, Multiplier: 2}
}

func TestNewEmbeddingService_Hash(t *testing.T) {
	svc, err := NewEmbeddingService(&EmbeddingConfig{Provider: "hash", Dimensions: 16}, fastPolicy())
	require.NoError(t, err)
	assert.Equal(t, 16, svc.Dimensions())
	assert.Equal(t, "fnv1a-hash", svc.Model())

	v, err := svc.Embed(context.Background(), "Toy Story")
	require.NoError(t, err)
	assert.Len(t, v, 16)
}

func TestNewEmbeddingService_Errors(t *testing.T) {
	_, err := NewEmbeddingService(&EmbeddingConfig{Provider: "pinecone", Dimensions: 16}, fastPolicy())
	assert.Error(t, err)

	_, err = NewEmbeddingService(&EmbeddingConfig{Provider: "hash"}, fastPolicy())
	assert.Error(t, err)
}

func embeddingServer(t *testing.T, dim int, failures int32, failStatus int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if n <= failures {
			w.WriteHeader(failStatus)
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		var req struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": make([]float32, dim)}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestEmbeddingService_RetriesServerErrors(t *testing.T) {
	srv, calls := embeddingServer(t, 8, 2, http.StatusInternalServerError)
	exporter := metrics.NewPrometheusExporter(metrics.DefaultConfig())

	svc, err := NewEmbeddingService(&EmbeddingConfig{
		Provider:   "siliconflow",
		Model:      "BAAI/bge-m3",
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		Dimensions: 8,
	}, fastPolicy(), WithEmbeddingMetrics(exporter))
	require.NoError(t, err)

	vectors, err := svc.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
	assert.Equal(t, int32(3), calls.Load())

	text, err := exporter.ExportText()
	require.NoError(t, err)
	assert.Contains(t, text, `cinesense_embedding_requests_total{model="BAAI/bge-m3",status="error"} 2`)
}

func TestEmbeddingService_ClientErrorIsPermanent(t *testing.T) {
	srv, calls := embeddingServer(t, 8, 10, http.StatusBadRequest)

	svc, err := NewEmbeddingService(&EmbeddingConfig{
		Provider:   "openai",
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		Dimensions: 8,
	}, fastPolicy())
	require.NoError(t, err)

	_, err = svc.Embed(context.Background(), "a")
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbeddingService_DimensionMismatch(t *testing.T) {
	srv, calls := embeddingServer(t, 4, 0, 0)

	svc, err := NewEmbeddingService(&EmbeddingConfig{
		Provider:   "ollama",
		BaseURL:    srv.URL,
		Dimensions: 8,
	}, fastPolicy())
	require.NoError(t, err)

	_, err = svc.Embed(context.Background(), "a")
	assert.ErrorIs(t, err, store.ErrDimensionMismatch)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbeddingService_RateLimitHonoursContext(t *testing.T) {
	svc, err := NewEmbeddingService(&EmbeddingConfig{Provider: "hash", Dimensions: 4, RequestsPerSecond: 0.001}, fastPolicy())
	require.NoError(t, err)

	_, err = svc.Embed(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = svc.Embed(ctx, "second")
	assert.Error(t, err)
}

func TestEmbeddingService_EmptyBatch(t *testing.T) {
	svc, err := NewEmbeddingService(&EmbeddingConfig{Provider: "hash", Dimensions: 4}, fastPolicy())
	require.NoError(t, err)
	_, err = svc.EmbedBatch(context.Background(), nil)
	assert.Error(t, err)
}
