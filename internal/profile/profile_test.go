package profile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEmbeddingProfileDefaults checks the defaults applied when no variable is set.
func TestEmbeddingProfileDefaults(t *testing.T) {
	clearEnvVars(t)

	profile := &Profile{}
	profile.FromEnv()

	assert.Equal(t, "hash", profile.EmbeddingProvider)
	assert.Equal(t, "fnv1a-hash", profile.EmbeddingModel)
	assert.Equal(t, 30, profile.EmbeddingTimeout)
	assert.Equal(t, 1000, profile.FetchBatchSize)
	assert.Equal(t, 1000, profile.UpsertBatchSize)
	assert.Equal(t, 4, profile.EmbedConcurrency)
	assert.Equal(t, 64, profile.EmbedChunkSize)
	assert.Equal(t, 3, profile.RetryMaxAttempts)
	assert.Equal(t, 256, profile.QueryCacheSize)
	assert.Zero(t, profile.EmbeddingRPS)
}

func TestEmbeddingProfileFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		field    func(*Profile) string
		expected string
	}{
		{
			name:     "siliconflow fills base url",
			env:      map[string]string{"CINESENSE_EMBEDDING_PROVIDER": "siliconflow"},
			field:    func(p *Profile) string { return p.EmbeddingBaseURL },
			expected: "https://api.siliconflow.cn/v1",
		},
		{
			name:     "siliconflow fills model",
			env:      map[string]string{"CINESENSE_EMBEDDING_PROVIDER": "siliconflow"},
			field:    func(p *Profile) string { return p.EmbeddingModel },
			expected: "BAAI/bge-m3",
		},
		{
			name: "explicit model wins",
			env: map[string]string{
				"CINESENSE_EMBEDDING_PROVIDER": "openai",
				"CINESENSE_EMBEDDING_MODEL":    "text-embedding-3-large",
			},
			field:    func(p *Profile) string { return p.EmbeddingModel },
			expected: "text-embedding-3-large",
		},
		{
			name:     "unknown provider falls back to hash",
			env:      map[string]string{"CINESENSE_EMBEDDING_PROVIDER": "nope"},
			field:    func(p *Profile) string { return p.EmbeddingProvider },
			expected: "hash",
		},
		{
			name:     "api key",
			env:      map[string]string{"CINESENSE_EMBEDDING_API_KEY": "sk-test"},
			field:    func(p *Profile) string { return p.EmbeddingAPIKey },
			expected: "sk-test",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			profile := &Profile{}
			profile.FromEnv()
			assert.Equal(t, tt.expected, tt.field(profile))
		})
	}
}

func TestEnvNumbers(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("CINESENSE_UPSERT_BATCH_SIZE", "250")
	t.Setenv("CINESENSE_FETCH_BATCH_SIZE", "not-a-number")
	t.Setenv("CINESENSE_EMBEDDING_RPS", "2.5")

	profile := &Profile{}
	profile.FromEnv()
	assert.Equal(t, 250, profile.UpsertBatchSize)
	assert.Equal(t, 1000, profile.FetchBatchSize)
	assert.Equal(t, 2.5, profile.EmbeddingRPS)
}

func TestValidate(t *testing.T) {
	newProfile := func(t *testing.T) *Profile {
		clearEnvVars(t)
		p := &Profile{
			Mode:           "dev",
			Driver:         "sqlite",
			Data:           t.TempDir(),
			IndexName:      "movies",
			IndexDimension: 384,
		}
		p.FromEnv()
		return p
	}

	t.Run("sqlite dsn derived from data dir", func(t *testing.T) {
		p := newProfile(t)
		p.CatalogPath = "movie_dataset.csv"
		require.NoError(t, p.Validate())
		assert.Equal(t, filepath.Join(p.Data, "cinesense_dev.db"), p.DSN)
		assert.Equal(t, "cosine", p.IndexMetric)
		assert.Equal(t, filepath.Join(p.Data, "movie_dataset.csv"), p.CatalogPath)
		assert.Equal(t, p.CatalogPath, p.RatingsPath)
	})

	t.Run("badger dsn derived from data dir", func(t *testing.T) {
		p := newProfile(t)
		p.Driver = "badger"
		require.NoError(t, p.Validate())
		assert.Equal(t, filepath.Join(p.Data, "cinesense_dev.badger"), p.DSN)
	})

	t.Run("unknown mode becomes demo", func(t *testing.T) {
		p := newProfile(t)
		p.Mode = "staging"
		require.NoError(t, p.Validate())
		assert.Equal(t, "demo", p.Mode)
		assert.True(t, p.IsDev())
	})

	t.Run("postgres requires dsn", func(t *testing.T) {
		p := newProfile(t)
		p.Driver = "postgres"
		assert.Error(t, p.Validate())
	})

	t.Run("unknown driver", func(t *testing.T) {
		p := newProfile(t)
		p.Driver = "pinecone"
		assert.Error(t, p.Validate())
	})

	t.Run("missing data dir", func(t *testing.T) {
		p := newProfile(t)
		p.Data = filepath.Join(p.Data, "does-not-exist")
		assert.Error(t, p.Validate())
	})

	t.Run("bad metric", func(t *testing.T) {
		p := newProfile(t)
		p.IndexMetric = "manhattan"
		assert.Error(t, p.Validate())
	})
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CINESENSE_EMBEDDING_PROVIDER",
		"CINESENSE_EMBEDDING_MODEL",
		"CINESENSE_EMBEDDING_API_KEY",
		"CINESENSE_EMBEDDING_BASE_URL",
		"CINESENSE_EMBEDDING_TIMEOUT_SECONDS",
		"CINESENSE_EMBEDDING_RPS",
		"CINESENSE_FETCH_BATCH_SIZE",
		"CINESENSE_UPSERT_BATCH_SIZE",
		"CINESENSE_EMBED_CONCURRENCY",
		"CINESENSE_EMBED_CHUNK_SIZE",
		"CINESENSE_RETRY_MAX_ATTEMPTS",
		"CINESENSE_QUERY_CACHE_SIZE",
	} {
		t.Setenv(key, "")
	}
}
