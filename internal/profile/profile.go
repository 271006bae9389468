package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/cinesense/internal/validation"
)

// Profile is configuration to start the service and the offline commands.
type Profile struct {
	// Server
	Mode     string `validate:"oneof=demo dev prod"`
	Addr     string
	Port     int    `validate:"gte=0,lte=65535"`
	LogLevel string `validate:"omitempty,oneof=debug info warn error"`
	Version  string

	// Vector index store
	Driver         string `validate:"oneof=memory sqlite badger postgres"`
	DSN            string
	Data           string
	IndexName      string `validate:"required,max=63"`
	IndexDimension int    `validate:"gte=1,lte=16000"`
	IndexMetric    string `validate:"oneof=cosine dotproduct euclidean"`

	// Catalog inputs
	CatalogPath string
	RatingsPath string

	// Embedding configuration (OpenAI-compatible protocol, or the local hash embedder)
	EmbeddingProvider string `validate:"oneof=openai siliconflow ollama hash"`
	EmbeddingModel    string
	EmbeddingAPIKey   string
	EmbeddingBaseURL  string
	EmbeddingTimeout  int     `validate:"gte=1"` // seconds
	EmbeddingRPS      float64 `validate:"gte=0"` // 0 disables rate limiting

	// Indexing and retrieval tuning
	FetchBatchSize   int `validate:"gte=1,lte=10000"`
	UpsertBatchSize  int `validate:"gte=1,lte=10000"`
	EmbedConcurrency int `validate:"gte=1,lte=64"`
	EmbedChunkSize   int `validate:"gte=1,lte=2048"` // texts per embeddings request
	RetryMaxAttempts int `validate:"gte=1,lte=10"`
	QueryCacheSize   int `validate:"gte=0"`
}

// Provider default configurations for embeddings.
// Used when the base URL or model is not explicitly set.
var embeddingProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "text-embedding-3-small",
	},
	"siliconflow": {
		BaseURL: "https://api.siliconflow.cn/v1",
		Model:   "BAAI/bge-m3",
	},
	"ollama": {
		BaseURL: "http://localhost:11434/v1",
		Model:   "all-minilm",
	},
	"hash": {
		Model: "fnv1a-hash",
	},
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// FromEnv loads embedding and indexing configuration from environment variables.
func (p *Profile) FromEnv() {
	p.EmbeddingProvider = getEnvOrDefault("CINESENSE_EMBEDDING_PROVIDER", "hash")
	p.EmbeddingModel = getEnvOrDefault("CINESENSE_EMBEDDING_MODEL", "")
	p.EmbeddingAPIKey = getEnvOrDefault("CINESENSE_EMBEDDING_API_KEY", "")
	p.EmbeddingBaseURL = getEnvOrDefault("CINESENSE_EMBEDDING_BASE_URL", "")
	p.EmbeddingTimeout = getEnvOrDefaultInt("CINESENSE_EMBEDDING_TIMEOUT_SECONDS", 30)
	p.EmbeddingRPS = getEnvOrDefaultFloat("CINESENSE_EMBEDDING_RPS", 0)

	if _, ok := embeddingProviderDefaults[p.EmbeddingProvider]; !ok {
		slog.Warn("Unknown embedding provider, using default: hash", "provider", p.EmbeddingProvider)
		p.EmbeddingProvider = "hash"
	}
	defaults := embeddingProviderDefaults[p.EmbeddingProvider]
	if p.EmbeddingBaseURL == "" {
		p.EmbeddingBaseURL = defaults.BaseURL
	}
	if p.EmbeddingModel == "" {
		p.EmbeddingModel = defaults.Model
	}

	p.FetchBatchSize = getEnvOrDefaultInt("CINESENSE_FETCH_BATCH_SIZE", 1000)
	p.UpsertBatchSize = getEnvOrDefaultInt("CINESENSE_UPSERT_BATCH_SIZE", 1000)
	p.EmbedConcurrency = getEnvOrDefaultInt("CINESENSE_EMBED_CONCURRENCY", 4)
	p.EmbedChunkSize = getEnvOrDefaultInt("CINESENSE_EMBED_CHUNK_SIZE", 64)
	p.RetryMaxAttempts = getEnvOrDefaultInt("CINESENSE_RETRY_MAX_ATTEMPTS", 3)
	p.QueryCacheSize = getEnvOrDefaultInt("CINESENSE_QUERY_CACHE_SIZE", 256)
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}
	if p.IndexMetric == "" {
		p.IndexMetric = "cosine"
	}

	if err := validation.Struct(p); err != nil {
		return errors.Wrap(err, "invalid profile")
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "cinesense")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/cinesense"
		}
	}
	if p.Data == "" {
		p.Data = "."
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	switch p.Driver {
	case "sqlite":
		if p.DSN == "" {
			p.DSN = filepath.Join(dataDir, fmt.Sprintf("cinesense_%s.db", p.Mode))
		}
	case "badger":
		if p.DSN == "" {
			p.DSN = filepath.Join(dataDir, fmt.Sprintf("cinesense_%s.badger", p.Mode))
		}
	case "postgres":
		if p.DSN == "" {
			return errors.New("postgres driver requires a DSN")
		}
	}

	if p.CatalogPath != "" && !filepath.IsAbs(p.CatalogPath) {
		p.CatalogPath = filepath.Join(dataDir, p.CatalogPath)
	}
	if p.RatingsPath == "" {
		p.RatingsPath = p.CatalogPath
	} else if !filepath.IsAbs(p.RatingsPath) {
		p.RatingsPath = filepath.Join(dataDir, p.RatingsPath)
	}

	return nil
}
