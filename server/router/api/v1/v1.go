package v1

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/cinesense/ai/cache"
	"github.com/hrygo/cinesense/ai/core/recommend"
	"github.com/hrygo/cinesense/ai/metrics"
	"github.com/hrygo/cinesense/internal/profile"
	"github.com/hrygo/cinesense/store"
)

// Recommender answers recommendation queries.
type Recommender interface {
	Recommend(ctx context.Context, query string, criteria recommend.FilterCriteria) ([]recommend.Recommendation, error)
}

// QueryCacheReporter is implemented by recommenders that cache query
// embeddings.
type QueryCacheReporter interface {
	QueryCacheStats() (cache.Stats, bool)
}

// IndexDescriber reports vector index statistics for health checks.
type IndexDescriber interface {
	DescribeIndex(ctx context.Context) (*store.IndexStats, error)
}

type APIV1Service struct {
	Profile     *profile.Profile
	Recommender Recommender
	Index       IndexDescriber
	Metrics     *metrics.PrometheusExporter
}

func NewAPIV1Service(profile *profile.Profile, recommender Recommender, index IndexDescriber, exporter *metrics.PrometheusExporter) *APIV1Service {
	return &APIV1Service{
		Profile:     profile,
		Recommender: recommender,
		Index:       index,
		Metrics:     exporter,
	}
}

// RegisterRoutes registers the REST endpoints on echoServer.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo) {
	corsHandler := middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOriginFunc: func(_ string) (bool, error) {
			return true, nil
		},
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"*"},
	})

	echoServer.GET("/", s.Welcome)
	echoServer.GET("/healthz", s.Healthz)
	// Unversioned alias kept for clients of the original endpoint.
	echoServer.GET("/recommend", s.Recommend, corsHandler)

	apiGroup := echoServer.Group("/api/v1", corsHandler)
	apiGroup.GET("/recommend", s.Recommend)

	if s.Metrics != nil {
		echoServer.GET("/metrics", echo.WrapHandler(s.Metrics))
	}
}
