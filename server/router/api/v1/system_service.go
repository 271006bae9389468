package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/cinesense/ai/cache"
	"github.com/hrygo/cinesense/store"
)

type welcomeResponse struct {
	Message string `json:"message"`
	Version string `json:"version,omitempty"`
}

type healthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version,omitempty"`
	Index      *store.IndexStats `json:"index,omitempty"`
	QueryCache *cache.Stats      `json:"queryCache,omitempty"`
	Error      string            `json:"error,omitempty"`
}

func (s *APIV1Service) version() string {
	if s.Profile == nil {
		return ""
	}
	return s.Profile.Version
}

func (s *APIV1Service) Welcome(c echo.Context) error {
	return c.JSON(http.StatusOK, welcomeResponse{
		Message: "Welcome to CineSense. Try GET /api/v1/recommend?query=space+adventure",
		Version: s.version(),
	})
}

// Healthz reports the index statistics and query cache counters, or 503
// when the index is unreachable.
func (s *APIV1Service) Healthz(c echo.Context) error {
	resp := healthResponse{Status: "ok", Version: s.version()}
	if reporter, ok := s.Recommender.(QueryCacheReporter); ok {
		if stats, ok := reporter.QueryCacheStats(); ok {
			resp.QueryCache = &stats
		}
	}
	if s.Index == nil {
		return c.JSON(http.StatusOK, resp)
	}

	stats, err := s.Index.DescribeIndex(c.Request().Context())
	if err != nil {
		resp.Status = "unavailable"
		resp.Error = err.Error()
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	resp.Index = stats
	return c.JSON(http.StatusOK, resp)
}
