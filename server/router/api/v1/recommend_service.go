package v1

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/cinesense/ai/core/recommend"
	"github.com/hrygo/cinesense/ai/core/retrieval"
	"github.com/hrygo/cinesense/internal/validation"
)

const (
	defaultTopK = 5

	CodeEmptyQuery        = "EMPTY_QUERY"
	CodeValidationError   = "VALIDATION_ERROR"
	CodeNoRecommendations = "NO_RECOMMENDATIONS"
	CodeRetrievalFailed   = "RETRIEVAL_FAILED"
	CodeInternal          = "INTERNAL"
)

type RecommendRequest struct {
	Query     string  `query:"query"`
	TopK      int     `query:"top_k" validate:"gte=1,lte=20"`
	Genre     string  `query:"genre" validate:"max=64"`
	MinRating float64 `query:"min_rating" validate:"gte=0,lte=5"`
}

type RecommendResponse struct {
	Query   string                     `json:"query"`
	Results []recommend.Recommendation `json:"results"`
}

type ErrorResponse struct {
	Code    string                  `json:"code"`
	Message string                  `json:"message"`
	Details []validation.FieldError `json:"details,omitempty"`
}

// Recommend handles GET /api/v1/recommend.
func (s *APIV1Service) Recommend(c echo.Context) error {
	ctx := c.Request().Context()
	logger := slog.Default().With(slog.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)))

	req := RecommendRequest{TopK: defaultTopK}
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    CodeValidationError,
			Message: "invalid query parameters",
		})
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    CodeEmptyQuery,
			Message: "query must not be empty",
		})
	}
	if err := validation.Struct(req); err != nil {
		resp := ErrorResponse{Code: CodeValidationError, Message: err.Error()}
		var verr *validation.Error
		if errors.As(err, &verr) {
			resp.Details = verr.Fields
		}
		return c.JSON(http.StatusBadRequest, resp)
	}

	results, err := s.Recommender.Recommend(ctx, req.Query, recommend.FilterCriteria{
		GenreFilter: req.Genre,
		MinRating:   req.MinRating,
		TopN:        req.TopK,
	})
	if err != nil {
		var retrievalErr *retrieval.RetrievalError
		switch {
		case errors.As(err, &retrievalErr):
			logger.WarnContext(ctx, "retrieval failed", slog.String("op", retrievalErr.Op), slog.String("error", err.Error()))
			return c.JSON(http.StatusBadGateway, ErrorResponse{
				Code:    CodeRetrievalFailed,
				Message: "movie retrieval failed, please retry",
			})
		case errors.Is(err, recommend.ErrInvalidCriteria):
			return c.JSON(http.StatusBadRequest, ErrorResponse{Code: CodeValidationError, Message: err.Error()})
		default:
			logger.ErrorContext(ctx, "recommendation failed", slog.String("error", err.Error()))
			return c.JSON(http.StatusInternalServerError, ErrorResponse{Code: CodeInternal, Message: "internal error"})
		}
	}

	if len(results) == 0 {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    CodeNoRecommendations,
			Message: "no movies matched the query and filters",
		})
	}
	return c.JSON(http.StatusOK, RecommendResponse{Query: req.Query, Results: results})
}
