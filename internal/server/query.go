package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/docqa-io/docqa/internal/generation"
	"github.com/docqa-io/docqa/internal/retrieval"
	"github.com/docqa-io/docqa/models"
	"github.com/docqa-io/docqa/provider"
)

type QueryHandler struct {
	Service DocumentService
}

func (h *QueryHandler) Register(g *echo.Group, secret []byte) {
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	g.POST("", h.query)
}

func (h *QueryHandler) query(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ans, err := h.Service.Answer(c.Request().Context(), req.Question)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidInput):
			queriesTotal.WithLabelValues("invalid").Inc()
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, generation.ErrUnavailable), errors.Is(err, provider.ErrEmbeddingUnavailable):
			// Distinguishable from terminal failures so clients can retry.
			queriesTotal.WithLabelValues("unavailable").Inc()
			return c.JSON(http.StatusServiceUnavailable, RetryableError{Error: err.Error(), Retryable: true})
		case errors.Is(err, retrieval.ErrContextTooSmall):
			// Misconfiguration, not a data problem; retrying cannot help.
			queriesTotal.WithLabelValues("misconfigured").Inc()
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		default:
			queriesTotal.WithLabelValues("error").Inc()
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	if len(ans.Sources) == 0 {
		queriesTotal.WithLabelValues("no_results").Inc()
	} else {
		queriesTotal.WithLabelValues("answered").Inc()
	}
	return c.JSON(http.StatusOK, QueryResponse{Answer: ans.Text, Sources: ans.Sources})
}
