package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/docqa-io/docqa/internal/generation"
	"github.com/docqa-io/docqa/models"
	"github.com/docqa-io/docqa/provider"
)

// ingestLockTTL bounds how long a stuck ingestion can hold its lock.
const ingestLockTTL = 5 * time.Minute

// Locker serializes re-ingestion per document.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type redisLocker struct {
	client *redis.Client
}

func (l *redisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, "1", ttl).Result()
}

func (l *redisLocker) Release(ctx context.Context, key string) error {
	return l.client.Del(ctx, key).Err()
}

type DocumentsHandler struct {
	Service      DocumentService
	Locks        Locker
	MaxDocuments int
}

func (h *DocumentsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	g.GET("", h.list)
	g.POST("", h.ingest)
	g.POST("/:id/reingest", h.reingest)
}

func (h *DocumentsHandler) list(c echo.Context) error {
	status := models.DocumentStatus(c.QueryParam("status"))
	docs, err := h.Service.ListDocuments(c.Request().Context(), status)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]DocumentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, toDocumentResponse(d))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *DocumentsHandler) ingest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.SourceName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "source_name required")
	}

	ctx := c.Request().Context()
	docs, err := h.Service.ListDocuments(ctx, "")
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if h.MaxDocuments > 0 && len(docs) >= h.MaxDocuments {
		return echo.NewHTTPError(http.StatusConflict, "document limit reached")
	}

	doc, err := h.Service.Ingest(ctx, req.Text, req.SourceName)
	if err != nil {
		documentsIngested.WithLabelValues("failed").Inc()
		return ingestError(err)
	}
	documentsIngested.WithLabelValues("indexed").Inc()
	chunksIndexed.Add(float64(doc.ChunkCount))
	return c.JSON(http.StatusCreated, toDocumentResponse(doc))
}

func (h *DocumentsHandler) reingest(c echo.Context) error {
	id := c.Param("id")
	ctx := c.Request().Context()

	key := "ingest:lock:" + id
	ok, err := h.Locks.Acquire(ctx, key, ingestLockTTL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusConflict, "ingestion already in progress")
	}
	defer func() { _ = h.Locks.Release(ctx, key) }()

	doc, err := h.Service.Reingest(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "document not found")
		}
		documentsIngested.WithLabelValues("failed").Inc()
		return ingestError(err)
	}
	documentsIngested.WithLabelValues("indexed").Inc()
	chunksIndexed.Add(float64(doc.ChunkCount))
	return c.JSON(http.StatusOK, toDocumentResponse(doc))
}

// ingestError maps pipeline failures onto status codes. Embedding outages
// are retryable; bad input is the caller's fault.
func ingestError(err error) error {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, provider.ErrEmbeddingUnavailable), errors.Is(err, generation.ErrUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func toDocumentResponse(d models.Document) DocumentResponse {
	return DocumentResponse{
		ID:         d.ID,
		SourceName: d.SourceName,
		PageCount:  d.PageCount,
		Status:     string(d.Status),
		ChunkCount: d.ChunkCount,
		CreatedAt:  d.CreatedAt,
	}
}
