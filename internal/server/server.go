// Package server exposes the document QA pipeline over HTTP.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/docqa-io/docqa/config"
	"github.com/docqa-io/docqa/internal/generation"
	"github.com/docqa-io/docqa/internal/ingest"
	"github.com/docqa-io/docqa/internal/pipeline"
	"github.com/docqa-io/docqa/internal/retrieval"
	"github.com/docqa-io/docqa/internal/store"
	"github.com/docqa-io/docqa/models"
	"github.com/docqa-io/docqa/provider"
	"github.com/docqa-io/docqa/provider/openai"

	"github.com/docqa-io/docqa/internal/chunker"
)

// DocumentService is the slice of the pipeline the HTTP handlers need.
type DocumentService interface {
	Ingest(ctx context.Context, text, sourceName string) (models.Document, error)
	Reingest(ctx context.Context, documentID string) (models.Document, error)
	ListDocuments(ctx context.Context, status models.DocumentStatus) ([]models.Document, error)
	Answer(ctx context.Context, question string) (models.Answer, error)
}

// NewEcho builds the echo instance with the shared middleware stack:
// recovery, CORS, a JSON error envelope and request logging.
func NewEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return e
}

// Run loads config, applies migrations, wires the pipeline and serves the
// API until the listener fails.
func Run(configPath, addr string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	if err := Migrate("file://migrations", migrateDSN(cfg.Storage.Postgres), "up", 0); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	ctx := context.Background()
	st, pl, err := BuildPipeline(ctx, cfg)
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Storage.Redis.Addr(),
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
	}

	e := NewEcho()
	api := e.Group("/api")

	auth := &AuthHandler{Store: st, Secret: []byte(cfg.Server.JWTSecret)}
	auth.Register(api.Group("/auth"))

	dh := &DocumentsHandler{
		Service:      pl,
		Locks:        &redisLocker{client: rdb},
		MaxDocuments: cfg.Server.MaxDocuments,
	}
	dh.Register(api.Group("/documents"), auth.Secret)

	qh := &QueryHandler{Service: pl}
	qh.Register(api.Group("/query"), auth.Secret)

	if addr == "" {
		addr = cfg.Server.Address
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

// BuildPipeline wires the store, provider and pipeline from config. The
// CLI uses it for one-shot ingest/ask without an HTTP listener.
func BuildPipeline(ctx context.Context, cfg *config.Config) (*store.Store, *pipeline.Pipeline, error) {
	st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
	if err != nil {
		return nil, nil, err
	}
	prov, err := openai.New(provider.Options{
		APIKey:          cfg.Providers.OpenAI.APIKey,
		BaseURL:         cfg.Providers.OpenAI.BaseURL,
		CompletionModel: cfg.Providers.OpenAI.CompletionModel,
		EmbeddingModel:  cfg.Providers.OpenAI.EmbeddingModel,
		Temperature:     cfg.Providers.OpenAI.Temperature,
		MaxTokens:       cfg.Providers.OpenAI.MaxTokens,
		Timeout:         cfg.Providers.OpenAI.Timeout,
		EmbedRetries:    cfg.Providers.OpenAI.EmbedRetries,
	})
	if err != nil {
		return nil, nil, err
	}
	ch, err := chunker.New(chunker.Config{
		MaxChunkTokens:   cfg.Chunking.MaxChunkTokens,
		OverlapTokens:    cfg.Chunking.OverlapTokens,
		BoundaryLookback: cfg.Chunking.BoundaryLookback,
	})
	if err != nil {
		return nil, nil, err
	}
	coord := ingest.New(ch, prov, st, st, ingest.Config{}, nil)
	retr := retrieval.NewRetriever(st, st, retrieval.Config{
		OverfetchFactor:      cfg.Retrieval.OverfetchFactor,
		MaxChunksPerDocument: cfg.Retrieval.MaxChunksPerDocument,
	}, nil)
	asm, err := retrieval.NewAssembler(cfg.Retrieval.MaxContextTokens)
	if err != nil {
		return nil, nil, err
	}
	orch := generation.New(prov, generation.Config{
		MaxRetries:     cfg.Generation.MaxRetries,
		InitialBackoff: cfg.Generation.InitialBackoff,
	}, nil)
	pl := pipeline.New(prov, coord, retr, asm, orch, st, pipeline.Config{TopK: cfg.Retrieval.TopK}, nil)
	return st, pl, nil
}

// migrateDSN renders the URL form golang-migrate expects.
func migrateDSN(p config.PostgresConfig) string {
	if p.URL != "" {
		return p.URL
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, p.Port, p.DBName, ssl)
}
