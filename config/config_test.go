package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `{
		"providers": {"openai": {"api_key": "sk-test"}},
		"storage": {"postgres": {"url": "postgres://localhost/docqa"}}
	}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected default address %q", cfg.Server.Address)
	}
	if cfg.Server.MaxDocuments != 20 {
		t.Fatalf("unexpected default max_documents %d", cfg.Server.MaxDocuments)
	}
	if cfg.Chunking.MaxChunkTokens != 256 || cfg.Chunking.OverlapTokens != 32 {
		t.Fatalf("unexpected chunking defaults %+v", cfg.Chunking)
	}
	if cfg.Retrieval.TopK != 4 || cfg.Retrieval.MaxContextTokens != 1024 {
		t.Fatalf("unexpected retrieval defaults %+v", cfg.Retrieval)
	}
	if cfg.Generation.MaxRetries != 3 || cfg.Generation.InitialBackoff != 300*time.Millisecond {
		t.Fatalf("unexpected generation defaults %+v", cfg.Generation)
	}
}

func TestLoadConfigRejectsMissingAPIKey(t *testing.T) {
	path := writeConfigFile(t, `{
		"storage": {"postgres": {"url": "postgres://localhost/docqa"}}
	}`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for missing openai api key")
	}
}

func TestLoadConfigRejectsOverlapNotSmallerThanChunk(t *testing.T) {
	path := writeConfigFile(t, `{
		"chunking": {"max_chunk_tokens": 32, "overlap_tokens": 32},
		"providers": {"openai": {"api_key": "sk-test"}},
		"storage": {"postgres": {"url": "postgres://localhost/docqa"}}
	}`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for overlap >= max chunk tokens")
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `{
		"providers": {"openai": {"api_key": "sk-test"}},
		"storage": {"postgres": {"url": "postgres://localhost/docqa"}}
	}`)
	t.Setenv("DOCQA_SERVER_ADDRESS", ":9090")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Address != ":9090" {
		t.Fatalf("env override not applied, got %q", cfg.Server.Address)
	}
}

func TestPostgresDSNFromParts(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: "5432", User: "docqa", Password: "secret", DBName: "docqa"}
	want := "host=db port=5432 user=docqa password=secret dbname=docqa sslmode=disable"
	if got := p.DSN(); got != want {
		t.Fatalf("unexpected DSN %q", got)
	}
}
