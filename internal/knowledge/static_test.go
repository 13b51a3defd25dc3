package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"agentic-browser/internal/embedding"
	"agentic-browser/internal/retrieval"
)

func newService(t *testing.T) *retrieval.Service {
	t.Helper()
	idx, err := retrieval.NewMemoryIndex(t.TempDir())
	if err != nil {
		t.Fatalf("new memory index: %v", err)
	}
	return retrieval.NewService(embedding.NewHashEngine(64), idx)
}

func TestSeedFileSkipsPopulatedIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knowledge.json")
	payload := `[
  {"title": "CVM", "content": "Resoluções da Comissão de Valores Mobiliários", "source": "gov.br/cvm", "tags": ["regulatorio"]},
  {"title": "", "content": ""},
  {"title": "B3", "content": "Regras de listagem da bolsa"}
]`
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatalf("write knowledge file: %v", err)
	}

	svc := newService(t)
	ctx := context.Background()

	n, err := SeedFile(ctx, svc, path)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 seeded documents, got %d", n)
	}

	n, err = SeedFile(ctx, svc, path)
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if n != 0 {
		t.Fatalf("populated index should be skipped, got %d", n)
	}

	stats, err := svc.Index().Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Documents != 2 {
		t.Fatalf("unexpected document count: %d", stats.Documents)
	}

	results, err := svc.Query(ctx, "CVM: Resoluções da Comissão de Valores Mobiliários", 1)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 1 || results[0].Metadata["source"] != "gov.br/cvm" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestSeedFileWithoutPath(t *testing.T) {
	n, err := SeedFile(context.Background(), newService(t), " ")
	if err != nil || n != 0 {
		t.Fatalf("expected no-op, got %d %v", n, err)
	}
}
