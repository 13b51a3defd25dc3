package profile

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	xerrors "agentic-browser/internal/errors"
)

func TestFileStoreReplacesProfile(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	first := FromCollected("u1", map[string]string{"nome": "Ana", "cargo": "Analista", "area": "Riscos"}, now)
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("save: %v", err)
	}
	second := FromCollected("u1", map[string]string{"nome": "Ana Lima", "cargo": "Gerente", "area": "Crédito"}, now.Add(time.Hour))
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(second, got); diff != "" {
		t.Fatalf("profile mismatch (-want +got):\n%s", diff)
	}
	if !store.Exists("u1") || store.Exists("u2") {
		t.Fatal("unexpected existence result")
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, _ := NewFileStore(t.TempDir())
	err := store.Save(context.Background(), &Profile{UserID: "../evil"})
	if !xerrors.IsCode(err, xerrors.CodeInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if _, err := store.Load(context.Background(), "missing"); !xerrors.IsCode(err, xerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDocumentsCarryUserMetadata(t *testing.T) {
	p := FromCollected("u9", map[string]string{"nome": "Bia", "cargo": "Dev", "area": "TI", "sites_frequentes": "intranet"}, time.Now())
	docs := Documents(p, time.Unix(0, 0))
	if len(docs) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(docs))
	}
	categories := []string{}
	for _, d := range docs {
		if d.Metadata["user_id"] != "u9" || d.Metadata["doc_type"] != DocType {
			t.Fatalf("unexpected metadata %v", d.Metadata)
		}
		categories = append(categories, d.Metadata["category"].(string))
	}
	if diff := cmp.Diff([]string{"personal", "professional", "preferences"}, categories); diff != "" {
		t.Fatalf("categories mismatch: %s", diff)
	}
	texts, meta := Split(docs)
	if len(texts) != 3 || len(meta) != 3 {
		t.Fatal("split lost documents")
	}
}

func TestDescribeUsesPlaceholders(t *testing.T) {
	c := ContextOf(FromCollected("u", map[string]string{"nome": "Caio"}, time.Now()), "resumo curto")
	got := c.Describe()
	for _, want := range []string{"Nome: Caio", "Cargo: N/A", "Resumo: resumo curto"} {
		if !strings.Contains(got, want) {
			t.Fatalf("describe %q missing %q", got, want)
		}
	}
}
