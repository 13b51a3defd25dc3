package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/genai"

	xerrors "agentic-browser/internal/errors"
)

func TestHashEngineIsDeterministic(t *testing.T) {
	engine := NewHashEngine(64)
	a, _ := engine.Embed(context.Background(), "Cartão de crédito Itaú")
	b, _ := engine.Embed(context.Background(), "cartão de CRÉDITO itaú")
	if len(a) != 64 {
		t.Fatalf("unexpected dimensions: %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d", i)
		}
	}
	if IsZero(a) {
		t.Fatal("non-empty text should not embed to zero")
	}
}

func TestHashEngineEmptyTextIsZero(t *testing.T) {
	vec, err := NewHashEngine(0).Embed(context.Background(), "  ?! ")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != defaultHashDimensions || !IsZero(vec) {
		t.Fatal("expected zero vector with default dimensions")
	}
}

func TestNormalizeHandlesZeroNorm(t *testing.T) {
	if out := Normalize([]float32{0, 0}); !IsZero(out) {
		t.Fatalf("unexpected %v", out)
	}
	out := Normalize([]float32{3, 4})
	if math.Abs(float64(out[0])-0.6) > 1e-6 || math.Abs(float64(out[1])-0.8) > 1e-6 {
		t.Fatalf("unexpected normalized vector %v", out)
	}
	if _, err := Dot([]float32{1}, []float32{1, 2}); err == nil {
		t.Fatal("expected dimension mismatch")
	}
}

func TestOllamaEngineEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			http.NotFound(w, r)
			return
		}
		var req ollamaEmbedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "embeddinggemma" {
			t.Errorf("unexpected model %q", req.Model)
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{0.1, 0.2}})
	}))
	defer srv.Close()

	engine, err := NewOllamaEngine(srv.URL+"/", "", 2)
	if err != nil {
		t.Fatal(err)
	}
	vecs, err := engine.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	if len(vecs) != 2 || vecs[1][1] != 0.2 {
		t.Fatalf("unexpected vectors %v", vecs)
	}
}

func TestNewEngineRejectsUnknownProvider(t *testing.T) {
	if _, err := NewEngine(context.Background(), Config{Provider: "word2vec"}); !xerrors.IsCode(err, xerrors.CodeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, err := NewEngine(context.Background(), Config{Provider: "python_bridge", ScriptPath: "embed.py"}); !xerrors.IsCode(err, xerrors.CodeConfiguration) {
		t.Fatalf("expected configuration error for missing model, got %v", err)
	}
}

func TestParseTaskType(t *testing.T) {
	cases := map[string]string{
		"retrieval_query":    "RETRIEVAL_QUERY",
		" CLASSIFICATION ":   "CLASSIFICATION",
		"":                   "SEMANTIC_SIMILARITY",
		"SOMETHING_ELSE":     "SEMANTIC_SIMILARITY",
		"RETRIEVAL_DOCUMENT": "RETRIEVAL_DOCUMENT",
	}
	for raw, want := range cases {
		if got := parseTaskType(raw); got != want {
			t.Errorf("parseTaskType(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestGenAIEngineSendsTaskType(t *testing.T) {
	var body struct {
		Requests []struct {
			TaskType             string `json:"taskType"`
			OutputDimensionality int    `json:"outputDimensionality"`
		} `json:"requests"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embeddings":[{"values":[0.5,0.25]},{"values":[1,0]}]}`))
	}))
	defer srv.Close()

	engine, err := newGenAIEngine(context.Background(), &genai.ClientConfig{
		APIKey:      "test-key",
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: srv.URL + "/"},
	}, "gemini-embedding-001", "retrieval_query")
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	vecs, err := engine.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("embed batch: %v", err)
	}
	if len(vecs) != 2 || vecs[0][0] != 0.5 || vecs[1][0] != 1 {
		t.Fatalf("unexpected vectors: %v", vecs)
	}
	if len(body.Requests) != 2 || body.Requests[0].TaskType != "RETRIEVAL_QUERY" || body.Requests[0].OutputDimensionality != 768 {
		t.Fatalf("unexpected request body: %+v", body)
	}
}
