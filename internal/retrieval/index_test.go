package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"agentic-browser/internal/embedding"
	xerrors "agentic-browser/internal/errors"
)

func openIndexes(t *testing.T) map[string]Index {
	t.Helper()
	mem, err := NewMemoryIndex(t.TempDir())
	require.NoError(t, err)
	lite, err := OpenSQLiteIndex(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { lite.Close() })
	return map[string]Index{"memory": mem, "sqlite": lite}
}

func TestRoundTripReturnsInsertedTextOnTop(t *testing.T) {
	ctx := context.Background()
	engine := embedding.NewHashEngine(128)
	docs := []string{
		"Cartão de crédito Itaú sem anuidade",
		"Abertura de conta corrente pelo aplicativo",
		"Investimentos em renda fixa e CDB",
	}

	for name, idx := range openIndexes(t) {
		t.Run(name, func(t *testing.T) {
			svc := NewService(engine, idx)
			require.NoError(t, svc.AddTexts(ctx, docs, []map[string]any{{"n": 0}, {"n": 1}, {"n": 2}}))

			for _, doc := range docs {
				results, err := svc.Query(ctx, doc, 3)
				require.NoError(t, err)
				require.NotEmpty(t, results)
				require.Equal(t, doc, results[0].Text)
				for _, r := range results[1:] {
					require.GreaterOrEqual(t, results[0].Score, r.Score)
				}
			}

			stats, err := idx.Stats(ctx)
			require.NoError(t, err)
			require.Equal(t, 3, stats.Documents)
			require.Equal(t, 128, stats.Dimensions)
		})
	}
}

func TestAddRejectsDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	for name, idx := range openIndexes(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, idx.Add(ctx, [][]float32{{1, 0}}, []string{"a"}, nil))
			err := idx.Add(ctx, [][]float32{{1, 0, 0}}, []string{"b"}, nil)
			require.True(t, xerrors.IsCode(err, xerrors.CodeInvalidArgument))

			_, err = idx.Search(ctx, []float32{1, 0, 0}, 1)
			require.Error(t, err)

			require.NoError(t, idx.Clear(ctx))
			results, err := idx.Search(ctx, []float32{1, 0}, 1)
			require.NoError(t, err)
			require.Empty(t, results)
		})
	}
}

func TestScoresAreCosine(t *testing.T) {
	ctx := context.Background()
	idx, err := NewMemoryIndex("")
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, [][]float32{{10, 0}, {0, 3}}, []string{"x", "y"}, nil))

	results, err := idx.Search(ctx, []float32{2, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "x", results[0].Text)
	require.InDelta(t, 1.0, results[0].Score, 1e-6)
	require.InDelta(t, 0.0, results[1].Score, 1e-6)
}

func TestMemoryIndexRestoresSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := NewMemoryIndex(dir)
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, [][]float32{{1, 1}}, []string{"persistido"}, []map[string]any{{"user_id": "u1"}}))

	reopened, err := NewMemoryIndex(dir)
	require.NoError(t, err)
	results, err := reopened.Search(ctx, []float32{1, 1}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "persistido", results[0].Text)
	require.Equal(t, "u1", results[0].Metadata["user_id"])
}

func TestFilterKeepsScoresAboveThreshold(t *testing.T) {
	got := Filter([]Result{{Text: "a", Score: 0.9}, {Text: "b", Score: 0.3}, {Text: "c", Score: 0.1}}, 0.3)
	require.Len(t, got, 1)
	require.Equal(t, "a", got[0].Text)
}
