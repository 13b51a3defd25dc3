package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"agentic-browser/internal/embedding"
	xerrors "agentic-browser/internal/errors"
)

const snapshotFile = "vectors.json"

// MemoryIndex 在内存中保存归一化向量，可选地将快照持久化到索引目录。
type MemoryIndex struct {
	mu       sync.RWMutex
	dir      string
	dims     int
	vectors  [][]float32
	texts    []string
	metadata []map[string]any
}

type snapshot struct {
	Dimensions int              `json:"dimensions"`
	Vectors    [][]float32      `json:"vectors"`
	Texts      []string         `json:"texts"`
	Metadata   []map[string]any `json:"metadata"`
}

// NewMemoryIndex 创建内存索引；dir 非空时从快照恢复并在每次写入后落盘。
func NewMemoryIndex(dir string) (*MemoryIndex, error) {
	idx := &MemoryIndex{dir: dir}
	if dir == "" {
		return idx, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "创建索引目录失败")
	}

	raw, err := os.ReadFile(filepath.Join(dir, snapshotFile))
	if errors.Is(err, os.ErrNotExist) {
		return idx, nil
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取索引快照失败")
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析索引快照失败")
	}
	idx.dims = snap.Dimensions
	idx.vectors = snap.Vectors
	idx.texts = snap.Texts
	idx.metadata = snap.Metadata
	if len(idx.metadata) != len(idx.texts) {
		idx.metadata = make([]map[string]any, len(idx.texts))
	}
	return idx, nil
}

// Add 实现 Index 接口。
func (m *MemoryIndex) Add(_ context.Context, vectors [][]float32, texts []string, metadata []map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dims, err := validateAdd(vectors, texts, metadata, m.dims)
	if err != nil {
		return err
	}
	for i, vec := range vectors {
		m.vectors = append(m.vectors, embedding.Normalize(vec))
		m.texts = append(m.texts, texts[i])
		var meta map[string]any
		if metadata != nil {
			meta = copyMeta(metadata[i])
		}
		m.metadata = append(m.metadata, meta)
	}
	m.dims = dims
	return m.persistLocked()
}

// Search 实现 Index 接口。
func (m *MemoryIndex) Search(_ context.Context, vector []float32, k int) ([]Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if k <= 0 || len(m.vectors) == 0 {
		return nil, nil
	}
	if len(vector) != m.dims {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "查询向量维度与索引不一致")
	}
	hits, err := rank(vector, m.vectors, k)
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		out = append(out, Result{Text: m.texts[h.pos], Score: h.score, Metadata: copyMeta(m.metadata[h.pos])})
	}
	return out, nil
}

// Stats 实现 Index 接口。
func (m *MemoryIndex) Stats(context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{Documents: len(m.texts), Dimensions: m.dims, Backend: "memory"}, nil
}

// Clear 清空索引及快照。
func (m *MemoryIndex) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dims = 0
	m.vectors, m.texts, m.metadata = nil, nil, nil
	return m.persistLocked()
}

func (m *MemoryIndex) persistLocked() error {
	if m.dir == "" {
		return nil
	}
	raw, err := json.Marshal(snapshot{Dimensions: m.dims, Vectors: m.vectors, Texts: m.texts, Metadata: m.metadata})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化索引快照失败")
	}
	tmp, err := os.CreateTemp(m.dir, snapshotFile+".*")
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建索引快照失败")
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入索引快照失败")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入索引快照失败")
	}
	if err := os.Rename(tmp.Name(), filepath.Join(m.dir, snapshotFile)); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "替换索引快照失败")
	}
	return nil
}
