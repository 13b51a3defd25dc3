package retrieval

import (
	"context"

	"agentic-browser/internal/embedding"
	xerrors "agentic-browser/internal/errors"
)

// Service 组合向量化引擎与索引，提供按文本写入与检索的便捷方法。
type Service struct {
	engine embedding.Engine
	index  Index
}

// NewService 创建检索服务。
func NewService(engine embedding.Engine, index Index) *Service {
	return &Service{engine: engine, index: index}
}

// Engine 返回底层向量化引擎。
func (s *Service) Engine() embedding.Engine { return s.engine }

// Index 返回底层索引。
func (s *Service) Index() Index { return s.index }

// Embed 对单条文本向量化。
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if s == nil || s.engine == nil {
		return nil, xerrors.New(xerrors.CodeModelUnavailable, "向量化引擎未配置")
	}
	return s.engine.Embed(ctx, text)
}

// AddTexts 向量化并写入文本。
func (s *Service) AddTexts(ctx context.Context, texts []string, metadata []map[string]any) error {
	if len(texts) == 0 {
		return nil
	}
	if s == nil || s.engine == nil {
		return xerrors.New(xerrors.CodeModelUnavailable, "向量化引擎未配置")
	}
	vectors, err := s.engine.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}
	return s.index.Add(ctx, vectors, texts, metadata)
}

// Query 向量化查询文本后检索 k 个最相似的文档。
func (s *Service) Query(ctx context.Context, text string, k int) ([]Result, error) {
	vec, err := s.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return s.index.Search(ctx, vec, k)
}

// Filter 保留得分严格大于阈值的结果。
func Filter(results []Result, minScore float64) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Score > minScore {
			out = append(out, r)
		}
	}
	return out
}
