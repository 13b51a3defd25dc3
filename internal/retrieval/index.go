// Package retrieval 实现向量检索服务：向量在写入与查询前均做 L2 归一化，
// 因此内积即余弦相似度。写入采用单写者互斥，读取不会观察到写了一半的数据。
package retrieval

import (
	"context"
	"sort"
	"strconv"

	"agentic-browser/internal/embedding"
	xerrors "agentic-browser/internal/errors"
)

// Result 为一次检索命中。
type Result struct {
	Text     string         `json:"text"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Stats 汇总索引状态。
type Stats struct {
	Documents  int    `json:"documents"`
	Dimensions int    `json:"dimensions"`
	Backend    string `json:"backend"`
}

// Index 是检索服务的最小接口。
type Index interface {
	Add(ctx context.Context, vectors [][]float32, texts []string, metadata []map[string]any) error
	Search(ctx context.Context, vector []float32, k int) ([]Result, error)
	Stats(ctx context.Context) (Stats, error)
	Clear(ctx context.Context) error
}

func validateAdd(vectors [][]float32, texts []string, metadata []map[string]any, dims int) (int, error) {
	if len(vectors) != len(texts) {
		return dims, xerrors.New(xerrors.CodeInvalidArgument, "向量与文本数量不一致")
	}
	if metadata != nil && len(metadata) != len(texts) {
		return dims, xerrors.New(xerrors.CodeInvalidArgument, "元数据与文本数量不一致")
	}
	for _, vec := range vectors {
		if len(vec) == 0 {
			return dims, xerrors.New(xerrors.CodeInvalidArgument, "向量为空")
		}
		if dims == 0 {
			dims = len(vec)
		}
		if len(vec) != dims {
			return dims, xerrors.New(xerrors.CodeInvalidArgument, "向量维度与索引不一致",
				xerrors.WithMetadata("expected", strconv.Itoa(dims)), xerrors.WithMetadata("got", strconv.Itoa(len(vec))))
		}
	}
	return dims, nil
}

type scored struct {
	pos   int
	score float64
}

// rank 对候选打分并返回得分最高的 k 个位置，得分相同时按写入顺序。
func rank(query []float32, corpus [][]float32, k int) ([]scored, error) {
	q := embedding.Normalize(query)
	hits := make([]scored, 0, len(corpus))
	for i, vec := range corpus {
		s, err := embedding.Dot(q, vec)
		if err != nil {
			return nil, err
		}
		hits = append(hits, scored{pos: i, score: s})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func copyMeta(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
