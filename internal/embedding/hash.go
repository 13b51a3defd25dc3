package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

const defaultHashDimensions = 768

// HashEngine 使用特征哈希生成确定性向量，无需外部模型，适合离线运行与测试。
// 词元与相邻词二元组被哈希到固定维度，符号位由哈希高位决定。
type HashEngine struct {
	dims int
}

// NewHashEngine 创建哈希向量化引擎。
func NewHashEngine(dims int) *HashEngine {
	if dims <= 0 {
		dims = defaultHashDimensions
	}
	return &HashEngine{dims: dims}
}

// Embed 实现 Engine 接口；没有任何词元的文本得到零向量。
func (e *HashEngine) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)
	tokens := tokenize(text)
	for i, tok := range tokens {
		e.add(vec, tok, 1)
		if i > 0 {
			e.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}
	return vec, nil
}

// EmbedBatch 实现 Engine 接口。
func (e *HashEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions 返回向量维度。
func (e *HashEngine) Dimensions() int { return e.dims }

// Name 返回引擎名称。
func (e *HashEngine) Name() string { return fmt.Sprintf("hash:%d", e.dims) }

func (e *HashEngine) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dims))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
