package embedding

import (
	"context"
	"strings"

	"google.golang.org/genai"

	xerrors "agentic-browser/internal/errors"
)

const genAIDimensions = 768

// GenAIEngine 调用 Gemini Embedding 接口。
type GenAIEngine struct {
	client   *genai.Client
	model    string
	taskType string
}

// NewGenAIEngine 创建 GenAI 向量化引擎。
func NewGenAIEngine(ctx context.Context, apiKey, model, taskType string) (*GenAIEngine, error) {
	if apiKey == "" {
		return nil, xerrors.New(xerrors.CodeConfiguration, "GenAI 向量化需要 API Key")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}

	return newGenAIEngine(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}, model, taskType)
}

func newGenAIEngine(ctx context.Context, cc *genai.ClientConfig, model, taskType string) (*GenAIEngine, error) {
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "创建 GenAI 客户端失败")
	}
	return &GenAIEngine{client: client, model: model, taskType: parseTaskType(taskType)}, nil
}

// taskTypes 是 Gemini Embedding 接受的任务类型。
var taskTypes = map[string]struct{}{
	"SEMANTIC_SIMILARITY": {},
	"RETRIEVAL_QUERY":     {},
	"RETRIEVAL_DOCUMENT":  {},
	"QUESTION_ANSWERING":  {},
	"CLASSIFICATION":      {},
	"CLUSTERING":          {},
}

// parseTaskType 归一化任务类型，未知取值退回 SEMANTIC_SIMILARITY。
func parseTaskType(raw string) string {
	t := strings.ToUpper(strings.TrimSpace(raw))
	if _, ok := taskTypes[t]; ok {
		return t
	}
	return "SEMANTIC_SIMILARITY"
}

// Embed 实现 Engine 接口。
func (e *GenAIEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch 使用原生批量接口。
func (e *GenAIEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		TaskType:             e.taskType,
		OutputDimensionality: genai.Ptr[int32](genAIDimensions),
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeCollaboratorFailure, err, "GenAI 向量化失败")
	}
	if len(result.Embeddings) != len(texts) {
		return nil, xerrors.New(xerrors.CodeCollaboratorFailure, "GenAI 返回的向量数量不匹配")
	}

	out := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}

// Dimensions 返回请求时指定的输出维度。
func (e *GenAIEngine) Dimensions() int { return genAIDimensions }

// Name 返回引擎名称。
func (e *GenAIEngine) Name() string { return "genai:" + e.model }
