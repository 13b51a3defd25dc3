// Package gemini 通过 google.golang.org/genai 调用 Gemini 模型完成文本生成。
package gemini

import (
	"context"
	"strings"

	"google.golang.org/genai"

	xerrors "agentic-browser/internal/errors"
	"agentic-browser/internal/llm"
)

const defaultModel = "gemini-2.0-flash"

// Config 描述 Gemini 客户端参数。
type Config struct {
	APIKey string
	Model  string
}

// Client 实现 llm.Client。
type Client struct {
	client *genai.Client
	model  string
}

// NewClient 创建 Gemini 客户端。
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, xerrors.New(xerrors.CodeConfiguration, "未提供 Gemini API Key")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "创建 GenAI 客户端失败")
	}
	return &Client{client: client, model: model}, nil
}

// Generate 调用 GenerateContent 并返回拼接后的文本。
func (c *Client) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	req = req.WithDefaults()
	result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.Prompt), generationConfig(req))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeCollaboratorFailure, err, "Gemini 生成失败")
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return nil, xerrors.New(xerrors.CodeCollaboratorFailure, "Gemini 响应内容为空")
	}
	return &llm.Response{Content: text, Model: c.model}, nil
}

// generationConfig 将通用采样参数映射到 GenAI 配置；重复惩罚映射为 frequency penalty。
func generationConfig(req llm.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		TopP:            genai.Ptr(float32(req.TopP)),
		TopK:            genai.Ptr(float32(req.TopK)),
		MaxOutputTokens: int32(req.MaxLength),
	}
	if penalty := req.RepetitionPenalty - 1; penalty > 0 {
		cfg.FrequencyPenalty = genai.Ptr(float32(penalty))
	}
	if system := strings.TrimSpace(req.SystemPrompt); system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return cfg
}
