package llm

import (
	"context"
	"strings"

	xerrors "agentic-browser/internal/errors"
)

// 默认采样参数。
const (
	DefaultMaxLength         = 512
	DefaultTemperature       = 0.3
	DefaultTopP              = 0.9
	DefaultTopK              = 50
	DefaultRepetitionPenalty = 1.0
)

// Request 描述一次文本生成请求。
type Request struct {
	Prompt            string
	SystemPrompt      string
	MaxLength         int
	Temperature       float64
	TopP              float64
	TopK              int
	RepetitionPenalty float64
}

// WithDefaults 为未设置的采样参数填充默认值。
func (r Request) WithDefaults() Request {
	if r.MaxLength <= 0 {
		r.MaxLength = DefaultMaxLength
	}
	if r.Temperature <= 0 {
		r.Temperature = DefaultTemperature
	}
	if r.TopP <= 0 {
		r.TopP = DefaultTopP
	}
	if r.TopK <= 0 {
		r.TopK = DefaultTopK
	}
	if r.RepetitionPenalty <= 0 {
		r.RepetitionPenalty = DefaultRepetitionPenalty
	}
	return r
}

// Response 是生成服务的输出。
type Response struct {
	Content string
	Model   string
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// ErrModelUnavailable 表示没有加载任何模型后端。
var ErrModelUnavailable = xerrors.New(xerrors.CodeModelUnavailable, "nenhum modelo carregado")

// Unavailable 是未配置后端时使用的占位客户端，所有调用都返回 ErrModelUnavailable。
type Unavailable struct {
	Reason string
}

// Generate 实现 Client 接口。
func (u Unavailable) Generate(context.Context, Request) (*Response, error) {
	if strings.TrimSpace(u.Reason) == "" {
		return nil, ErrModelUnavailable
	}
	return nil, xerrors.Wrap(xerrors.CodeModelUnavailable, ErrModelUnavailable, u.Reason)
}

// GenerateText 调用 client 并返回去除首尾空白的文本。
func GenerateText(ctx context.Context, client Client, req Request) (string, error) {
	if client == nil {
		return "", ErrModelUnavailable
	}
	resp, err := client.Generate(ctx, req.WithDefaults())
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", xerrors.New(xerrors.CodeCollaboratorFailure, "resposta vazia do modelo")
	}
	return strings.TrimSpace(resp.Content), nil
}
