// Package embedding 提供文本向量化能力，支持本地哈希、Ollama、Google GenAI
// 以及 Python 脚本四种后端。
package embedding

import (
	"context"
	"math"
	"strings"

	xerrors "agentic-browser/internal/errors"
	"agentic-browser/pkg/logger"
)

// Engine 将文本转换为向量。
type Engine interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// Config 描述向量化后端的选择与参数。
type Config struct {
	Provider   string
	Dimensions int

	OllamaEndpoint string
	OllamaModel    string

	GenAIAPIKey string
	GenAIModel  string
	TaskType    string

	PythonExecutable string
	ScriptPath       string
	ModelPath        string
}

// NewEngine 根据配置创建向量化引擎。
func NewEngine(ctx context.Context, cfg Config) (Engine, error) {
	log := logger.Named("embedding")

	var (
		engine Engine
		err    error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "hash":
		engine = NewHashEngine(cfg.Dimensions)
	case "ollama":
		engine, err = NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel, cfg.Dimensions)
	case "genai":
		engine, err = NewGenAIEngine(ctx, cfg.GenAIAPIKey, cfg.GenAIModel, cfg.TaskType)
	case "python_bridge":
		engine, err = NewScriptEngine(cfg.PythonExecutable, cfg.ScriptPath, cfg.ModelPath, cfg.Dimensions)
	default:
		return nil, xerrors.New(xerrors.CodeConfiguration, "不支持的向量化后端: "+cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	log.Info("向量化引擎已创建", "name", engine.Name(), "dimensions", engine.Dimensions())
	return engine, nil
}

// IsZero 判断向量是否全为零，空向量同样视为零向量。
func IsZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

// Normalize 返回 L2 归一化后的副本；零范数按 1 处理，结果仍为零向量。
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		norm = 1
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

// Dot 计算两个等长向量的内积，长度不一致时返回错误。
func Dot(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, "向量维度不一致")
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum, nil
}
