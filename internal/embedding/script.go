package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strings"

	xerrors "agentic-browser/internal/errors"
)

// ScriptEngine 通过本地脚本加载句向量模型，脚本从 stdin 读取
// {"model_path","texts"}，向 stdout 写出 {"embeddings"}。
type ScriptEngine struct {
	pythonExec string
	scriptPath string
	modelPath  string
	dims       int
}

// NewScriptEngine 创建脚本向量化引擎，模型路径缺失时返回配置错误。
func NewScriptEngine(pythonExec, scriptPath, modelPath string, dims int) (*ScriptEngine, error) {
	if strings.TrimSpace(scriptPath) == "" {
		return nil, xerrors.New(xerrors.CodeConfiguration, "未指定向量化脚本路径")
	}
	if _, err := os.Stat(modelPath); modelPath == "" || err != nil {
		return nil, xerrors.New(xerrors.CodeConfiguration, "向量模型路径不可用: "+modelPath)
	}
	if pythonExec == "" {
		pythonExec = "python3"
	}
	if dims <= 0 {
		dims = 768
	}
	return &ScriptEngine{pythonExec: pythonExec, scriptPath: scriptPath, modelPath: modelPath, dims: dims}, nil
}

// Embed 实现 Engine 接口。
func (e *ScriptEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch 一次子进程调用处理全部文本。
func (e *ScriptEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(map[string]any{"model_path": e.modelPath, "texts": texts})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInternal, err, "序列化向量化请求失败")
	}

	cmd := exec.CommandContext(ctx, e.pythonExec, e.scriptPath)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeCollaboratorFailure, err, "执行向量化脚本失败: "+strings.TrimSpace(stderr.String()))
	}

	var resp struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeCollaboratorFailure, err, "解析向量化脚本输出失败")
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, xerrors.New(xerrors.CodeCollaboratorFailure, "向量化脚本返回数量不匹配")
	}
	return resp.Embeddings, nil
}

// Dimensions 返回配置的维度。
func (e *ScriptEngine) Dimensions() int { return e.dims }

// Name 返回引擎名称。
func (e *ScriptEngine) Name() string { return "script:" + e.scriptPath }
