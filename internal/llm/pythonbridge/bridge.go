// Package pythonbridge 通过子进程调用本地 Python 推理脚本，脚本从 stdin 读取
// JSON 请求并向 stdout 写出 JSON 响应。
package pythonbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	xerrors "agentic-browser/internal/errors"
	"agentic-browser/internal/llm"
)

// Config 描述脚本位置与模型路径。
type Config struct {
	PythonExecutable string
	ScriptPath       string
	WorkingDir       string
	ModelPath        string
}

// Client 通过调用 Python 脚本实现大模型推理。
type Client struct {
	pythonExec string
	scriptPath string
	workingDir string
	modelPath  string
}

// NewClient 创建 Python Bridge 客户端，模型路径不存在时返回配置错误。
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.ScriptPath) == "" {
		return nil, xerrors.New(xerrors.CodeConfiguration, "未指定 Python 脚本路径")
	}
	if strings.TrimSpace(cfg.ModelPath) == "" {
		return nil, xerrors.New(xerrors.CodeConfiguration, "未指定模型路径")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "模型路径不可用: "+cfg.ModelPath)
	}
	pythonExec := cfg.PythonExecutable
	if pythonExec == "" {
		pythonExec = "python3"
	}
	return &Client{
		pythonExec: pythonExec,
		scriptPath: cfg.ScriptPath,
		workingDir: cfg.WorkingDir,
		modelPath:  cfg.ModelPath,
	}, nil
}

type bridgeRequest struct {
	ModelPath         string  `json:"model_path"`
	Prompt            string  `json:"prompt"`
	SystemPrompt      string  `json:"system_prompt,omitempty"`
	MaxLength         int     `json:"max_length"`
	Temperature       float64 `json:"temperature"`
	TopP              float64 `json:"top_p"`
	TopK              int     `json:"top_k"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
}

type bridgeResponse struct {
	Text  string `json:"text"`
	Model string `json:"model"`
	Error string `json:"error"`
}

// Generate 调用外部脚本，并解析输出。
func (c *Client) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	req = req.WithDefaults()
	encoded, err := json.Marshal(bridgeRequest{
		ModelPath:         c.modelPath,
		Prompt:            req.Prompt,
		SystemPrompt:      req.SystemPrompt,
		MaxLength:         req.MaxLength,
		Temperature:       req.Temperature,
		TopP:              req.TopP,
		TopK:              req.TopK,
		RepetitionPenalty: req.RepetitionPenalty,
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInternal, err, "序列化请求失败")
	}

	command := exec.CommandContext(ctx, c.pythonExec, c.scriptPath)
	if c.workingDir != "" {
		command.Dir = c.workingDir
	}
	command.Stdin = bytes.NewReader(encoded)

	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeCollaboratorFailure, err,
			"执行 Python 脚本失败: "+strings.TrimSpace(stderr.String()))
	}

	var resp bridgeResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeCollaboratorFailure, err, "解析 Python 输出失败")
	}
	if resp.Error != "" {
		return nil, xerrors.New(xerrors.CodeRemoteError, resp.Error)
	}

	return &llm.Response{Content: strings.TrimSpace(resp.Text), Model: resp.Model}, nil
}

// ResolveScriptPath 根据工作目录推导脚本绝对路径。
func ResolveScriptPath(baseDir, script string) string {
	if script == "" {
		return ""
	}
	if filepath.IsAbs(script) {
		return script
	}
	if baseDir == "" {
		return script
	}
	return filepath.Join(baseDir, script)
}
