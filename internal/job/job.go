// Package job 提供流水线的异步执行：任务持久化、队列投递与工作协程池。
package job

import (
	xerrors "agentic-browser/internal/errors"
	"agentic-browser/internal/pipeline"
)

// Status 表示任务在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Outcome 是一次流水线运行写回任务的摘要。
type Outcome struct {
	Capability    string `json:"capability"`
	WarningsCount int    `json:"warnings_count"`
	EvidencePath  string `json:"evidence_path,omitempty"`
	Response      string `json:"response,omitempty"`
}

// Job 描述一次排队执行的流水线请求。
type Job struct {
	ID         string         `json:"id"`
	Input      pipeline.Input `json:"input"`
	Status     Status         `json:"status"`
	Attempts   int            `json:"attempts"`
	MaxRetries int            `json:"max_retries"`
	Outcome
	LastError string `json:"last_error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

var (
	// ErrNotFound 表示任务不存在。
	ErrNotFound = xerrors.New(xerrors.CodeNotFound, "tarefa não encontrada")
	// ErrConflict 表示任务在当前状态下无法被领取或重复创建。
	ErrConflict = xerrors.New(xerrors.CodeConflict, "conflito de tarefa")
	// ErrCompleted 表示任务已成功结束。
	ErrCompleted = xerrors.New(xerrors.CodeConflict, "tarefa já concluída", xerrors.WithMetadata("reason", "completed"))
	// ErrExhausted 表示重试次数已用完。
	ErrExhausted = xerrors.New(xerrors.CodeRetriesExhausted, "tentativas esgotadas")
)

// Subject 返回用于展示和检索的任务主题。
func (j *Job) Subject() string {
	if j.Input.Query != "" {
		return j.Input.Query
	}
	return j.Input.Message
}

// Done 判断任务是否已到达终态：成功，或失败且不会再被重试。
// 入队失败的任务从未进入队列，同样视为终态。
func (j *Job) Done() bool {
	switch j.Status {
	case StatusSucceeded:
		return true
	case StatusFailed:
		code := xerrors.Code(j.ErrorCode)
		return j.Attempts >= j.MaxRetries || code == xerrors.CodeQueueFailure || !xerrors.AttributesOf(code).Retryable
	}
	return false
}

// IsValidStatus 检查状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}

func cloneJob(j *Job) *Job {
	clone := *j
	return &clone
}
