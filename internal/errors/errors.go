// Package errors 定义服务内统一的错误码与错误类型。
package errors

import (
	stdErrors "errors"
	"fmt"
	"sync"
)

// Code 表示系统内的统一错误码。
type Code string

// Severity 描述错误的严重程度，用于告警和审计。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const (
	CodeInternal            Code = "INTERNAL_ERROR"
	CodeInvalidArgument     Code = "INVALID_ARGUMENT"
	CodeNotFound            Code = "NOT_FOUND"
	CodeConflict            Code = "CONFLICT"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeConfiguration       Code = "CONFIGURATION"
	CodeModelUnavailable    Code = "MODEL_UNAVAILABLE"
	CodeCollaboratorFailure Code = "COLLABORATOR_FAILURE"
	CodeRemoteError         Code = "REMOTE_ERROR"
	CodePolicyViolation     Code = "POLICY_VIOLATION"
	CodeEvidencePersistence Code = "EVIDENCE_PERSISTENCE"
	CodeStorageFailure      Code = "STORAGE_FAILURE"
	CodeQueueFailure        Code = "QUEUE_FAILURE"
	CodeRetriesExhausted    Code = "RETRIES_EXHAUSTED"
	CodeTimeout             Code = "TIMEOUT"
)

// Attributes 为错误码提供默认行为。
type Attributes struct {
	Message   string
	Severity  Severity
	Retryable bool
	Alert     bool
}

var (
	registryMu sync.RWMutex
	registry   = map[Code]Attributes{
		CodeInternal:            {Message: "internal error", Severity: SeverityCritical, Alert: true},
		CodeInvalidArgument:     {Message: "invalid argument", Severity: SeverityInfo},
		CodeNotFound:            {Message: "resource not found", Severity: SeverityInfo},
		CodeConflict:            {Message: "resource conflict", Severity: SeverityWarning},
		CodeUnauthorized:        {Message: "unauthorized", Severity: SeverityWarning},
		CodeConfiguration:       {Message: "invalid configuration", Severity: SeverityCritical, Alert: true},
		CodeModelUnavailable:    {Message: "model backend not loaded", Severity: SeverityCritical, Alert: true},
		CodeCollaboratorFailure: {Message: "collaborator call failed", Severity: SeverityWarning, Retryable: true},
		CodeRemoteError:         {Message: "remote call returned an error", Severity: SeverityWarning},
		CodePolicyViolation:     {Message: "policy violation", Severity: SeverityWarning},
		CodeEvidencePersistence: {Message: "evidence persistence failed", Severity: SeverityWarning, Alert: true},
		CodeStorageFailure:      {Message: "storage failure", Severity: SeverityCritical, Retryable: true, Alert: true},
		CodeQueueFailure:        {Message: "queue failure", Severity: SeverityCritical, Retryable: true, Alert: true},
		CodeRetriesExhausted:    {Message: "retries exhausted", Severity: SeverityWarning, Alert: true},
		CodeTimeout:             {Message: "operation timed out", Severity: SeverityWarning, Retryable: true},
	}
)

// Register 允许业务模块在初始化阶段注册新的错误码描述。
func Register(code Code, attr Attributes) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[code] = attr
}

// AttributesOf 返回错误码对应的属性，未注册时退回 INTERNAL_ERROR。
func AttributesOf(code Code) Attributes {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeInternal]
}

// Error 是系统内统一的错误类型。
type Error struct {
	code      Code
	message   string
	cause     error
	metadata  map[string]string
	retryable *bool
}

// Option 定义可选配置。
type Option func(*Error)

// WithMetadata 附加额外信息。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithRetryable 覆盖错误码默认的重试属性。
func WithRetryable(retryable bool) Option {
	return func(e *Error) {
		e.retryable = &retryable
	}
}

// New 创建一个新的错误实例。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 在已有错误外包裹统一错误类型。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

// Error 实现 error 接口。
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

// Unwrap 实现 errors.Unwrap。
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 按错误码比较，便于 errors.Is(err, xerrors.New(code, "")) 判断。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.code == t.code
}

// Code 返回错误码。
func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

// Message 返回不含底层原因的错误信息。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata 返回附加信息的副本。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	clone := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		clone[k] = v
	}
	return clone
}

// Retryable 判断是否可重试。
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	if e.retryable != nil {
		return *e.retryable
	}
	return AttributesOf(e.code).Retryable
}

// From 尝试从 error 中解析统一错误类型。
func From(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var target *Error
	if stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回错误对应的错误码。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeInternal
}

// IsCode 判断错误链中是否包含指定错误码。
func IsCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// RetryableError 判断任意 error 是否可重试。
func RetryableError(err error) bool {
	if e, ok := From(err); ok {
		return e.Retryable()
	}
	return false
}

// ShouldAlert 判断是否需要触发告警。
func ShouldAlert(err error) bool {
	if e, ok := From(err); ok {
		return AttributesOf(e.Code()).Alert
	}
	return false
}

// SeverityOf 返回错误严重程度。
func SeverityOf(err error) Severity {
	return AttributesOf(CodeOf(err)).Severity
}
