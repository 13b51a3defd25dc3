// Package auth 提供基于静态 Bearer Token 的 HTTP 鉴权与审计。
package auth

import (
	xerrors "agentic-browser/internal/errors"
)

var (
	// ErrMissingToken 表示请求未携带 Bearer Token。
	ErrMissingToken = xerrors.New(xerrors.CodeUnauthorized, "token de acesso ausente")
	// ErrInvalidToken 表示 Token 不在配置列表中。
	ErrInvalidToken = xerrors.New(xerrors.CodeUnauthorized, "token de acesso inválido")
)

// Subject 是通过鉴权的调用方。只保留 Token 指纹，不保存原文。
type Subject struct {
	Fingerprint string `json:"fingerprint"`
}
