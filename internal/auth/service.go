package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Service 校验请求中的静态 Token。未配置任何 Token 时鉴权关闭。
type Service struct {
	tokens [][]byte
}

// NewService 基于配置的 Token 列表创建服务，空白项会被忽略。
func NewService(tokens []string) *Service {
	s := &Service{}
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			s.tokens = append(s.tokens, []byte(t))
		}
	}
	return s
}

// Enabled 判断是否启用了鉴权。
func (s *Service) Enabled() bool {
	return s != nil && len(s.tokens) > 0
}

// AuthenticateRequest 解析 Authorization 头并以常量时间比较 Token。
func (s *Service) AuthenticateRequest(_ context.Context, header string) (*Subject, error) {
	token, ok := bearer(header)
	if !ok {
		return nil, ErrMissingToken
	}
	candidate := []byte(token)
	matched := false
	for _, known := range s.tokens {
		if subtle.ConstantTimeCompare(candidate, known) == 1 {
			matched = true
		}
	}
	if !matched {
		return nil, ErrInvalidToken
	}
	return &Subject{Fingerprint: fingerprint(token)}, nil
}

func bearer(header string) (string, bool) {
	const prefix = "bearer "
	header = strings.TrimSpace(header)
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// fingerprint 返回 Token 的短哈希，用于审计日志。
func fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:4])
}
