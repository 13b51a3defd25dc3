package auth

import (
	"net/http"
	"time"

	xerrors "agentic-browser/internal/errors"
	"agentic-browser/pkg/logger"
)

// DenyFunc 负责写出鉴权失败的响应，便于与 API 的错误格式保持一致。
type DenyFunc func(w http.ResponseWriter, r *http.Request, err error)

// MiddlewareConfig 配置鉴权中间件。
type MiddlewareConfig struct {
	// Public 中的路径不做鉴权，例如 /health。
	Public map[string]bool
	// Deny 为空时使用纯文本 401。
	Deny DenyFunc
}

// Middleware 返回鉴权中间件；鉴权关闭时原样放行。拒绝与放行都写审计日志。
func (s *Service) Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	deny := cfg.Deny
	if deny == nil {
		deny = func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.Enabled() || cfg.Public[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			subject, err := s.AuthenticateRequest(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				deny(w, r, err)
				logger.Audit().Warn("access_denied",
					"path", r.URL.Path,
					"method", r.Method,
					"code", string(xerrors.CodeOf(err)),
					"error", err.Error(),
				)
				return
			}

			start := time.Now()
			aw := &auditWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(aw, r.WithContext(WithSubject(r.Context(), subject)))
			logger.Audit().Info("api_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", aw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"token", subject.Fingerprint,
			)
		})
	}
}

// auditWriter 捕获响应状态码。
type auditWriter struct {
	http.ResponseWriter
	status int
}

func (w *auditWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
