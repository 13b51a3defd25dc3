package llm

import (
	"context"
	"strings"
)

// Classify 先请求模型并用 parse 解析输出，解析失败或调用失败时返回 fallback 的结果。
// 第二个返回值标识结果是否来自模型。
func Classify[T any](ctx context.Context, client Client, req Request, parse func(string) (T, bool), fallback func() T) (T, bool) {
	text, err := GenerateText(ctx, client, req)
	if err == nil {
		if v, ok := parse(text); ok {
			return v, true
		}
	}
	return fallback(), false
}

// MatchLabel 在模型输出中查找第一个出现的标签（大小写不敏感），用于约束枚举输出。
func MatchLabel(text string, labels ...string) (string, bool) {
	lowered := strings.ToLower(text)
	best, bestIdx := "", -1
	for _, label := range labels {
		idx := strings.Index(lowered, strings.ToLower(label))
		if idx < 0 {
			continue
		}
		if bestIdx < 0 || idx < bestIdx {
			best, bestIdx = label, idx
		}
	}
	return best, bestIdx >= 0
}
