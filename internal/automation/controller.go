// Package automation 定义浏览器自动化控制端的统一接口。
// 实现包括远程 WebSocket JSON-RPC 客户端（wsrpc）与本地无头浏览器（chromedp）。
package automation

import (
	"context"
	"encoding/json"
)

// FindQuery 描述元素查找条件，Selector 与 Text 至少提供一个。
type FindQuery struct {
	Selector string `json:"selector,omitempty"`
	Text     string `json:"text,omitempty"`
}

// Result 是控制端返回的原始 JSON 结果。
type Result = json.RawMessage

// Controller 是自动化控制端的方法契约，每次调用要么返回结果，要么返回携带远端信息的错误。
type Controller interface {
	OpenTab(ctx context.Context, url string) (Result, error)
	Click(ctx context.Context, selector string) (Result, error)
	Fill(ctx context.Context, selector, value string) (Result, error)
	Find(ctx context.Context, query FindQuery) (Result, error)
	Extract(ctx context.Context, schema map[string]any) (Result, error)
	Screenshot(ctx context.Context, area string) (Result, error)
	Close() error
}

// Decode 将结果解码为通用结构，空结果返回 nil。
func Decode(res Result) any {
	if len(res) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(res, &v); err != nil {
		return string(res)
	}
	return v
}

// Truthy 判断结果是否表示成功：非空且不是 false/null/空字符串/0。
func Truthy(res Result) bool {
	switch v := Decode(res).(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0
	default:
		return true
	}
}

// ScreenshotPath 从截图结果中提取文件路径，结果可以是字符串或包含 path 字段的对象。
func ScreenshotPath(res Result) string {
	switch v := Decode(res).(type) {
	case string:
		return v
	case map[string]any:
		if p, ok := v["path"].(string); ok {
			return p
		}
	}
	return ""
}
