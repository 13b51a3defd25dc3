// Package automationtest 提供记录调用的 automation.Controller 测试替身。
package automationtest

import (
	"context"
	"encoding/json"
	"sync"

	"agentic-browser/internal/automation"
)

// Call 记录一次控制端调用。
type Call struct {
	Method string
	Args   []string
}

// Recorder 记录所有调用并返回预设结果；Errors 中命中的方法返回对应错误。
type Recorder struct {
	mu     sync.Mutex
	calls  []Call
	Errors map[string]error
	// ScreenshotPath 为截图返回的路径，为空时返回 "screenshot.png"。
	ScreenshotPath string
}

var _ automation.Controller = (*Recorder)(nil)

// Calls 返回调用记录副本。
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

func (r *Recorder) record(method string, result any, args ...string) (automation.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Method: method, Args: args})
	if err := r.Errors[method]; err != nil {
		return nil, err
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// OpenTab 实现 automation.Controller。
func (r *Recorder) OpenTab(_ context.Context, url string) (automation.Result, error) {
	return r.record("openTab", map[string]any{"url": url, "opened": true}, url)
}

// Click 实现 automation.Controller。
func (r *Recorder) Click(_ context.Context, selector string) (automation.Result, error) {
	return r.record("click", true, selector)
}

// Fill 实现 automation.Controller。
func (r *Recorder) Fill(_ context.Context, selector, value string) (automation.Result, error) {
	return r.record("fill", true, selector, value)
}

// Find 实现 automation.Controller。
func (r *Recorder) Find(_ context.Context, q automation.FindQuery) (automation.Result, error) {
	return r.record("find", map[string]any{"found": true, "count": 1}, q.Selector, q.Text)
}

// Extract 实现 automation.Controller。
func (r *Recorder) Extract(_ context.Context, schema map[string]any) (automation.Result, error) {
	out := make(map[string]any, len(schema))
	for k := range schema {
		out[k] = "valor de " + k
	}
	return r.record("extract", out)
}

// Screenshot 实现 automation.Controller。
func (r *Recorder) Screenshot(_ context.Context, area string) (automation.Result, error) {
	path := r.ScreenshotPath
	if path == "" {
		path = "screenshot.png"
	}
	return r.record("screenshot", map[string]any{"path": path}, area)
}

// Close 实现 automation.Controller。
func (r *Recorder) Close() error { return nil }
